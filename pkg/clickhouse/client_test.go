package clickhouse

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{
		Host:         "ch.local",
		Port:         9000,
		Database:     "fxsignal",
		User:         "default",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		MaxExecTime:  30 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	}
	u, err := url.Parse(BuildDSN(cfg))
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch.local:9000", u.Host)
	assert.Equal(t, "/fxsignal", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	q := u.Query()
	assert.Equal(t, "5s", q.Get("dial_timeout"))
	assert.Equal(t, "30", q.Get("max_execution_time"))
	assert.Equal(t, "1", q.Get("async_insert"))
	assert.Equal(t, "1", q.Get("wait_for_async_insert"))
}

func TestBuildDSNHTTP(t *testing.T) {
	dsn := BuildDSN(ClientConfig{Host: "h", Port: 8123, Database: "d", UseHTTP: true})
	assert.True(t, strings.HasPrefix(dsn, "http://"))
	assert.NotContains(t, dsn, "async_insert")
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.ErrorContains(t, err, "host")
}

func TestSchemaUsesDatabase(t *testing.T) {
	stmts := Schema("fx")
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "fx.signals")
	assert.Contains(t, stmts[1], "ReplacingMergeTree(version)")
	assert.Contains(t, stmts[2], "fx.signal_log")
}
