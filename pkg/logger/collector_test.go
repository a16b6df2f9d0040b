package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
	topic   string
}

func (p *recordingPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *recordingPublisher) all() []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &recordingPublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("fetch failed", String("pair", "EUR/USD"))
	}
	l.Error("fetch failed", String("pair", "GBP/USD"))
	l.RemoveCollector()

	entries := pub.all()
	require.Len(t, entries, 2)
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Fields["pair"].(string)] = e.Count
	}
	assert.Equal(t, 3, counts["EUR/USD"])
	assert.Equal(t, 1, counts["GBP/USD"])
	assert.Equal(t, "logs", pub.topic)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	c.Close()

	assert.Len(t, pub.all(), 2)
}

func TestWarnIsNotCollected(t *testing.T) {
	pub := &recordingPublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})
	l.Warn("slow")
	l.RemoveCollector()
	assert.Empty(t, pub.all())
}

func TestWithAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf).With("monitor")
	l.Info("pass done", Int("checked", 3), Float64("pnl", 0.5), Error(errors.New("boom")))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "monitor", line["component"])
	assert.Equal(t, "pass done", line["message"])
	assert.EqualValues(t, 3, line["checked"])
	assert.Equal(t, 0.5, line["pnl"])
	assert.Equal(t, "boom", line["error"])
}
