package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrKeysExhausted is returned when every API key has used its quota for the
// current window.
var ErrKeysExhausted = errors.New("all api keys exhausted")

// ErrUpstreamLimited is returned when the provider itself rejects a call with 429.
var ErrUpstreamLimited = errors.New("market data provider rate limit reached")

type keyUsage struct {
	count     int
	lastReset time.Time
}

// KeyPool hands out API keys in order, each serving at most callsPerKey calls per
// cooldown window. A key's window restarts on the first call after it lapses.
type KeyPool struct {
	mu          sync.Mutex
	keys        []string
	usage       map[string]*keyUsage
	callsPerKey int
	cooldown    time.Duration
	now         func() time.Time
}

type KeyPoolOption func(*KeyPool)

func WithCallsPerKey(n int) KeyPoolOption {
	return func(p *KeyPool) { p.callsPerKey = n }
}

func WithCooldown(d time.Duration) KeyPoolOption {
	return func(p *KeyPool) { p.cooldown = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) KeyPoolOption {
	return func(p *KeyPool) { p.now = now }
}

func NewKeyPool(keys []string, opts ...KeyPoolOption) *KeyPool {
	p := &KeyPool{
		keys:        append([]string(nil), keys...),
		usage:       make(map[string]*keyUsage, len(keys)),
		callsPerKey: 8,
		cooldown:    time.Minute,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next reserves one call on the first key with quota left.
func (p *KeyPool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, key := range p.keys {
		u, ok := p.usage[key]
		if !ok || now.Sub(u.lastReset) > p.cooldown {
			u = &keyUsage{lastReset: now}
			p.usage[key] = u
		}
		if u.count < p.callsPerKey {
			u.count++
			return key, nil
		}
	}
	return "", ErrKeysExhausted
}

// Size is the number of configured keys.
func (p *KeyPool) Size() int { return len(p.keys) }
