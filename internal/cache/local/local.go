// Package local provides in-process versions of the lock, pacing and
// status-bus interfaces for single-instance deployments without Redis.
package local

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// LockManager is a process-local domain.LockManager with TTL expiry.
type LockManager struct {
	mu   sync.Mutex
	held map[string]lease
	now  func() time.Time
	seq  uint64
}

type lease struct {
	id      uint64
	expires time.Time
}

// NewLockManager returns an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]lease), now: time.Now}
}

// Acquire takes key for ttl or returns domain.ErrLockHeld.
func (l *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, domain.ErrLockHeld
	}
	l.seq++
	id := l.seq
	l.held[key] = lease{id: id, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[key]; ok && cur.id == id {
				delete(l.held, key)
			}
		})
	}, nil
}

// Pacer spaces calls with a token bucket.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer admits one call per interval. A non-positive interval disables
// pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call may proceed.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("local: pacer wait: %w", err)
	}
	return nil
}

// Bus is a process-local domain.SignalBus. Slow subscribers drop messages
// rather than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

type subscription struct {
	pattern string
	ch      chan []byte
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscription]struct{})}
}

// Publish delivers payload to every subscriber whose channel or pattern
// matches.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers for channel, which may be a glob pattern. The returned
// channel is closed when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("local: subscribe %s: %w", channel, err)
	}
	s := &subscription{pattern: channel, ch: make(chan []byte, 128)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}()
	return s.ch, nil
}

var (
	_ domain.LockManager = (*LockManager)(nil)
	_ domain.SignalBus   = (*Bus)(nil)
)
