package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streamlens/streamlens/internal/gateway"
)

// GatewayClient is the slice of the SQL gateway API the loader needs.
type GatewayClient interface {
	GetStatement(ctx context.Context, handle gateway.StatementHandle) (gateway.StatementDetail, error)
	StopStatement(ctx context.Context, handle gateway.StatementHandle) error
}

// StatementLoader serves statement metadata to the results engine. It owns
// the refresh policy: lookups within CacheTTL of the previous successful
// refresh are answered from cache, so the engine's refresh ticker can fire
// freely without hammering the gateway.
type StatementLoader struct {
	Client   GatewayClient
	CacheTTL time.Duration
	Clock    func() time.Time

	mu     sync.Mutex
	cached map[string]cachedDetail
}

type cachedDetail struct {
	detail    gateway.StatementDetail
	fetchedAt time.Time
}

func New(client GatewayClient, cacheTTL time.Duration) *StatementLoader {
	return &StatementLoader{
		Client:   client,
		CacheTTL: cacheTTL,
		Clock:    time.Now,
		cached:   map[string]cachedDetail{},
	}
}

func (l *StatementLoader) RefreshStatement(ctx context.Context, handle gateway.StatementHandle) (gateway.StatementDetail, error) {
	now := l.now()
	key := cacheKey(handle)

	l.mu.Lock()
	if entry, ok := l.cached[key]; ok && l.CacheTTL > 0 && now.Sub(entry.fetchedAt) < l.CacheTTL {
		l.mu.Unlock()
		return entry.detail, nil
	}
	l.mu.Unlock()

	detail, err := l.Client.GetStatement(ctx, handle)
	if err != nil {
		return gateway.StatementDetail{}, fmt.Errorf("refresh statement %q: %w", handle.Name, err)
	}

	l.mu.Lock()
	l.cached[key] = cachedDetail{detail: detail, fetchedAt: now}
	l.mu.Unlock()
	return detail, nil
}

func (l *StatementLoader) StopStatement(ctx context.Context, handle gateway.StatementHandle) error {
	if err := l.Client.StopStatement(ctx, handle); err != nil {
		return fmt.Errorf("stop statement %q: %w", handle.Name, err)
	}
	// The next refresh should see the stop taking effect, not a cached phase.
	l.mu.Lock()
	delete(l.cached, cacheKey(handle))
	l.mu.Unlock()
	return nil
}

func (l *StatementLoader) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}

func cacheKey(handle gateway.StatementHandle) string {
	return handle.Environment + "/" + handle.Name
}
