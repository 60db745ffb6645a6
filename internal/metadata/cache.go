package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/askdb/pkg/schema"
)

// CachedProvider wraps a Provider and serves its output from memory,
// refreshing in the background on a cron schedule. The first Load is
// lazy: it delegates to the inner provider and caches the result.
type CachedProvider struct {
	inner    Provider
	schedule cron.Schedule
	logger   *slog.Logger

	mu     sync.RWMutex
	text   string
	loaded bool

	startMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCachedProvider creates a caching wrapper that refreshes on the given
// five-field cron expression (e.g. "*/30 * * * *").
func NewCachedProvider(inner Provider, cronExpr string, logger *slog.Logger) (*CachedProvider, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", cronExpr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{inner: inner, schedule: schedule, logger: logger}, nil
}

// Load returns the cached metadata text, loading it from the inner
// provider on first use.
func (p *CachedProvider) Load(ctx context.Context) (string, error) {
	p.mu.RLock()
	if p.loaded {
		text := p.text
		p.mu.RUnlock()
		return text, nil
	}
	p.mu.RUnlock()

	return p.refresh(ctx)
}

// refresh loads from the inner provider and replaces the cached text.
// On error the previous cache (if any) is left intact.
func (p *CachedProvider) refresh(ctx context.Context) (string, error) {
	text, err := p.inner.Load(ctx)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.text = text
	p.loaded = true
	p.mu.Unlock()
	return text, nil
}

// Start launches the background refresh loop. The loop wakes every
// minute and refreshes when the schedule's next fire time has passed.
func (p *CachedProvider) Start(ctx context.Context) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	if p.done != nil {
		return schema.NewError(schema.ErrCodeInternal, "metadata refresher already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(loopCtx)
	p.logger.Info("metadata refresher started")
	return nil
}

func (p *CachedProvider) loop(ctx context.Context) {
	defer close(p.done)

	next := p.schedule.Next(time.Now().UTC())

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if now.Before(next) {
				continue
			}
			next = p.schedule.Next(now)
			if _, err := p.refresh(ctx); err != nil {
				p.logger.Error("metadata refresh failed", slog.String("error", err.Error()))
				continue
			}
			p.logger.Info("metadata refreshed")
		}
	}
}

// Stop shuts down the background refresh loop.
func (p *CachedProvider) Stop() error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	if p.cancel == nil {
		return nil
	}

	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil

	p.logger.Info("metadata refresher stopped")
	return nil
}

var _ Provider = (*CachedProvider)(nil)
