package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ARTM2000/grove"
)

type demoSettings struct {
	region string
	tick   time.Duration
	ticks  int
	warmup time.Duration
}

// Beat is the argument of the heartbeat lifecycle.
type Beat struct {
	N  int
	At time.Time
}

// compose registers the demo providers on o and binds the reporter to the
// heartbeat. done is called once the clock has fired the configured number of
// beats; it may be nil.
func compose(o grove.Orchestrator, s demoSettings, done func()) (*grove.Lifecycle[Beat], error) {
	heartbeat := grove.NewLifecycle[Beat]("heartbeat", grove.Concurrent)

	providers := []any{
		&Settings{Region: s.region},
		&Cache{warmup: s.warmup},
		&Clock{interval: s.tick, limit: s.ticks, heartbeat: heartbeat, done: done},
		&Reporter{},
	}
	for _, p := range providers {
		if err := o.Register(p); err != nil {
			return nil, err
		}
	}

	grove.Bind(o, heartbeat, func(r *Reporter, ctx context.Context, b Beat) error {
		settings, err := grove.Get[*Settings](o)
		if err != nil {
			return err
		}
		return r.OnBeat(ctx, settings.Region, b)
	})
	return heartbeat, nil
}

// Settings resolves static host settings during init.
type Settings struct {
	Region string
	Loaded bool
}

func (s *Settings) Init(context.Context) error {
	if s.Region == "" {
		return fmt.Errorf("region is required")
	}
	s.Loaded = true
	return nil
}

// Cache simulates a provider with a slow warmup.
type Cache struct {
	warmup time.Duration

	mu      sync.Mutex
	entries map[string]string
}

func (c *Cache) Init(ctx context.Context) error {
	select {
	case <-time.After(c.warmup):
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.entries = map[string]string{"motd": "welcome"}
	c.mu.Unlock()
	return nil
}

func (c *Cache) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

// Clock fires the heartbeat lifecycle on every tick until its context is
// cancelled or the beat limit is reached.
type Clock struct {
	interval  time.Duration
	limit     int
	heartbeat *grove.Lifecycle[Beat]
	done      func()
}

func (c *Clock) Start(ctx context.Context) error {
	if c.interval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.interval)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case at := <-ticker.C:
			_ = c.heartbeat.Fire(ctx, Beat{N: n, At: at})
		}

		if c.limit > 0 && n >= c.limit {
			c.heartbeat.Wait()
			if c.done != nil {
				c.done()
			}
			return nil
		}
	}
}

// Reporter counts heartbeats.
type Reporter struct {
	mu    sync.Mutex
	beats int
	last  string
}

func (r *Reporter) OnBeat(_ context.Context, region string, b Beat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beats++
	r.last = fmt.Sprintf("%s #%d", region, b.N)
	return nil
}

// Beats returns the number of beats seen and a label for the last one.
func (r *Reporter) Beats() (int, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.beats, r.last
}

// Close implements io.Closer so the reporter is flushed on shutdown.
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = "closed"
	return nil
}
