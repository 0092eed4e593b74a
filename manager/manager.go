// Package manager drives a set of machine handles: it owns the notification
// hub, the shared configuration snapshot and the polling loop that ticks
// every adopted machine on a fixed cadence.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"

	"github.com/projecteru2/virtmon/config"
	"github.com/projecteru2/virtmon/controlplane"
	"github.com/projecteru2/virtmon/guest"
	"github.com/projecteru2/virtmon/notify"
)

// Manager coordinates guests over one hub. Guests read the configuration
// through the manager's snapshot pointer, so ApplyConfig takes effect on
// each guest's next tick without any per-guest plumbing.
type Manager struct {
	hub  *notify.Hub
	conf atomic.Pointer[config.Config]

	mu     sync.RWMutex
	guests map[string]*guest.Guest
}

// New builds a manager and its dispatch hub from the given configuration.
func New(conf *config.Config) (*Manager, error) {
	conf.Sanitize()
	hub, err := notify.NewHub(conf.EventQueueSize, conf.PoolSize)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		hub:    hub,
		guests: map[string]*guest.Guest{},
	}
	m.conf.Store(conf)
	return m, nil
}

// Hub returns the notification hub for listener registration.
func (m *Manager) Hub() *notify.Hub { return m.hub }

// Config returns the current configuration snapshot.
func (m *Manager) Config() *config.Config { return m.conf.Load() }

// ApplyConfig swaps in a new configuration snapshot. Guests pick it up at
// the start of their next tick; the polling loop adjusts its cadence on the
// following tick.
func (m *Manager) ApplyConfig(conf *config.Config) {
	conf.Sanitize()
	m.conf.Store(conf)
}

// Adopt wraps an established connection in a guest handle and registers it.
func (m *Manager) Adopt(ctx context.Context, conn controlplane.Connection) (*guest.Guest, error) {
	g, err := guest.New(ctx, conn, m.hub, m.Config, m.Config().RunDir)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.guests[conn.Name()]; ok {
		return nil, fmt.Errorf("machine %s already adopted", conn.Name())
	}
	m.guests[conn.Name()] = g
	return g, nil
}

// AdoptSocket dials a machine control socket and adopts it.
func (m *Manager) AdoptSocket(ctx context.Context, socketPath string) (*guest.Guest, error) {
	conn, err := controlplane.Dial(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	return m.Adopt(ctx, conn)
}

// Drop unregisters a guest. The handle itself stays usable for callers that
// still hold it; it simply stops being ticked.
func (m *Manager) Drop(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.guests, name)
}

// Guest returns the handle registered under name.
func (m *Manager) Guest(name string) (*guest.Guest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.guests[name]
	return g, ok
}

// Names returns the adopted machine names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.guests))
	for name := range m.guests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) snapshot() []*guest.Guest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	guests := make([]*guest.Guest, 0, len(m.guests))
	for _, g := range m.guests {
		guests = append(guests, g)
	}
	return guests
}

// Run ticks every adopted guest on the configured cadence until ctx is
// canceled. Guests are sampled concurrently; one machine's failure is
// logged and never stops the others or the loop.
func (m *Manager) Run(ctx context.Context) error {
	logger := log.WithFunc("manager.Run")

	interval := m.Config().PollInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-timer.C:
			m.tickAll(ctx, now)
			next := m.Config().PollInterval()
			if next != interval {
				logger.Infof(ctx, "poll interval changed from %s to %s", interval, next)
				interval = next
			}
			timer.Reset(interval)
		}
	}
}

func (m *Manager) tickAll(ctx context.Context, now time.Time) {
	logger := log.WithFunc("manager.tickAll")

	eg, ctx := errgroup.WithContext(ctx)
	for _, g := range m.snapshot() {
		g := g
		eg.Go(func() error {
			if err := g.Tick(ctx, now); err != nil {
				logger.Warnf(ctx, "tick %s: %v", g.Name(), err)
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// Close releases the hub. Adopted guests become inert.
func (m *Manager) Close() {
	m.hub.Close()
}
