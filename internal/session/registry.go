// Package session maps tenant sessions to crawler instances and
// evicts the ones that go idle.
package session

import (
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/crawlforge/crawlforge/internal/config"
	"github.com/crawlforge/crawlforge/internal/crawler"
	"github.com/crawlforge/crawlforge/internal/storage"
)

const (
	sweepInterval = 5 * time.Minute
	idleTimeout   = time.Hour
)

type entry struct {
	crawler      *crawler.Crawler
	settings     *config.Config
	lastAccessed time.Time
}

// Registry holds one crawler per session behind a single lock.
// Create it at process start and Close it on shutdown.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	store   *storage.Store

	idleTimeout time.Duration
	now         func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// NewRegistry starts the registry and its background sweep. The store
// may be nil to disable persistence for all sessions.
func NewRegistry(store *storage.Store) *Registry {
	r := &Registry{
		entries:     make(map[string]*entry),
		store:       store,
		idleTimeout: idleTimeout,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// GetOrCreate returns the session's crawler, allocating it on first
// use. Every lookup refreshes the idle clock.
func (r *Registry) GetOrCreate(sessionID string) *crawler.Crawler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(sessionID).crawler
}

// Settings returns the session's configuration, allocating the
// session on first use.
func (r *Registry) Settings(sessionID string) *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(sessionID).settings
}

func (r *Registry) getOrCreateLocked(sessionID string) *entry {
	e, ok := r.entries[sessionID]
	if !ok {
		log.Info().Str("session_id", sessionID).Msg("creating crawler instance")
		settings := config.Default()
		e = &entry{
			crawler:  crawler.New(settings, r.store),
			settings: settings,
		}
		r.entries[sessionID] = e
	}
	e.lastAccessed = r.now()
	return e
}

// Remove stops and drops a session's crawler.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()

	if ok {
		e.crawler.Stop()
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the sweep and tears down every session.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	evicted := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		evicted = append(evicted, e)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for _, e := range evicted {
		e.crawler.Stop()
	}
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep evicts sessions idle past the timeout, stopping their crawls
// first.
func (r *Registry) sweep() {
	cutoff := r.now().Add(-r.idleTimeout)

	r.mu.Lock()
	var evicted []*entry
	for id, e := range r.entries {
		if e.lastAccessed.Before(cutoff) {
			log.Info().Str("session_id", id).Msg("evicting idle crawler instance")
			evicted = append(evicted, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range evicted {
		e.crawler.Stop()
	}
	if len(evicted) > 0 {
		log.Info().Int("count", len(evicted)).Msg("idle sessions cleaned up")
	}
}
