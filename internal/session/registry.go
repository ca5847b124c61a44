package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const defaultCleanupInterval = 10 * time.Minute

// Registry maps session identifiers to live UploadSessions. Sessions idle for
// longer than the TTL are evicted and closed, which releases their payloads.
type Registry struct {
	cache *cache.Cache
	store PayloadStore
	opts  Options
	log   *zap.Logger
}

// NewRegistry builds a registry whose sessions share store and opts.
func NewRegistry(store PayloadStore, ttl time.Duration, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	cleanup := defaultCleanupInterval
	if ttl < cleanup {
		cleanup = ttl
	}
	r := &Registry{
		cache: cache.New(ttl, cleanup),
		store: store,
		opts:  opts,
		log:   opts.Logger.Named("sessions"),
	}
	r.cache.OnEvicted(func(id string, v interface{}) {
		if s, ok := v.(*UploadSession); ok {
			_ = s.Close()
		}
		r.log.Debug("session evicted", zap.String("session", id))
	})
	return r
}

// Create starts a new session with a random identifier.
func (r *Registry) Create() *UploadSession {
	id := uuid.NewString()
	s := New(id, r.store, r.opts)
	r.cache.Set(id, s, cache.DefaultExpiration)
	r.log.Debug("session created", zap.String("session", id))
	return s
}

// Get returns the session for id and extends its lifetime.
func (r *Registry) Get(id string) (*UploadSession, bool) {
	v, found := r.cache.Get(id)
	if !found {
		return nil, false
	}
	s := v.(*UploadSession)
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close evicts every session.
func (r *Registry) Close() {
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}
