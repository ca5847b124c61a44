// Package storage holds selected audio payloads in process memory. Nothing is
// written to disk; a payload lives until its owning session releases it.
package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/VoiceArchive/internal/model"
)

var (
	// ErrNotFound is returned when an identifier is unknown or already released.
	ErrNotFound = errors.New("payload not found")
)

// fallbackContentType labels payloads whose type could not be determined.
const fallbackContentType = "audio/mpeg"

// MemoryStore keeps payloads keyed by identifier behind a RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	payloads map[string]*model.Payload
	bytes    int64
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payloads: make(map[string]*model.Payload),
	}
}

// Save assigns a fresh identifier to the payload, stores it and returns the id.
// Any ID already set on the payload is replaced.
func (m *MemoryStore) Save(p *model.Payload) string {
	p.ID = uuid.NewString()
	p.Size = int64(len(p.Data))
	p.ContentType = resolveContentType(p.ContentType, p.Data)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[p.ID] = p
	m.bytes += p.Size
	return p.ID
}

// Get returns a shallow copy of the payload. Data is shared and must not be
// modified by callers.
func (m *MemoryStore) Get(id string) (*model.Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payloads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Release drops the given payloads. Unknown ids are ignored.
func (m *MemoryStore) Release(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if p, ok := m.payloads[id]; ok {
			m.bytes -= p.Size
			delete(m.payloads, id)
		}
	}
}

// Stats reports how many payloads and bytes are currently held.
func (m *MemoryStore) Stats() (count int, bytes int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payloads), m.bytes
}

// resolveContentType keeps a declared media type and otherwise sniffs the bytes.
// It only labels the payload; nothing is rejected.
func resolveContentType(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(data) > 0 {
		if mt := mimetype.Detect(data); mt != nil && !mt.Is("application/octet-stream") {
			return mt.String()
		}
	}
	return fallbackContentType
}
