// Package session owns the per-visitor upload state: the archive of recordings,
// the simulated upload in flight, the success banner and the selected tab.
package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/VoiceArchive/internal/model"
	"github.com/dharsanguruparan/VoiceArchive/internal/schedule"
)

const (
	// DefaultUploadDelay is the simulated network latency of one batch.
	DefaultUploadDelay = 1500 * time.Millisecond
	// DefaultSuccessWindow is how long the success banner stays up.
	DefaultSuccessWindow = 3 * time.Second
)

// PayloadStore keeps the raw bytes behind each recording identifier.
type PayloadStore interface {
	Save(p *model.Payload) string
	Release(ids ...string)
}

// Options tunes an UploadSession. Zero durations fall back to the defaults.
type Options struct {
	UploadDelay   time.Duration
	SuccessWindow time.Duration
	Scheduler     schedule.Scheduler
	Logger        *zap.Logger
}

// UploadSession is the only writer of a session's state. Callers mutate it
// through SelectFiles and SelectTab and observe it through State and Subscribe.
type UploadSession struct {
	id    string
	store PayloadStore
	sched schedule.Scheduler
	log   *zap.Logger

	uploadDelay   time.Duration
	successWindow time.Duration

	mu            sync.Mutex
	recordings    []model.Recording
	inFlight      int
	justSucceeded bool
	successGen    uint64
	activeTab     model.Tab
	version       uint64
	payloadIDs    []string
	timers        map[uint64]schedule.Timer
	nextTimer     uint64
	subscribers   map[chan struct{}]struct{}
	closed        bool
}

// New creates an idle session on the archive tab.
func New(id string, store PayloadStore, opts Options) *UploadSession {
	if opts.UploadDelay <= 0 {
		opts.UploadDelay = DefaultUploadDelay
	}
	if opts.SuccessWindow <= 0 {
		opts.SuccessWindow = DefaultSuccessWindow
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &UploadSession{
		id:            id,
		store:         store,
		sched:         opts.Scheduler,
		log:           opts.Logger.With(zap.String("session", id)),
		uploadDelay:   opts.UploadDelay,
		successWindow: opts.SuccessWindow,
		activeTab:     model.TabArchive,
		timers:        make(map[uint64]schedule.Timer),
		subscribers:   make(map[chan struct{}]struct{}),
	}
}

// ID returns the session identifier.
func (s *UploadSession) ID() string {
	return s.id
}

// SelectFiles starts a simulated upload of files and returns the identifiers
// generated for them, in order. The recordings become visible after the upload
// delay. An empty selection does nothing.
func (s *UploadSession) SelectFiles(files []model.Payload) []string {
	if len(files) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	batch := make([]model.Recording, 0, len(files))
	ids := make([]string, 0, len(files))
	for i := range files {
		p := files[i]
		id := s.store.Save(&p)
		ids = append(ids, id)
		batch = append(batch, model.Recording{
			ID:          id,
			Name:        p.Name,
			ContentType: p.ContentType,
			Size:        p.Size,
		})
	}
	s.payloadIDs = append(s.payloadIDs, ids...)
	s.inFlight++
	s.justSucceeded = false
	s.changedLocked()
	s.log.Info("upload started", zap.Int("files", len(batch)), zap.Int("in_flight", s.inFlight))

	s.afterLocked(s.uploadDelay, func() { s.completeBatch(batch) })
	return ids
}

// SelectTab switches the visible view. Pending uploads are unaffected.
func (s *UploadSession) SelectTab(tab model.Tab) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.activeTab == tab {
		return
	}
	s.activeTab = tab
	s.changedLocked()
}

// State returns a snapshot safe to read without further locking.
func (s *UploadSession) State() model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := make([]model.Recording, len(s.recordings))
	copy(recs, s.recordings)
	return model.State{
		Version:       s.version,
		ActiveTab:     s.activeTab,
		IsUploading:   s.inFlight > 0,
		JustSucceeded: s.justSucceeded,
		Recordings:    recs,
	}
}

// Owns reports whether id belongs to a recording visible in this session.
func (s *UploadSession) Owns(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recordings {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Subscribe returns a channel that receives a value after state changes. Slow
// readers miss intermediate notifications but always see the latest one. The
// channel is closed when the session closes or cancel is called.
func (s *UploadSession) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close tears the session down: pending timers are stopped, subscribers are
// released and every payload the session created is dropped from the store.
func (s *UploadSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	ids := s.payloadIDs
	s.payloadIDs = nil
	s.mu.Unlock()

	s.store.Release(ids...)
	s.log.Info("session closed", zap.Int("released", len(ids)))
	return nil
}

func (s *UploadSession) completeBatch(batch []model.Recording) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	now := time.Now().UTC()
	for i := range batch {
		batch[i].UploadedAt = now
	}
	s.recordings = append(s.recordings, batch...)
	s.inFlight--
	if s.inFlight == 0 {
		s.justSucceeded = true
		s.successGen++
		gen := s.successGen
		s.afterLocked(s.successWindow, func() { s.expireSuccess(gen) })
	}
	s.changedLocked()
	s.log.Info("upload finished", zap.Int("files", len(batch)), zap.Int("recordings", len(s.recordings)))
}

// expireSuccess hides the banner unless a later batch has shown it again since.
func (s *UploadSession) expireSuccess(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.successGen || !s.justSucceeded {
		return
	}
	s.justSucceeded = false
	s.changedLocked()
}

// afterLocked schedules f and tracks its handle until it runs. s.mu must be held.
func (s *UploadSession) afterLocked(d time.Duration, f func()) {
	s.nextTimer++
	key := s.nextTimer
	s.timers[key] = s.sched.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		f()
	})
}

func (s *UploadSession) changedLocked() {
	s.version++
	for ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
