// Package server wires together HTTP routes and the per-visitor upload sessions.
// The rendered page is the only presenter: it reads session state and forwards
// two actions, file selection and tab switching.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/VoiceArchive/internal/config"
	"github.com/dharsanguruparan/VoiceArchive/internal/model"
	"github.com/dharsanguruparan/VoiceArchive/internal/session"
	"github.com/dharsanguruparan/VoiceArchive/internal/signing"
	"github.com/dharsanguruparan/VoiceArchive/internal/storage"
)

// SessionCookie names the cookie carrying the signed session token.
const SessionCookie = "voicearchive_session"

// Server hosts HTTP handlers for VoiceArchive.
type Server struct {
	cfg      *config.Config
	sessions *session.Registry
	store    *storage.MemoryStore
	signer   *signing.Signer
	log      *zap.Logger
	tpl      *template.Template
}

// New creates a configured server.
func New(cfg *config.Config, sessions *session.Registry, store *storage.MemoryStore, signer *signing.Signer, log *zap.Logger) (*Server, error) {
	tpl, err := template.New("page").Funcs(template.FuncMap{
		"bytes": func(n int64) string { return humanize.Bytes(uint64(n)) },
		"join":  strings.Join,
	}).Parse(pageTpl)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		signer:   signer,
		log:      log.Named("http"),
		tpl:      tpl,
	}, nil
}

// Serve launches the HTTP server until the context is cancelled. Live sessions
// are closed on the way out.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	defer s.sessions.Close()
	s.log.Info("listening", zap.String("address", s.cfg.Address))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.routes())
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handlePage)
	mux.HandleFunc("/tab", s.handleTab)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/media/", s.handleMedia)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, size := s.store.Stats()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"payloads": count,
		"bytes":    size,
	})
}

type pageData struct {
	State            model.State
	SupportedFormats []string
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := s.sessionFor(w, r)
	data := pageData{
		State:            sess.State(),
		SupportedFormats: s.cfg.SupportedFormats,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Error("render page", zap.Error(err))
	}
}

func (s *Server) handleTab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tab, err := model.ParseTab(r.FormValue("tab"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess := s.sessionFor(w, r)
	sess.SelectTab(tab)
	s.respondAfterAction(w, r, sess, http.StatusOK)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	files, err := readFileParts(mr)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	sess := s.sessionFor(w, r)
	ids := sess.SelectFiles(files)
	if len(ids) > 0 {
		s.log.Info("files selected", zap.String("session", sess.ID()), zap.Int("files", len(ids)))
	}
	s.respondAfterAction(w, r, sess, http.StatusAccepted)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/media/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	sess, ok := s.existingSession(r)
	if !ok || !sess.Owns(id) {
		http.NotFound(w, r)
		return
	}
	p, err := s.store.Get(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, p.Name, p.CreatedAt, bytes.NewReader(p.Data))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := s.sessionFor(w, r)
	respondJSON(w, http.StatusOK, sess.State())
}

// handleEvents streams a "state" event whenever the session changes. The first
// event carries the current state so late subscribers catch up immediately.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sess := s.sessionFor(w, r)
	changes, cancel := sess.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var last uint64
	send := func() error {
		st := sess.State()
		if st.Version == last && last != 0 {
			return nil
		}
		last = st.Version
		if err := writeEvent(w, "state", st); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case _, open := <-changes:
			if !open {
				return
			}
			if err := send(); err != nil {
				return
			}
		}
	}
}

// respondAfterAction redirects browsers back to the page and answers API clients
// with the new state.
func (s *Server) respondAfterAction(w http.ResponseWriter, r *http.Request, sess *session.UploadSession, status int) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		respondJSON(w, status, sess.State())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// sessionFor resolves the caller's session, starting a fresh one when the cookie
// is missing, forged or expired.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *session.UploadSession {
	if sess, ok := s.existingSession(r); ok {
		return sess
	}
	sess := s.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.signer.Token(sess.ID(), time.Now()),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.IsProduction(),
	})
	return sess
}

func (s *Server) existingSession(r *http.Request) (*session.UploadSession, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, false
	}
	id, ok := s.signer.ParseToken(c.Value)
	if !ok {
		return nil, false
	}
	return s.sessions.Get(id)
}

// readFileParts collects every "file" part in order. Parts without a file name
// are treated like any other selection; nothing is validated.
func readFileParts(mr *multipart.Reader) ([]model.Payload, error) {
	var files []model.Payload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		if part.FileName() == "" && len(data) == 0 {
			// browsers send one empty part when the picker is submitted empty
			continue
		}
		name := part.FileName()
		if name == "" {
			name = fmt.Sprintf("recording-%d", len(files)+1)
		}
		files = append(files, model.Payload{
			Name:        name,
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
}

func writeEvent(w io.Writer, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		zap.L().Warn("encode json failed", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
