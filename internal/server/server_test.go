package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/VoiceArchive/internal/config"
	"github.com/dharsanguruparan/VoiceArchive/internal/model"
	"github.com/dharsanguruparan/VoiceArchive/internal/schedule"
	"github.com/dharsanguruparan/VoiceArchive/internal/session"
	"github.com/dharsanguruparan/VoiceArchive/internal/signing"
	"github.com/dharsanguruparan/VoiceArchive/internal/storage"
)

type harness struct {
	t      *testing.T
	srv    *Server
	clock  *schedule.Manual
	store  *storage.MemoryStore
	cookie *http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		Address:          ":0",
		Environment:      "test",
		UploadDelay:      1500 * time.Millisecond,
		SuccessWindow:    3 * time.Second,
		MaxUploadBytes:   1 << 20,
		SupportedFormats: []string{"MP3", "WAV"},
		SessionTTL:       time.Hour,
		SigningSecret:    []byte("0123456789abcdef"),
	}
	require.NoError(t, cfg.Validate())
	clock := schedule.NewManual()
	store := storage.NewMemoryStore()
	reg := session.NewRegistry(store, cfg.SessionTTL, session.Options{
		UploadDelay:   cfg.UploadDelay,
		SuccessWindow: cfg.SuccessWindow,
		Scheduler:     clock,
	})
	t.Cleanup(reg.Close)
	srv, err := New(cfg, reg, store, signing.NewSigner(cfg.SigningSecret), nil)
	require.NoError(t, err)
	return &harness{t: t, srv: srv, clock: clock, store: store}
}

// do sends req with the harness cookie and remembers any cookie set in return.
func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	h.t.Helper()
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rr := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rr, req)
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookie {
			h.cookie = c
		}
	}
	return rr
}

func (h *harness) state() model.State {
	h.t.Helper()
	rr := h.do(httptest.NewRequest(http.MethodGet, "/state", nil))
	require.Equal(h.t, http.StatusOK, rr.Code)
	var st model.State
	require.NoError(h.t, json.Unmarshal(rr.Body.Bytes(), &st))
	return st
}

type upload struct {
	name        string
	contentType string
	data        string
}

func multipartBody(t *testing.T, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("note", "ignored"))
	for _, f := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+f.name+`"`)
		if f.contentType != "" {
			hdr.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.data))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (h *harness) upload(files ...upload) *httptest.ResponseRecorder {
	h.t.Helper()
	body, ct := multipartBody(h.t, files...)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	return h.do(req)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rr := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestPageCreatesSessionAndRendersArchive(t *testing.T) {
	h := newHarness(t)
	rr := h.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, h.cookie, "session cookie expected")
	assert.True(t, h.cookie.HttpOnly)
	html := rr.Body.String()
	assert.Contains(t, html, "Archive of Artistic Voices")
	assert.Contains(t, html, "Supported formats: MP3, WAV.")
	assert.NotContains(t, html, "About This Project")
	assert.NotContains(t, html, "Uploading...")
}

func TestUnknownPathIsNotFound(t *testing.T) {
	h := newHarness(t)
	rr := h.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUploadLifecycle(t *testing.T) {
	h := newHarness(t)

	rr := h.upload(
		upload{name: "first.mp3", contentType: "audio/mpeg", data: "ID3-first"},
		upload{name: "second.wav", contentType: "audio/wav", data: "RIFF-second"},
	)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	st := h.state()
	assert.True(t, st.IsUploading)
	assert.False(t, st.JustSucceeded)
	assert.Empty(t, st.Recordings)

	page := h.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, "Uploading...")

	h.clock.Advance(1500 * time.Millisecond)
	st = h.state()
	require.Len(t, st.Recordings, 2)
	assert.Equal(t, "first.mp3", st.Recordings[0].Name)
	assert.Equal(t, "second.wav", st.Recordings[1].Name)
	assert.False(t, st.IsUploading)
	assert.True(t, st.JustSucceeded)

	page = h.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, "Upload successful!")
	assert.Contains(t, page, "/media/"+st.Recordings[0].ID)
	assert.Contains(t, page, `type="audio/wav"`)

	h.clock.Advance(3 * time.Second)
	st = h.state()
	assert.False(t, st.JustSucceeded)
	assert.Len(t, st.Recordings, 2)
}

func TestUploadJSONResponse(t *testing.T) {
	h := newHarness(t)
	body, ct := multipartBody(t, upload{name: "a.mp3", data: "abc"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Accept", "application/json")

	rr := h.do(req)
	require.Equal(t, http.StatusAccepted, rr.Code)
	var st model.State
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.True(t, st.IsUploading)
}

func TestUploadWithoutFilesIsNoop(t *testing.T) {
	h := newHarness(t)
	before := h.state()

	rr := h.upload()
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	// an empty picker submission carries one nameless, empty part
	rr = h.upload(upload{name: "", data: ""})
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	assert.Equal(t, before, h.state())
	assert.Zero(t, h.clock.Pending())
}

func TestUploadRejectsNonMultipart(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	rr := h.do(req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadTooLarge(t *testing.T) {
	h := newHarness(t)
	rr := h.upload(upload{name: "big.wav", data: strings.Repeat("x", 2<<20)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.False(t, h.state().IsUploading)
}

func TestUploadMethodNotAllowed(t *testing.T) {
	h := newHarness(t)
	rr := h.do(httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestTabSwitching(t *testing.T) {
	h := newHarness(t)
	h.upload(upload{name: "a.mp3", data: "abc"})
	before := h.state()

	form := url.Values{"tab": {"info"}}
	req := httptest.NewRequest(http.MethodPost, "/tab", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := h.do(req)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	page := h.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, "About This Project")
	assert.NotContains(t, page, "Choose File")

	form = url.Values{"tab": {"archive"}}
	req = httptest.NewRequest(http.MethodPost, "/tab", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.do(req)

	after := h.state()
	assert.Equal(t, model.TabArchive, after.ActiveTab)
	assert.Equal(t, before.IsUploading, after.IsUploading)
	assert.Equal(t, before.JustSucceeded, after.JustSucceeded)
	assert.Equal(t, before.Recordings, after.Recordings)
}

func TestTabRejectsUnknownValue(t *testing.T) {
	h := newHarness(t)
	form := url.Values{"tab": {"settings"}}
	req := httptest.NewRequest(http.MethodPost, "/tab", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := h.do(req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMediaServesOwnRecordingsOnly(t *testing.T) {
	h := newHarness(t)
	h.upload(upload{name: "voice.mp3", contentType: "audio/mpeg", data: "ID3-voice-bytes"})
	h.clock.Advance(1500 * time.Millisecond)
	st := h.state()
	require.Len(t, st.Recordings, 1)
	id := st.Recordings[0].ID

	rr := h.do(httptest.NewRequest(http.MethodGet, "/media/"+id, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "audio/mpeg", rr.Header().Get("Content-Type"))
	assert.Equal(t, "ID3-voice-bytes", rr.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/media/"+id, nil)
	req.Header.Set("Range", "bytes=0-2")
	rr = h.do(req)
	assert.Equal(t, http.StatusPartialContent, rr.Code)
	assert.Equal(t, "ID3", rr.Body.String())

	stranger := newHarness(t)
	stranger.srv = h.srv
	rr = stranger.do(httptest.NewRequest(http.MethodGet, "/media/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(httptest.NewRequest(http.MethodGet, "/media/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMediaNotVisibleWhileUploading(t *testing.T) {
	h := newHarness(t)
	body, ct := multipartBody(t, upload{name: "a.mp3", data: "abc"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Accept", "application/json")
	h.do(req)

	count, _ := h.store.Stats()
	require.Equal(t, 1, count)
	// the id is not listed yet, so there is nothing to address
	assert.Empty(t, h.state().Recordings)
}

func TestForgedCookieGetsFreshSession(t *testing.T) {
	h := newHarness(t)
	h.upload(upload{name: "a.mp3", data: "abc"})
	h.clock.Advance(1500 * time.Millisecond)
	require.Len(t, h.state().Recordings, 1)

	h.cookie = &http.Cookie{Name: SessionCookie, Value: "forged.1.deadbeef"}
	st := h.state()
	assert.Empty(t, st.Recordings)
	assert.NotEqual(t, "forged.1.deadbeef", h.cookie.Value)
}

func TestEventsStreamStateChanges(t *testing.T) {
	h := newHarness(t)
	h.state() // establish session cookie

	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	req.AddCookie(h.cookie)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readState := func() model.State {
		t.Helper()
		var data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if strings.HasPrefix(line, "data: ") {
				data = strings.TrimPrefix(line, "data: ")
			}
			if line == "" && data != "" {
				break
			}
		}
		var st model.State
		require.NoError(t, json.Unmarshal([]byte(data), &st))
		return st
	}

	first := readState()
	assert.False(t, first.IsUploading)

	h.upload(upload{name: "a.mp3", data: "abc"})
	assert.True(t, readState().IsUploading)

	h.clock.Advance(1500 * time.Millisecond)
	done := readState()
	assert.Len(t, done.Recordings, 1)
	assert.True(t, done.JustSucceeded)
}
