package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iabetor/jatts/internal/audio"
	"github.com/iabetor/jatts/internal/history"
	"github.com/iabetor/jatts/internal/synth"
	"github.com/iabetor/jatts/internal/tts"
)

type stubEngine struct {
	audio *tts.Audio
	err   error
	text  atomic.Value
}

func (e *stubEngine) Synthesize(_ context.Context, text, _ string) (*tts.Audio, error) {
	e.text.Store(text)
	return e.audio, e.err
}

type stubProber struct {
	stubEngine
	healthy atomic.Bool
	probes  atomic.Int32
}

func (p *stubProber) Probe(context.Context) error {
	p.probes.Add(1)
	if !p.healthy.Load() {
		return errors.New("connection refused")
	}
	return nil
}

type stubHistory struct {
	entries []*history.Entry
	err     error
}

func (h *stubHistory) Recent(_ context.Context, limit int) ([]*history.Entry, error) {
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.entries) {
		return h.entries[:limit], nil
	}
	return h.entries, nil
}

func (h *stubHistory) Get(_ context.Context, filename string) (*history.Entry, error) {
	if h.err != nil {
		return nil, h.err
	}
	for _, e := range h.entries {
		if e.Filename == filename {
			return e, nil
		}
	}
	return nil, history.ErrNotFound
}

type stubArchive struct {
	files map[string][]byte
}

func (a *stubArchive) Download(_ context.Context, name string) ([]byte, error) {
	if data, ok := a.files[name]; ok {
		return data, nil
	}
	return nil, errors.New("object not found")
}

var wavBytes = []byte("RIFF$\x00\x00\x00WAVEfmt test audio")

type fixture struct {
	srv    *Server
	reg    *tts.Registry
	store  *audio.Store
	parler *stubEngine
	fish   *stubProber
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	store, err := audio.NewStore(t.TempDir(), 0)
	require.NoError(t, err)

	parler := &stubEngine{audio: &tts.Audio{Data: wavBytes, SampleRate: 44100, Duration: time.Second}}
	fish := &stubProber{stubEngine: stubEngine{audio: &tts.Audio{Data: wavBytes, SampleRate: 44100}}}

	reg := tts.NewRegistry()
	reg.Register(tts.Backend{Name: "parler", Engine: parler})
	reg.RegisterUnavailable(tts.Backend{Name: "canary"}, "未配置")
	reg.Register(tts.Backend{Name: "fish", Engine: fish})
	reg.ProbeAll(context.Background())

	cfg := Config{
		Synth:          synth.New(synth.Config{Backends: reg, Store: store, MaxPromptChars: 20}),
		Backends:       reg,
		Store:          store,
		MaxPromptChars: 20,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &fixture{srv: New(cfg), reg: reg, store: store, parler: parler, fish: fish}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIndex_RendersBackends(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `<option value="parler" selected>Parler TTS</option>`)
	assert.Contains(t, body, `Canary TTS (Not Available)`)
	assert.Contains(t, body, `Fish Speech (Not Available)`)
	assert.Contains(t, body, `<option value="canary" disabled`)
	assert.Contains(t, body, "Parler TTS: Uses separate voice description")
	assert.Contains(t, body, "こんにちは、今日はどのようにお過ごしですか？")
	assert.Contains(t, body, `maxlength="20"`)
	assert.Contains(t, body, `"default_description"`)

	// 表单顺序与注册顺序一致
	parler := strings.Index(body, `value="parler"`)
	canary := strings.Index(body, `value="canary"`)
	fish := strings.Index(body, `value="fish"`)
	assert.True(t, parler < canary && canary < fish, "options out of order")
}

func TestIndex_UnlimitedPrompt(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxPromptChars = -1 })

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "maxlength")
}

func TestGenerate_Success(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(postForm(url.Values{
		"prompt":      {"テスト"},
		"description": {"calm <voice>"},
		"model":       {"parler"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "<strong>Model:</strong> Parler")
	assert.Contains(t, body, "<strong>Text:</strong> テスト")
	assert.Contains(t, body, "calm &lt;voice&gt;")

	m := regexp.MustCompile(`/audio/(tts_[0-9a-f]{32}\.wav)`).FindStringSubmatch(body)
	require.Len(t, m, 2, "audio link not found")

	audioRec := f.do(httptest.NewRequest(http.MethodGet, "/audio/"+m[1], nil))
	require.Equal(t, http.StatusOK, audioRec.Code)
	assert.Equal(t, "audio/wav", audioRec.Header().Get("Content-Type"))
	assert.Equal(t, wavBytes, audioRec.Body.Bytes())
}

func TestGenerate_DefaultModel(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(postForm(url.Values{"prompt": {"テスト"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<strong>Model:</strong> Parler")
	assert.Equal(t, "テスト", f.parler.text.Load())
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		engine  error
		status  int
		message string
	}{
		{
			name:    "unavailable model",
			form:    url.Values{"prompt": {"テスト"}, "model": {"fish"}},
			status:  http.StatusBadRequest,
			message: "Model &#39;fish&#39; not available or not supported",
		},
		{
			name:    "unknown model",
			form:    url.Values{"prompt": {"テスト"}, "model": {"whisper"}},
			status:  http.StatusBadRequest,
			message: "Model &#39;whisper&#39; not available or not supported",
		},
		{
			name:   "empty prompt",
			form:   url.Values{"prompt": {"   "}},
			status: http.StatusBadRequest,
		},
		{
			name:   "prompt too long",
			form:   url.Values{"prompt": {strings.Repeat("あ", 21)}},
			status: http.StatusBadRequest,
		},
		{
			name:    "backend failure",
			form:    url.Values{"prompt": {"テスト"}},
			engine:  errors.New("parler service error: 500 - CUDA out of memory"),
			status:  http.StatusBadGateway,
			message: "parler service error: 500 - CUDA out of memory",
		},
		{
			name:   "backend timeout",
			form:   url.Values{"prompt": {"テスト"}},
			engine: context.DeadlineExceeded,
			status: http.StatusGatewayTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.parler.err = tt.engine

			rec := f.do(postForm(tt.form))
			assert.Equal(t, tt.status, rec.Code)
			body := rec.Body.String()
			assert.Contains(t, body, "<strong>Error generating speech:</strong>")
			assert.Contains(t, body, `<a href="/">Try Again</a>`)
			if tt.message != "" {
				assert.Contains(t, body, tt.message)
			}
		})
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	first := f.do(postForm(url.Values{"prompt": {"テスト"}}))
	assert.Equal(t, http.StatusOK, first.Code)

	second := f.do(postForm(url.Values{"prompt": {"テスト"}}))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "Too many requests")

	// 限流只作用于 /generate
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestAudio_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	for _, name := range []string{"tts_missing.wav", "..wav", "notes.txt"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/audio/"+name, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
		assert.JSONEq(t, `{"error":"File not found"}`, rec.Body.String(), name)
	}
}

func TestAudio_ArchiveFallback(t *testing.T) {
	archive := &stubArchive{files: map[string][]byte{"tts_archived.wav": wavBytes}}
	f := newFixture(t, func(c *Config) { c.Archive = archive })

	rec := f.do(httptest.NewRequest(http.MethodGet, "/audio/tts_archived.wav", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, wavBytes, rec.Body.Bytes())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/audio/tts_gone.wav", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAudio_SweptFileIsGone(t *testing.T) {
	f := newFixture(t, nil)

	name := f.store.NewName()
	path, err := f.store.Write(name, wavBytes)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/audio/"+name, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	now := time.Now()
	hist := &stubHistory{entries: []*history.Entry{
		{ID: "2", Filename: "tts_b.wav", Model: "canary", Prompt: "二番目", Bytes: 2048, Duration: 2 * time.Second, CreatedAt: now},
		{ID: "1", Model: "fish", Prompt: "一番目", Error: "Fish Speech API error: 500 - boom", CreatedAt: now.Add(-time.Hour)},
	}}
	f := newFixture(t, func(c *Config) { c.History = hist })

	rec := f.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "二番目")
	assert.Contains(t, body, `/audio/tts_b.wav`)
	assert.Contains(t, body, "2.0 kB")
	assert.Contains(t, body, "Fish Speech API error: 500 - boom")
	assert.Contains(t, body, "1 hour ago")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Entries []historyItem `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "tts_b.wav", resp.Entries[0].Filename)
	assert.Equal(t, int64(2000), resp.Entries[0].DurationMS)
	assert.NotEmpty(t, resp.Entries[1].Error)
}

func TestHistory_Disabled(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory_Error(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.History = &stubHistory{err: errors.New("database is locked")} })

	rec := f.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHistoryEntry(t *testing.T) {
	hist := &stubHistory{entries: []*history.Entry{
		{ID: "7", Filename: "tts_c.wav", Model: "parler", Prompt: "東京", Annotated: "<ruby>東京<rt>とうきょう</rt></ruby>",
			Bytes: 4096, SampleRate: 44100, Duration: 1500 * time.Millisecond, CreatedAt: time.Now()},
	}}
	f := newFixture(t, func(c *Config) { c.History = hist })

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/history/tts_c.wav", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var item historyItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "7", item.ID)
	assert.Equal(t, "parler", item.Model)
	assert.Equal(t, "<ruby>東京<rt>とうきょう</rt></ruby>", item.Annotated)
	assert.Equal(t, int64(1500), item.DurationMS)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/history/tts_missing.wav", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Record not found"}`, rec.Body.String())
}

func TestHistoryEntry_Errors(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/history/tts_c.wav", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f = newFixture(t, func(c *Config) { c.History = &stubHistory{err: errors.New("database is locked")} })
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/history/tts_c.wav", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBackends_ReprobesAndReports(t *testing.T) {
	f := newFixture(t, nil)
	before := f.fish.probes.Load()

	// fish 服务恢复后，/api/backends 应刷新其状态
	f.fish.healthy.Store(true)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/backends", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, f.fish.probes.Load(), before)

	var resp struct {
		Default  string       `json:"default"`
		Backends []tts.Status `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "parler", resp.Default)
	require.Len(t, resp.Backends, 3)

	byName := map[string]tts.Status{}
	for _, b := range resp.Backends {
		byName[b.Name] = b
	}
	assert.True(t, byName["parler"].Available)
	assert.False(t, byName["canary"].Available)
	assert.Equal(t, "未配置", byName["canary"].Reason)
	assert.True(t, byName["fish"].Available)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSelectBackend(t *testing.T) {
	backends := []tts.Status{
		{Name: "parler", Available: false},
		{Name: "canary", Available: true},
		{Name: "fish", Available: true},
	}
	assert.Equal(t, "fish", selectBackend(backends, "fish").Name)
	assert.Equal(t, "canary", selectBackend(backends, "parler").Name)
	assert.Equal(t, "parler", selectBackend(backends[:1], "fish").Name)
	assert.Equal(t, "", selectBackend(nil, "parler").Name)
}

func TestRun_Shutdown(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Listen = "127.0.0.1:0" })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
