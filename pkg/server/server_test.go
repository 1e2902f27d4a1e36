package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fractaliser/pkg/cache"
	"github.com/matzehuels/fractaliser/pkg/errors"
	"github.com/matzehuels/fractaliser/pkg/pipeline"
	"github.com/matzehuels/fractaliser/pkg/render"
	"github.com/matzehuels/fractaliser/pkg/render/sink"
	"github.com/matzehuels/fractaliser/pkg/session"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// upload builds a multipart body with the image field and extra form values.
func upload(t *testing.T, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		fw, err := mw.CreateFormFile("image", "../photo one.png")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

type testServer struct {
	*Server
	store *session.MemoryStore
	cache *cache.MemoryCache
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	logger := log.New(io.Discard)
	c := cache.NewMemoryCache(16)
	store := session.NewMemoryStore()
	runner := pipeline.NewRunner(c, nil, logger)
	t.Cleanup(func() { _ = runner.Close() })
	return &testServer{
		Server: New(runner, store, cfg, logger),
		store:  store,
		cache:  c,
	}
}

func (ts *testServer) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v (%q)", err, rec.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Config{})
	rec := ts.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestDefaults(t *testing.T) {
	ts := newTestServer(t, Config{MaxUploadBytes: 1 << 20})
	rec := ts.do(t, http.MethodGet, "/api/defaults", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got defaultsView
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Params != render.DefaultParams() {
		t.Errorf("params = %+v", got.Params)
	}
	if got.Bounds["slices"] != (rangeView{Min: 10, Max: 100}) {
		t.Errorf("slices bounds = %+v", got.Bounds["slices"])
	}
	if got.Filename != sink.DefaultFilename || got.MaxBytes != 1<<20 {
		t.Errorf("filename=%q max=%d", got.Filename, got.MaxBytes)
	}
}

func TestRender(t *testing.T) {
	ts := newTestServer(t, Config{})
	data := pngBytes(t, 40, 20)

	body, ct := upload(t, data, map[string]string{"slices": "10", "width": "80", "height": "80", "scale": "2"})
	rec := ts.do(t, http.MethodPost, "/api/render", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != sink.ContentType {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="image-fractalised.png"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := rec.Header().Get(headerCache); got != "miss" {
		t.Errorf("cache = %q, want miss", got)
	}

	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("response is not a PNG: %v", err)
	}
	// 40x20 contained in 80x80 is 80x40, doubled by the pixel ratio.
	if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 80 {
		t.Errorf("size = %dx%d, want 160x80", b.Dx(), b.Dy())
	}
	if got := rec.Header().Get(headerSize); got != "160x80" {
		t.Errorf("size header = %q", got)
	}

	body, ct = upload(t, data, map[string]string{"slices": "10", "width": "80", "height": "80", "scale": "2"})
	rec = ts.do(t, http.MethodPost, "/api/render", body, ct)
	if got := rec.Header().Get(headerCache); got != "hit" {
		t.Errorf("second render cache = %q, want hit", got)
	}
}

func TestRenderDefaultsToSourceSize(t *testing.T) {
	ts := newTestServer(t, Config{})
	body, ct := upload(t, pngBytes(t, 30, 12), nil)
	rec := ts.do(t, http.MethodPost, "/api/render", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 30 || b.Dy() != 12 {
		t.Errorf("size = %dx%d, want 30x12", b.Dx(), b.Dy())
	}
}

func TestRenderRejects(t *testing.T) {
	ts := newTestServer(t, Config{MaxUploadBytes: 4 << 10})
	small := pngBytes(t, 8, 8)

	tests := []struct {
		name   string
		data   []byte
		fields map[string]string
		status int
		code   errors.Code
	}{
		{"missing image", nil, map[string]string{"slices": "20"}, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"not an image", []byte("hello, world"), nil, http.StatusUnsupportedMediaType, errors.ErrCodeInvalidFormat},
		{"gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"), nil, http.StatusUnsupportedMediaType, errors.ErrCodeInvalidFormat},
		{"slices out of range", small, map[string]string{"slices": "5"}, http.StatusBadRequest, errors.ErrCodeInvalidParameter},
		{"blur out of range", small, map[string]string{"blur": "11"}, http.StatusBadRequest, errors.ErrCodeInvalidParameter},
		{"brightness not a number", small, map[string]string{"brightness": "bright"}, http.StatusBadRequest, errors.ErrCodeInvalidParameter},
		{"negative width", small, map[string]string{"width": "-1"}, http.StatusBadRequest, errors.ErrCodeInvalidParameter},
		{"too large", bytes.Repeat([]byte{0x89}, 8<<10), nil, http.StatusRequestEntityTooLarge, errors.ErrCodePayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := upload(t, tt.data, tt.fields)
			rec := ts.do(t, http.MethodPost, "/api/render", body, ct)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Error != tt.code {
				t.Errorf("code = %q, want %q", got.Error, tt.code)
			}
		})
	}
}

func TestRenderNotMultipart(t *testing.T) {
	ts := newTestServer(t, Config{})
	rec := ts.do(t, http.MethodPost, "/api/render", strings.NewReader("{}"), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Error != errors.ErrCodeInvalidInput {
		t.Errorf("code = %q", got.Error)
	}
}

func createSession(t *testing.T, ts *testServer, fields map[string]string) sessionView {
	t.Helper()
	body, ct := upload(t, pngBytes(t, 50, 25), fields)
	rec := ts.do(t, http.MethodPost, "/api/sessions", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var v sessionView
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if rec.Header().Get("Location") != "/api/sessions/"+v.ID {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	return v
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionView {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var v sessionView
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, Config{})
	created := createSession(t, ts, map[string]string{"width": "100", "height": "100"})

	if created.Params != render.DefaultParams() {
		t.Errorf("params = %+v, want defaults", created.Params)
	}
	if created.Source.Name != "photo_one.png" || created.Source.Width != 50 || created.Source.Format != "png" {
		t.Errorf("source = %+v", created.Source)
	}
	if created.Surface.Width != 100 || created.Surface.Height != 50 || created.Surface.Fit.Y != 25 {
		t.Errorf("surface = %+v", created.Surface)
	}
	if ts.store.Len() != 1 {
		t.Errorf("store len = %d", ts.store.Len())
	}

	base := "/api/sessions/" + created.ID
	got := decodeSession(t, ts.do(t, http.MethodGet, base, nil, ""))
	if got.ID != created.ID || got.Generation != 0 {
		t.Errorf("get = %+v", got)
	}

	patched := decodeSession(t, ts.do(t, http.MethodPatch, base+"/params",
		strings.NewReader(`{"slices": 40, "brightness": 150}`), "application/json"))
	want := render.Params{SliceCount: 40, BlurRadius: 0, BrightnessPercent: 150}
	if patched.Params != want || patched.Generation != 1 {
		t.Errorf("patched = %+v gen %d, want %+v gen 1", patched.Params, patched.Generation, want)
	}

	rec := ts.do(t, http.MethodGet, base+"/download", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("missing ETag")
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("download size = %dx%d", b.Dx(), b.Dy())
	}

	reset := decodeSession(t, ts.do(t, http.MethodPost, base+"/reset", nil, ""))
	if reset.Params != render.DefaultParams() || reset.Generation != 2 {
		t.Errorf("reset = %+v gen %d", reset.Params, reset.Generation)
	}

	rec = ts.do(t, http.MethodDelete, base, nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, base, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Error != errors.ErrCodeSessionNotFound {
		t.Errorf("code = %q", got.Error)
	}
}

func TestPatchParamsRejects(t *testing.T) {
	ts := newTestServer(t, Config{})
	v := createSession(t, ts, nil)
	base := "/api/sessions/" + v.ID + "/params"

	tests := []struct {
		name   string
		body   string
		status int
		code   errors.Code
	}{
		{"out of range", `{"slices": 101}`, http.StatusBadRequest, errors.ErrCodeInvalidParameter},
		{"unknown field", `{"contrast": 3}`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"malformed", `{"slices":`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"empty", ``, http.StatusBadRequest, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPatch, base, strings.NewReader(tt.body), "application/json")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Error != tt.code {
				t.Errorf("code = %q, want %q", got.Error, tt.code)
			}
		})
	}

	// Rejected patches leave the session untouched.
	got := decodeSession(t, ts.do(t, http.MethodGet, "/api/sessions/"+v.ID, nil, ""))
	if got.Params != render.DefaultParams() || got.Generation != 0 {
		t.Errorf("session changed: %+v gen %d", got.Params, got.Generation)
	}
}

func TestPatchViewport(t *testing.T) {
	ts := newTestServer(t, Config{})
	v := createSession(t, ts, nil)
	base := "/api/sessions/" + v.ID + "/viewport"

	got := decodeSession(t, ts.do(t, http.MethodPatch, base,
		strings.NewReader(`{"width": 25, "height": 25, "pixel_ratio": 2}`), "application/json"))
	if got.Surface.Width != 50 || got.Surface.Height != 25 {
		t.Errorf("surface = %+v, want 50x25", got.Surface)
	}

	rec := ts.do(t, http.MethodPatch, base, strings.NewReader(`{"width": -4}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative width status = %d", rec.Code)
	}
}

func TestUnknownSession(t *testing.T) {
	ts := newTestServer(t, Config{})
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/sessions/nope", ""},
		{http.MethodPatch, "/api/sessions/nope/params", `{"slices": 30}`},
		{http.MethodPost, "/api/sessions/nope/reset", ""},
		{http.MethodGet, "/api/sessions/nope/download", ""},
	} {
		rec := ts.do(t, tc.method, tc.path, strings.NewReader(tc.body), "application/json")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, rec.Code)
		}
	}
}

func TestSessionExpiry(t *testing.T) {
	ts := newTestServer(t, Config{SessionTTL: time.Millisecond})
	v := createSession(t, ts, nil)
	time.Sleep(5 * time.Millisecond)

	rec := ts.do(t, http.MethodGet, "/api/sessions/"+v.ID, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expired session status = %d", rec.Code)
	}
}

func TestConfiguredOptions(t *testing.T) {
	ts := newTestServer(t, Config{Options: pipeline.Options{
		Params:   render.Params{SliceCount: 50, BlurRadius: 1, BrightnessPercent: 80},
		Viewport: render.Viewport{Width: 20, Height: 20},
	}})
	v := createSession(t, ts, nil)
	if v.Params.SliceCount != 50 || v.Params.BrightnessPercent != 80 {
		t.Errorf("params = %+v, want configured defaults", v.Params)
	}
	if v.Surface.Width != 20 || v.Surface.Height != 10 {
		t.Errorf("surface = %+v, want 20x10", v.Surface)
	}

	// Reset ignores configured defaults and restores the built-in ones.
	got := decodeSession(t, ts.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/reset", nil, ""))
	if got.Params != render.DefaultParams() {
		t.Errorf("reset params = %+v", got.Params)
	}
}

func TestNotFoundAndMethod(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec := ts.do(t, http.MethodGet, "/api/nothing", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown route = %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Error != errors.ErrCodeNotFound {
		t.Errorf("code = %q", got.Error)
	}

	rec = ts.do(t, http.MethodGet, "/api/render", nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/render = %d", rec.Code)
	}
}

func TestWriteErrorHidesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, io.ErrUnexpectedEOF)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeError(t, rec)
	if got.Error != errors.ErrCodeInternal || strings.Contains(got.Message, "EOF") {
		t.Errorf("body = %+v", got)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	runner := pipeline.NewRunner(nil, nil, logger)
	s := New(runner, nil, Config{}, logger)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	out := buf.String()
	if !strings.Contains(out, "request") || !strings.Contains(out, "/healthz") || !strings.Contains(out, "status=200") {
		t.Errorf("log = %q", out)
	}
}
