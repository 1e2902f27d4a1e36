package server

import (
	"encoding/json"
	stderrors "errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/fractaliser/pkg/buildinfo"
	"github.com/matzehuels/fractaliser/pkg/errors"
	"github.com/matzehuels/fractaliser/pkg/pipeline"
	"github.com/matzehuels/fractaliser/pkg/render"
	"github.com/matzehuels/fractaliser/pkg/render/sink"
	"github.com/matzehuels/fractaliser/pkg/session"
	"github.com/matzehuels/fractaliser/pkg/source"
)

// =============================================================================
// Views
// =============================================================================

type rangeView struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type defaultsView struct {
	Params   render.Params        `json:"params"`
	Bounds   map[string]rangeView `json:"bounds"`
	Filename string               `json:"filename"`
	MaxBytes int64                `json:"max_upload_bytes"`
}

type sourceView struct {
	Name   string        `json:"name"`
	Format source.Format `json:"format"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Bytes  int64         `json:"bytes"`
	Hash   string        `json:"hash"`
}

type fitView struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type surfaceView struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Fit    fitView `json:"fit"`
}

type sessionView struct {
	ID         string          `json:"id"`
	Params     render.Params   `json:"params"`
	Viewport   render.Viewport `json:"viewport"`
	Generation uint64          `json:"generation"`
	Source     sourceView      `json:"source"`
	Surface    surfaceView     `json:"surface"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

func (s *Server) viewSession(sess *session.Session) sessionView {
	v := sessionView{
		ID:         sess.ID,
		Params:     sess.Params,
		Viewport:   sess.Viewport,
		Generation: sess.Generation,
		ExpiresAt:  sess.ExpiresAt,
	}
	if src := sess.Source; src != nil {
		v.Source = sourceView{
			Name:   src.Name,
			Format: src.Format,
			Width:  src.Width,
			Height: src.Height,
			Bytes:  src.Size,
			Hash:   src.Hash,
		}
		opts := s.sessionOptions(sess)
		rect, w, h := render.SurfaceSize(src.Width, src.Height, opts.ViewportFor(src.Width, src.Height))
		v.Surface = surfaceView{
			Width:  w,
			Height: h,
			Fit:    fitView{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height},
		}
	}
	return v
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	})
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, defaultsView{
		Params: render.DefaultParams(),
		Bounds: map[string]rangeView{
			"slices":     {Min: render.MinSlices, Max: render.MaxSlices},
			"blur":       {Min: render.MinBlur, Max: render.MaxBlur},
			"brightness": {Min: render.MinBrightness, Max: render.MaxBrightness},
		},
		Filename: sink.DefaultFilename,
		MaxBytes: s.cfg.MaxUploadBytes,
	})
}

// handleRender renders an upload in one shot. Form fields override the
// configured parameters and viewport.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	src, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := s.baseOptions()
	if opts.Params, err = formParams(r, opts.Params); err != nil {
		writeError(w, err)
		return
	}
	if opts.Viewport, err = formViewport(r, opts.Viewport); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.runner.Execute(r.Context(), src, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writePNG(w, res)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	src, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	base := s.baseOptions()
	params, err := formParams(r, base.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	vp, err := formViewport(r, base.Viewport)
	if err != nil {
		writeError(w, err)
		return
	}

	sess := session.New(src, params, vp, s.cfg.SessionTTL)
	if err := s.sessions.Set(r.Context(), sess); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Debug("session created", "id", sess.ID, "source", src.Name)
	w.Header().Set("Location", "/api/sessions/"+sess.ID)
	writeJSON(w, http.StatusCreated, s.viewSession(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewSession(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// paramsPatch holds the fields a PATCH may change. Absent fields keep
// their current value.
type paramsPatch struct {
	Slices     *int     `json:"slices"`
	Blur       *float64 `json:"blur"`
	Brightness *int     `json:"brightness"`
}

func (p paramsPatch) apply(cur render.Params) render.Params {
	if p.Slices != nil {
		cur.SliceCount = *p.Slices
	}
	if p.Blur != nil {
		cur.BlurRadius = *p.Blur
	}
	if p.Brightness != nil {
		cur.BrightnessPercent = *p.Brightness
	}
	return cur
}

func (s *Server) handlePatchParams(w http.ResponseWriter, r *http.Request) {
	var patch paramsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.sessions.Update(r.Context(), chi.URLParam(r, "id"), func(sess *session.Session) error {
		next := patch.apply(sess.Params)
		if err := next.Validate(); err != nil {
			return err
		}
		sess.SetParams(next)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewSession(sess))
}

type viewportPatch struct {
	Width      *float64 `json:"width"`
	Height     *float64 `json:"height"`
	PixelRatio *float64 `json:"pixel_ratio"`
}

func (s *Server) handlePatchViewport(w http.ResponseWriter, r *http.Request) {
	var patch viewportPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.sessions.Update(r.Context(), chi.URLParam(r, "id"), func(sess *session.Session) error {
		vp := sess.Viewport
		if patch.Width != nil {
			vp.Width = *patch.Width
		}
		if patch.Height != nil {
			vp.Height = *patch.Height
		}
		if patch.PixelRatio != nil {
			vp.PixelRatio = *patch.PixelRatio
		}
		if err := validateViewport(vp); err != nil {
			return err
		}
		sess.Viewport = vp
		sess.Generation++
		sess.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewSession(sess))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Update(r.Context(), chi.URLParam(r, "id"), func(sess *session.Session) error {
		sess.Reset()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewSession(sess))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.runner.Execute(r.Context(), sess.Source, s.sessionOptions(sess))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(sess.ID+"-"+strconv.FormatUint(sess.Generation, 10)))
	writePNG(w, res)
}

// =============================================================================
// Helpers
// =============================================================================

// baseOptions returns a copy of the configured options with unset
// parameters replaced by the defaults.
func (s *Server) baseOptions() pipeline.Options {
	opts := s.cfg.Options
	if opts.Params == (render.Params{}) {
		opts.Params = render.DefaultParams()
	}
	return opts
}

func (s *Server) sessionOptions(sess *session.Session) pipeline.Options {
	opts := s.baseOptions()
	opts.Params = sess.Params
	opts.Viewport = sess.Viewport
	return opts
}

// readUpload decodes the multipart "image" field, enforcing the upload limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*source.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, errors.New(errors.ErrCodePayloadTooLarge, "upload exceeds %d bytes", s.cfg.MaxUploadBytes)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "expected a multipart form upload")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "missing form file %q", "image")
	}
	defer file.Close()

	return s.runner.Decode(r.Context(), file, errors.SanitizeFilename(header.Filename))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid JSON body")
	}
	return nil
}

// formParams overlays the slices, blur and brightness form fields on p.
func formParams(r *http.Request, p render.Params) (render.Params, error) {
	var err error
	if p.SliceCount, err = formInt(r, "slices", p.SliceCount); err != nil {
		return p, err
	}
	if p.BlurRadius, err = formFloat(r, "blur", p.BlurRadius); err != nil {
		return p, err
	}
	if p.BrightnessPercent, err = formInt(r, "brightness", p.BrightnessPercent); err != nil {
		return p, err
	}
	return p, p.Validate()
}

// formViewport overlays the width, height and scale form fields on vp.
func formViewport(r *http.Request, vp render.Viewport) (render.Viewport, error) {
	var err error
	if vp.Width, err = formFloat(r, "width", vp.Width); err != nil {
		return vp, err
	}
	if vp.Height, err = formFloat(r, "height", vp.Height); err != nil {
		return vp, err
	}
	if vp.PixelRatio, err = formFloat(r, "scale", vp.PixelRatio); err != nil {
		return vp, err
	}
	return vp, validateViewport(vp)
}

func validateViewport(vp render.Viewport) error {
	if vp.Width < 0 || vp.Height < 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "viewport %gx%g must not be negative", vp.Width, vp.Height)
	}
	if vp.PixelRatio < 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "pixel ratio %g must not be negative", vp.PixelRatio)
	}
	return nil
}

func formInt(r *http.Request, name string, def int) (int, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, errors.New(errors.ErrCodeInvalidParameter, "%s must be an integer, got %q", name, v)
	}
	return n, nil
}

func formFloat(r *http.Request, name string, def float64) (float64, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def, errors.New(errors.ErrCodeInvalidParameter, "%s must be a number, got %q", name, v)
	}
	return f, nil
}
