package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/matzehuels/fractaliser/pkg/errors"
	"github.com/matzehuels/fractaliser/pkg/pipeline"
	"github.com/matzehuels/fractaliser/pkg/render/sink"
	"github.com/matzehuels/fractaliser/pkg/session"
)

// Response headers set on PNG downloads.
const (
	headerCache = "X-Fractaliser-Cache"
	headerSize  = "X-Fractaliser-Size"
)

type errorBody struct {
	Error   errors.Code `json:"error"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and JSON body. Errors without a code are
// reported as INTERNAL_ERROR without leaking their text.
func writeError(w http.ResponseWriter, err error) {
	if stderrors.Is(err, session.ErrNotFound) {
		err = errors.Wrap(errors.ErrCodeSessionNotFound, err, "session not found")
	}
	code := errors.GetCode(err)
	msg := errors.UserMessage(err)
	if code == "" {
		code = errors.ErrCodeInternal
		msg = "internal error"
	}
	writeJSON(w, errors.HTTPStatus(err), errorBody{Error: code, Message: msg})
}

func errNotFound(format string, args ...any) error {
	return errors.New(errors.ErrCodeNotFound, format, args...)
}

// writePNG sends a rendered result as a download. An empty surface has no
// bytes to send and answers 204.
func writePNG(w http.ResponseWriter, res *pipeline.Result) {
	cacheState := "miss"
	if res.CacheInfo.RenderHit {
		cacheState = "hit"
	}
	h := w.Header()
	h.Set(headerCache, cacheState)
	h.Set(headerSize, strconv.Itoa(res.Width)+"x"+strconv.Itoa(res.Height))
	if len(res.PNG) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.Set("Content-Type", sink.ContentType)
	h.Set("Content-Disposition", `attachment; filename="`+sink.DefaultFilename+`"`)
	h.Set("Content-Length", strconv.Itoa(len(res.PNG)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.PNG)
}
