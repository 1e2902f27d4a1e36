package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks reports every event as a debug-level log line.
// It implements PipelineHooks, CacheHooks and HTTPHooks.
type LogHooks struct {
	logger *log.Logger
}

// NewLogHooks returns hooks that log to logger, prefixed "obs".
func NewLogHooks(logger *log.Logger) *LogHooks {
	if logger == nil {
		logger = log.Default()
	}
	return &LogHooks{logger: logger.WithPrefix("obs")}
}

func (h *LogHooks) OnDecodeStart(_ context.Context, name string) {
	h.logger.Debug("decode start", "name", name)
}

func (h *LogHooks) OnDecodeComplete(_ context.Context, name string, width, height int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("decode failed", "name", name, "duration", d, "err", err)
		return
	}
	h.logger.Debug("decode done", "name", name, "width", width, "height", height, "duration", d)
}

func (h *LogHooks) OnRenderStart(_ context.Context, slices int) {
	h.logger.Debug("render start", "slices", slices)
}

func (h *LogHooks) OnRenderComplete(_ context.Context, width, height int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("render failed", "duration", d, "err", err)
		return
	}
	h.logger.Debug("render done", "width", width, "height", height, "duration", d)
}

func (h *LogHooks) OnExportComplete(_ context.Context, size int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("export failed", "duration", d, "err", err)
		return
	}
	h.logger.Debug("export done", "bytes", size, "duration", d)
}

func (h *LogHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *LogHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *LogHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h *LogHooks) OnCacheError(_ context.Context, keyType string, err error) {
	h.logger.Warn("cache error", "type", keyType, "err", err)
}

func (h *LogHooks) OnRequest(_ context.Context, method, route string) {
	h.logger.Debug("request", "method", method, "route", route)
}

func (h *LogHooks) OnResponse(_ context.Context, method, route string, status int, d time.Duration) {
	h.logger.Debug("response", "method", method, "route", route, "status", status, "duration", d)
}

var (
	_ PipelineHooks = (*LogHooks)(nil)
	_ CacheHooks    = (*LogHooks)(nil)
	_ HTTPHooks     = (*LogHooks)(nil)
)
