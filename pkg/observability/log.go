package observability

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks writes every event to a logger at debug level. Failures are
// logged at warn level. It implements all three hook interfaces.
type LogHooks struct {
	logger *log.Logger
}

// NewLogHooks returns hooks that log to logger. A nil logger uses the
// charmbracelet/log default.
func NewLogHooks(logger *log.Logger) *LogHooks {
	if logger == nil {
		logger = log.Default()
	}
	return &LogHooks{logger: logger.WithPrefix("hooks")}
}

func (h *LogHooks) OnAssembleStart(_ context.Context, edgeCount int) {
	h.logger.Debug("assemble start", "edges", edgeCount)
}

func (h *LogHooks) OnAssembleComplete(_ context.Context, modelCount, linkCount, warningCount int, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("assemble failed", "err", err, "duration", d)
		return
	}
	h.logger.Debug("assemble complete", "models", modelCount, "links", linkCount, "warnings", warningCount, "duration", d)
}

func (h *LogHooks) OnLayoutStart(_ context.Context, leveling string, modelCount int) {
	h.logger.Debug("layout start", "leveling", leveling, "models", modelCount)
}

func (h *LogHooks) OnLayoutComplete(_ context.Context, leveling string, depth int, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("layout failed", "leveling", leveling, "err", err)
		return
	}
	h.logger.Debug("layout complete", "leveling", leveling, "depth", depth, "duration", d)
}

func (h *LogHooks) OnRenderStart(_ context.Context, formats []string) {
	h.logger.Debug("render start", "formats", strings.Join(formats, ","))
}

func (h *LogHooks) OnRenderComplete(_ context.Context, formats []string, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("render failed", "formats", strings.Join(formats, ","), "err", err)
		return
	}
	h.logger.Debug("render complete", "formats", strings.Join(formats, ","), "duration", d)
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

func (h *LogHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("request", "method", method, "host", host, "path", path)
}

func (h *LogHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("response", "method", method, "host", host, "path", path, "status", status, "duration", d)
}

func (h *LogHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Warn("request failed", "method", method, "host", host, "path", path, "err", err)
}

var (
	_ PipelineHooks = (*LogHooks)(nil)
	_ CacheHooks    = (*LogHooks)(nil)
	_ HTTPHooks     = (*LogHooks)(nil)
)
