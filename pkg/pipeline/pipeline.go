// Package pipeline runs the assemble → layout → render pipeline shared by the
// CLI, the HTTP server, and the file watcher.
//
// # Stages
//
//  1. Assemble: load the raw input and build the canonical lineage graph
//  2. Layout: compute hierarchical positions
//  3. Render: produce artifacts (json, yaml, dot, svg)
//
// Each stage is available as a plain function ([Assemble], [ComputeLayout],
// [Render]) and as a cached [Runner] method. Cache keys are content hashes,
// so an unchanged input always hits.
//
// # Usage
//
//	runner := pipeline.NewRunner(c, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    InputPath: "lineage.json",
//	    Formats:   []string{pipeline.FormatSVG},
//	})
//	svg := result.Artifacts[pipeline.FormatSVG]
package pipeline

import (
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dbtlineage/pkg/cache"
	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/layout"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	DefaultLeveling          = string(layout.DefaultLeveling)
	DefaultHorizontalSpacing = layout.DefaultHorizontalSpacing
	DefaultVerticalSpacing   = layout.DefaultVerticalSpacing
	DefaultOffsetX           = layout.DefaultOffsetX
	DefaultOffsetY           = layout.DefaultOffsetY
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatDOT  = "dot"
	FormatSVG  = "svg"
)

// ValidFormats lists the supported output formats in display order.
var ValidFormats = []string{FormatJSON, FormatYAML, FormatDOT, FormatSVG}

// DefaultFormat is rendered when no format is requested.
const DefaultFormat = FormatJSON

// =============================================================================
// Options
// =============================================================================

// Options configures a pipeline run. It decodes from JSON request bodies.
type Options struct {
	// Input. Input wins over InputPath when both are set.
	Input     *lineage.Input `json:"input,omitempty"`
	InputPath string         `json:"input_path,omitempty"`
	Refresh   bool           `json:"refresh,omitempty"`

	// Layout
	Leveling          string  `json:"leveling,omitempty"`
	HorizontalSpacing float64 `json:"horizontal_spacing,omitempty"`
	VerticalSpacing   float64 `json:"vertical_spacing,omitempty"`
	OffsetX           float64 `json:"offset_x,omitempty"`
	OffsetY           float64 `json:"offset_y,omitempty"`

	// Render
	Formats     []string `json:"formats,omitempty"`
	ShowColumns bool     `json:"show_columns,omitempty"`
	Detailed    bool     `json:"detailed,omitempty"`

	Logger *log.Logger `json:"-"`

	validated bool
}

// Result holds the outputs of [Runner.Execute].
type Result struct {
	RunID     string
	Graph     *lineage.Graph
	GraphHash string
	Warnings  []lineage.Warning
	Layout    layout.Result
	Document  graph.Document
	Artifacts map[string][]byte
	Stats     Stats
	CacheInfo CacheInfo
}

// Stats holds sizes and stage timings.
type Stats struct {
	ModelCount      int
	LinkCount       int
	ColumnLinkCount int
	Depth           int
	AssembleTime    time.Duration
	LayoutTime      time.Duration
	RenderTime      time.Duration
}

// CacheInfo records which stages were served from cache.
type CacheInfo struct {
	AssembleHit bool
	LayoutHit   bool
	RenderHit   bool // all requested artifacts were cached
}

// =============================================================================
// Validation
// =============================================================================

// ValidateFormat checks a single output format.
func ValidateFormat(format string) error {
	return errs.ValidateOneOf(errs.ErrCodeInvalidFormat, "format", format, ValidFormats...)
}

// ValidateFormats checks every format.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// ParseFormats splits a comma-separated list, trimming blanks and dropping
// duplicates.
func ParseFormats(s string) ([]string, error) {
	var out []string
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || slices.Contains(out, f) {
			continue
		}
		out = append(out, f)
	}
	return out, ValidateFormats(out)
}

// ValidateAndSetDefaults validates the whole option set and fills defaults.
// Repeated calls are no-ops.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := o.ValidateForAssemble(); err != nil {
		return err
	}
	if err := o.ValidateForRender(); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// ValidateForAssemble requires an input.
func (o *Options) ValidateForAssemble() error {
	if o.Input == nil && o.InputPath == "" {
		return errs.New(errs.ErrCodeInvalidInput, "input or input path is required")
	}
	if o.Input == nil {
		if err := errs.ValidatePath(o.InputPath); err != nil {
			return err
		}
	}
	o.setLogger()
	return nil
}

// SetLayoutDefaults fills zero layout fields.
func (o *Options) SetLayoutDefaults() {
	if o.Leveling == "" {
		o.Leveling = DefaultLeveling
	}
	if o.HorizontalSpacing == 0 {
		o.HorizontalSpacing = DefaultHorizontalSpacing
	}
	if o.VerticalSpacing == 0 {
		o.VerticalSpacing = DefaultVerticalSpacing
	}
	if o.OffsetX == 0 {
		o.OffsetX = DefaultOffsetX
	}
	if o.OffsetY == 0 {
		o.OffsetY = DefaultOffsetY
	}
	o.setLogger()
}

// ValidateForLayout fills layout defaults and checks them.
func (o *Options) ValidateForLayout() error {
	o.SetLayoutDefaults()
	return o.LayoutOptions().Validate()
}

// SetRenderDefaults fills zero render fields.
func (o *Options) SetRenderDefaults() {
	if len(o.Formats) == 0 {
		o.Formats = []string{DefaultFormat}
	}
	o.setLogger()
}

// ValidateForRender fills layout and render defaults and checks them.
func (o *Options) ValidateForRender() error {
	if err := o.ValidateForLayout(); err != nil {
		return err
	}
	o.SetRenderDefaults()
	return ValidateFormats(o.Formats)
}

func (o *Options) setLogger() {
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// LayoutOptions converts to [layout.Options].
func (o *Options) LayoutOptions() layout.Options {
	return layout.Options{
		HorizontalSpacing: o.HorizontalSpacing,
		VerticalSpacing:   o.VerticalSpacing,
		OffsetX:           o.OffsetX,
		OffsetY:           o.OffsetY,
		Leveling:          layout.Leveling(o.Leveling),
	}
}

// LayoutKeyOpts returns the cache key options for the layout stage.
func (o *Options) LayoutKeyOpts() cache.LayoutKeyOpts {
	return cache.LayoutKeyOpts{
		Leveling:          o.Leveling,
		HorizontalSpacing: o.HorizontalSpacing,
		VerticalSpacing:   o.VerticalSpacing,
		OffsetX:           o.OffsetX,
		OffsetY:           o.OffsetY,
	}
}

// ArtifactKeyOpts returns the cache key options for one rendered format.
func (o *Options) ArtifactKeyOpts(format string) cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{
		Format:      format,
		ShowColumns: o.ShowColumns,
		Detailed:    o.Detailed,
	}
}
