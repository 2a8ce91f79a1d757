package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/dbtlineage/pkg/buildinfo"
	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/layout"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
	"github.com/matzehuels/dbtlineage/pkg/pipeline"
)

// maxInputBytes bounds POST /api/assemble bodies.
const maxInputBytes = 32 << 20

type healthResponse struct {
	Status   string    `json:"status"`
	Version  string    `json:"version"`
	Models   int       `json:"models"`
	Links    int       `json:"links"`
	RunID    string    `json:"run_id,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.current()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Version:  buildinfo.Version,
		Models:   st.graph.ModelCount(),
		Links:    st.graph.LinkCount(),
		RunID:    st.runID,
		LoadedAt: st.loadedAt,
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.current().doc)
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.current().graph.Links())
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.current().graph.Projects())
}

// handleModels lists models. project_id is accepted as an alias of project.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := lineage.Filter{
		Project:      q.Get("project"),
		Search:       q.Get("search"),
		Tag:          q.Get("tag"),
		Materialized: q.Get("materialized"),
	}
	if f.Project == "" {
		f.Project = q.Get("project_id")
	}

	models := []lineage.Model{}
	for _, m := range s.current().graph.Models() {
		if f.Matches(m) {
			models = append(models, m)
		}
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	m, _, err := s.lookupModel(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleModelLineage(w http.ResponseWriter, r *http.Request) {
	m, st, err := s.lookupModel(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := st.graph.Neighborhood(m.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleColumnLineage reports one hop of column lineage for every column of
// a model, keyed by column id ("<model>.<column>").
func (s *Server) handleColumnLineage(w http.ResponseWriter, r *http.Request) {
	m, st, err := s.lookupModel(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, columnLineage(st.graph, m))
}

func columnLineage(g *lineage.Graph, m lineage.Model) lineage.ColumnLineage {
	out := lineage.ColumnLineage{
		Columns:           make([]lineage.ColumnRef, 0, len(m.Columns)),
		UpstreamColumns:   make(map[string][]lineage.RelatedColumn, len(m.Columns)),
		DownstreamColumns: make(map[string][]lineage.RelatedColumn, len(m.Columns)),
	}
	related := func(refs []lineage.ColumnRefAt) []lineage.RelatedColumn {
		rc := make([]lineage.RelatedColumn, 0, len(refs))
		for _, ref := range refs {
			other, _ := g.Model(ref.ModelID)
			rc = append(rc, lineage.RelatedColumn{
				ID:          lineage.FlexString(layout.ColumnKey(ref.ModelID, ref.Column)),
				Name:        ref.Column,
				ModelID:     lineage.FlexString(ref.ModelID),
				ModelName:   other.Name,
				ProjectName: other.Project,
				Confidence:  ref.Confidence,
			})
		}
		return rc
	}

	for _, c := range m.Columns {
		id := layout.ColumnKey(m.ID, c.Name)
		out.Columns = append(out.Columns, lineage.ColumnRef{
			ID:           lineage.FlexString(id),
			Name:         c.Name,
			DataType:     c.DataType,
			IsPrimaryKey: c.IsPrimaryKey,
		})
		tr, err := g.ColumnTrace(m.ID, c.Name)
		if err != nil {
			continue
		}
		out.UpstreamColumns[id] = related(tr.Upstream)
		out.DownstreamColumns[id] = related(tr.Downstream)
	}
	return out
}

type columnFocusResponse struct {
	Trace  lineage.ColumnTrace `json:"trace"`
	Layout layout.ColumnLayout `json:"layout"`
}

func (s *Server) handleColumnFocus(w http.ResponseWriter, r *http.Request) {
	m, st, err := s.lookupModel(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	column, err := pathParam(r, "column")
	if err == nil {
		err = errs.ValidateColumnName(column)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tr, err := st.graph.ColumnTrace(m.ID, column)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, columnFocusResponse{Trace: tr, Layout: layout.ColumnFocus(tr)})
}

func (s *Server) handleRelatedColumns(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if err := errs.ValidateColumnName(name); err != nil {
		s.writeError(w, r, err)
		return
	}
	matches := s.current().graph.RelatedColumns(name)
	if matches == nil {
		matches = []lineage.ColumnMatch{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := graph.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := graph.MarshalExport(graph.NewExport(s.current().graph), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+graph.ExportFilename(f)+`"`)
	writeBytes(w, f.ContentType(), data)
}

var renderContentTypes = map[string]string{
	pipeline.FormatJSON: "application/json",
	pipeline.FormatYAML: "application/yaml",
	pipeline.FormatDOT:  "text/vnd.graphviz",
	pipeline.FormatSVG:  "image/svg+xml",
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(chi.URLParam(r, "format"))
	opts, err := s.queryOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts.Formats = []string{format}
	if err := opts.ValidateForRender(); err != nil {
		s.writeError(w, r, err)
		return
	}

	st := s.current()
	doc := st.doc
	if hasLayoutParams(r) {
		res, err := s.runner.ComputeLayout(r.Context(), st.graph, opts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		doc = graph.NewDocument(st.graph, res, st.doc.Warnings)
	}

	artifacts, err := s.runner.Render(r.Context(), doc, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeBytes(w, renderContentTypes[format], artifacts[format])
}

// handleAssemble runs an input document from the request body through the
// pipeline without touching the server state. YAML bodies are accepted when
// the Content-Type says so.
func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	f := graph.FormatJSON
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		f = graph.FormatYAML
	}
	in, err := graph.ReadInput(http.MaxBytesReader(w, r.Body, maxInputBytes), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opts, err := s.queryOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts.Input = &in
	opts.Formats = []string{pipeline.FormatJSON}

	res, err := s.runner.Execute(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Document)
}

type refreshResponse struct {
	Status   string `json:"status"`
	Models   int    `json:"models"`
	Links    int    `json:"links"`
	Warnings int    `json:"warnings"`
	RunID    string `json:"run_id"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context(), true); err != nil {
		s.writeError(w, r, err)
		return
	}
	st := s.current()
	writeJSON(w, http.StatusOK, refreshResponse{
		Status:   "ok",
		Models:   st.graph.ModelCount(),
		Links:    st.graph.LinkCount(),
		Warnings: len(st.doc.Warnings),
		RunID:    st.runID,
	})
}

// =============================================================================
// Request helpers
// =============================================================================

func pathParam(r *http.Request, name string) (string, error) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", errs.New(errs.ErrCodeInvalidInput, "invalid %s in path", name)
	}
	return v, nil
}

// lookupModel resolves the {id} path parameter against the current state.
func (s *Server) lookupModel(r *http.Request) (lineage.Model, *state, error) {
	id, err := pathParam(r, "id")
	if err != nil {
		return lineage.Model{}, nil, errs.New(errs.ErrCodeInvalidModelID, "invalid model id")
	}
	if err := errs.ValidateModelID(id); err != nil {
		return lineage.Model{}, nil, err
	}
	st := s.current()
	m, ok := st.graph.Model(id)
	if !ok {
		return lineage.Model{}, nil, errs.New(errs.ErrCodeModelNotFound, "model %q not found", id)
	}
	return m, st, nil
}

var layoutParams = []string{"leveling", "horizontal_spacing", "vertical_spacing", "offset_x", "offset_y"}

// hasLayoutParams reports whether the request overrides any layout option.
func hasLayoutParams(r *http.Request) bool {
	q := r.URL.Query()
	for _, name := range layoutParams {
		if q.Has(name) {
			return true
		}
	}
	return false
}

// queryOptions overlays layout and render query parameters on the server
// defaults.
func (s *Server) queryOptions(r *http.Request) (pipeline.Options, error) {
	opts := s.cfg.Options
	opts.Input, opts.InputPath, opts.Refresh = nil, "", false
	q := r.URL.Query()

	if v := q.Get("leveling"); v != "" {
		opts.Leveling = v
	}
	floats := []struct {
		name string
		dst  *float64
	}{
		{"horizontal_spacing", &opts.HorizontalSpacing},
		{"vertical_spacing", &opts.VerticalSpacing},
		{"offset_x", &opts.OffsetX},
		{"offset_y", &opts.OffsetY},
	}
	for _, f := range floats {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, errs.New(errs.ErrCodeInvalidInput, "invalid %s: %q", f.name, v)
		}
		*f.dst = n
	}
	bools := []struct {
		name string
		dst  *bool
	}{
		{"show_columns", &opts.ShowColumns},
		{"detailed", &opts.Detailed},
	}
	for _, b := range bools {
		v := q.Get(b.name)
		if v == "" {
			continue
		}
		ok, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errs.New(errs.ErrCodeInvalidInput, "invalid %s: %q", b.name, v)
		}
		*b.dst = ok
	}
	return opts, nil
}
