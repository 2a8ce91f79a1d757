package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/dbtlineage/pkg/cache"
	"github.com/matzehuels/dbtlineage/pkg/graph"
	"github.com/matzehuels/dbtlineage/pkg/integrations/metadata"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
	"github.com/matzehuels/dbtlineage/pkg/pipeline"
	"github.com/matzehuels/dbtlineage/pkg/source"
)

type staticSource struct {
	in    lineage.Input
	err   error
	loads atomic.Int32
}

func (s *staticSource) Load(context.Context, bool) (lineage.Input, error) {
	s.loads.Add(1)
	return s.in, s.err
}

func (s *staticSource) String() string { return "static" }

func testInput() lineage.Input {
	return lineage.Input{
		Models: []lineage.Model{
			{ID: "raw_orders", Name: "raw_orders", Project: "shop", Materialized: "table",
				Columns: []lineage.Column{{Name: "amount"}, {Name: "status"}}},
			{ID: "stg_orders", Name: "stg_orders", Project: "shop", Tags: []string{"staging"},
				Columns: []lineage.Column{{Name: "order_id"}, {Name: "amount"}}},
			{ID: "orders", Name: "orders", Project: "mart", Materialized: "table",
				Columns: []lineage.Column{{Name: "order_id"}, {Name: "revenue"}}},
		},
		Edges: []lineage.RawEdge{
			{Source: lineage.Ref("raw_orders"), Target: lineage.Ref("stg_orders")},
			{Source: lineage.Ref("stg_orders"), Target: lineage.Ref("orders")},
			{Source: lineage.Ref("stg_orders"), Target: lineage.Ref("missing")},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *staticSource, *httptest.Server) {
	t.Helper()
	src := &staticSource{in: testInput()}
	mem, err := cache.NewMemoryCache(64)
	require.NoError(t, err)
	s := New(Config{Source: src, Runner: pipeline.NewRunner(mem, nil, nil)})
	require.NoError(t, s.Reload(context.Background(), false))

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, src, ts
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestHealth(t *testing.T) {
	_, _, ts := newTestServer(t)

	var body healthResponse
	resp := getJSON(t, ts.URL+"/api/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 3, body.Models)
	assert.Equal(t, 2, body.Links)
	assert.NotEmpty(t, body.RunID)
}

func TestRequestID(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp := getJSON(t, ts.URL+"/api/health", nil)
	assert.Len(t, resp.Header.Get(RequestIDHeader), 36)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/models/nope", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "abc-123", body.RequestID)
}

func TestCORS(t *testing.T) {
	_, _, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/models", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGraph(t *testing.T) {
	_, _, ts := newTestServer(t)

	var doc graph.Document
	getJSON(t, ts.URL+"/api/graph", &doc)
	assert.Len(t, doc.Models, 3)
	assert.Len(t, doc.Links, 2)
	assert.Len(t, doc.Positions, 3)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, lineage.WarnUnresolvedModel, doc.Warnings[0].Code)
	assert.Equal(t, 2, doc.Levels["orders"])
}

func TestLineageAndProjects(t *testing.T) {
	_, _, ts := newTestServer(t)

	var links []lineage.Link
	getJSON(t, ts.URL+"/api/lineage", &links)
	require.Len(t, links, 2)
	assert.Equal(t, "raw_orders", links[0].Source)
	assert.Equal(t, []lineage.ColumnLink{{SourceColumn: "amount", TargetColumn: "amount", Confidence: lineage.ConfidenceHeuristic}}, links[0].ColumnLinks)

	var projects []lineage.ProjectSummary
	getJSON(t, ts.URL+"/api/projects", &projects)
	assert.Equal(t, []lineage.ProjectSummary{{Name: "shop", ModelCount: 2}, {Name: "mart", ModelCount: 1}}, projects)
}

func TestModels(t *testing.T) {
	_, _, ts := newTestServer(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"raw_orders", "stg_orders", "orders"}},
		{"?project=shop", []string{"raw_orders", "stg_orders"}},
		{"?project_id=mart", []string{"orders"}},
		{"?search=ORD", []string{"raw_orders", "stg_orders", "orders"}},
		{"?search=stg", []string{"stg_orders"}},
		{"?tag=staging", []string{"stg_orders"}},
		{"?materialized=table", []string{"raw_orders", "orders"}},
		{"?project=shop&materialized=table", []string{"raw_orders"}},
		{"?project=none", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var models []lineage.Model
			getJSON(t, ts.URL+"/api/models"+tt.query, &models)
			ids := []string{}
			for _, m := range models {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestModel(t *testing.T) {
	_, _, ts := newTestServer(t)

	var m lineage.Model
	resp := getJSON(t, ts.URL+"/api/models/orders", &m)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mart", m.Project)

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/models/unknown", http.StatusNotFound, "MODEL_NOT_FOUND"},
		{"/api/models/NaN/lineage", http.StatusBadRequest, "INVALID_MODEL_ID"},
		{"/api/models/unknown/lineage", http.StatusNotFound, "MODEL_NOT_FOUND"},
		{"/api/models/orders/columns/nope", http.StatusNotFound, "NOT_FOUND"},
		{"/api/columns/related?name=", http.StatusBadRequest, "INVALID_INPUT"},
		{"/api/export/xml", http.StatusBadRequest, "INVALID_FORMAT"},
		{"/api/render.png", http.StatusBadRequest, "INVALID_FORMAT"},
		{"/api/render.dot?leveling=sideways", http.StatusBadRequest, "INVALID_LEVELING"},
		{"/api/render.dot?detailed=maybe", http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var body errorBody
			resp := getJSON(t, ts.URL+tt.path, &body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestModelLineage(t *testing.T) {
	_, _, ts := newTestServer(t)

	var n lineage.Neighborhood
	getJSON(t, ts.URL+"/api/models/stg_orders/lineage", &n)
	assert.Equal(t, "stg_orders", n.Model.ID)
	require.Len(t, n.Upstream, 1)
	require.Len(t, n.Downstream, 1)
	assert.Equal(t, "raw_orders", n.Upstream[0].Model.ID)
	assert.Equal(t, "orders", n.Downstream[0].Model.ID)
}

func TestColumnLineage(t *testing.T) {
	_, _, ts := newTestServer(t)

	var cl lineage.ColumnLineage
	getJSON(t, ts.URL+"/api/models/stg_orders/column-lineage", &cl)
	require.Len(t, cl.Columns, 2)
	assert.Equal(t, lineage.FlexString("stg_orders.amount"), cl.Columns[1].ID)

	up := cl.UpstreamColumns["stg_orders.amount"]
	require.Len(t, up, 1)
	assert.Equal(t, "amount", up[0].Name)
	assert.Equal(t, lineage.FlexString("raw_orders"), up[0].ModelID)
	assert.Equal(t, "shop", up[0].ProjectName)

	assert.Empty(t, cl.DownstreamColumns["stg_orders.amount"])
	assert.Len(t, cl.DownstreamColumns["stg_orders.order_id"], 1)
}

func TestColumnFocus(t *testing.T) {
	_, _, ts := newTestServer(t)

	var body columnFocusResponse
	resp := getJSON(t, ts.URL+"/api/models/stg_orders/columns/AMOUNT", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "amount", body.Trace.Column)
	assert.Len(t, body.Layout.Nodes, 2)
	assert.True(t, body.Layout.Nodes[0].Focus)
}

func TestRelatedColumns(t *testing.T) {
	_, _, ts := newTestServer(t)

	var matches []lineage.ColumnMatch
	getJSON(t, ts.URL+"/api/columns/related?name=order_id", &matches)
	require.Len(t, matches, 2)
	assert.Equal(t, "stg_orders", matches[0].ModelID)
	assert.Equal(t, "orders", matches[1].ModelID)

	getJSON(t, ts.URL+"/api/columns/related?name=nothing", &matches)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestExport(t *testing.T) {
	_, _, ts := newTestServer(t)

	for _, tt := range []struct{ format, contentType, file string }{
		{"json", "application/json", "dbt_metadata_export.json"},
		{"yaml", "application/yaml", "dbt_metadata_export.yaml"},
	} {
		t.Run(tt.format, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/export/" + tt.format)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), tt.contentType)
			assert.Contains(t, resp.Header.Get("Content-Disposition"), tt.file)
			assert.Contains(t, string(body), "metadata_version")
		})
	}
}

func TestRenderDOT(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/render.dot?show_columns=true")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/vnd.graphviz", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(body), "digraph"))
	assert.Contains(t, string(body), "amount -> amount")
}

func TestRenderRelayout(t *testing.T) {
	_, _, ts := newTestServer(t)

	get := func(query string) string {
		resp, err := http.Get(ts.URL + "/api/render.json" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	var base, wide graph.Document
	require.NoError(t, json.Unmarshal([]byte(get("")), &base))
	require.NoError(t, json.Unmarshal([]byte(get("?horizontal_spacing=100&offset_x=10")), &wide))

	assert.Equal(t, -25.0, base.Positions["orders"].X)
	assert.Equal(t, -40.0, wide.Positions["orders"].X)
	assert.Equal(t, base.Levels, wide.Levels)
}

func TestNonFiniteSpacing(t *testing.T) {
	_, _, ts := newTestServer(t)
	body := `{"edges": [{"source": {"id": "x", "name": "x"}, "target": {"id": "y", "name": "y"}}]}`

	for _, q := range []string{"horizontal_spacing=Inf", "vertical_spacing=NaN", "offset_x=-Inf", "offset_y=NaN"} {
		t.Run(q, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/assemble?"+q, "application/json", strings.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			resp, err = http.Get(ts.URL + "/api/render.dot?" + q)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAssemble(t *testing.T) {
	s, _, ts := newTestServer(t)

	body := `{"edges": [{"source": {"id": "x", "name": "x"}, "target": {"id": "y", "name": "y"}}]}`
	resp, err := http.Post(ts.URL+"/api/assemble?horizontal_spacing=100", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc graph.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Len(t, doc.Models, 2)
	assert.Equal(t, 50.0, doc.Positions["x"].X)

	// server state is untouched
	assert.Equal(t, 3, s.current().graph.ModelCount())
}

func TestAssembleYAML(t *testing.T) {
	_, _, ts := newTestServer(t)

	body := "edges:\n  - source: {id: a, name: a}\n    target: {id: b, name: b}\n"
	resp, err := http.Post(ts.URL+"/api/assemble", "application/yaml", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAssembleInvalidBody(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/assemble", "application/json", strings.NewReader("{broken"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefresh(t *testing.T) {
	s, src, ts := newTestServer(t)

	src.in.Edges = src.in.Edges[:1]
	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body refreshResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Links)
	assert.Equal(t, 0, body.Warnings)
	assert.EqualValues(t, 2, src.loads.Load())
	assert.Equal(t, 1, s.current().graph.LinkCount())
}

func TestReloadFailureKeepsState(t *testing.T) {
	s, src, ts := newTestServer(t)

	src.err = errors.New("metadata service down")
	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 3, s.current().graph.ModelCount())
}

func TestEmptyServer(t *testing.T) {
	s := New(Config{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var models []lineage.Model
	getJSON(t, ts.URL+"/api/models", &models)
	assert.NotNil(t, models)
	assert.Empty(t, models)

	assert.Error(t, s.Reload(context.Background(), false))
}

// The column-lineage endpoint speaks the metadata client's wire format, so
// one server can feed another.
func TestServerAsMetadataSource(t *testing.T) {
	_, _, ts := newTestServer(t)

	client, err := metadata.NewClient(nil, ts.URL, time.Minute)
	require.NoError(t, err)
	in, err := client.FetchInput(context.Background(), false)
	require.NoError(t, err)

	assert.Len(t, in.Models, 3)
	require.Len(t, in.Edges, 2)
	g, warnings := lineage.Assemble(in.Edges, in.Options()...)
	assert.Empty(t, warnings)
	link, ok := g.Link("raw_orders", "stg_orders")
	require.True(t, ok)
	assert.Equal(t, "amount", link.ColumnLinks[0].SourceColumn)
}

func writeManifest(t *testing.T, dir string, models ...string) {
	t.Helper()
	nodes := make(map[string]any, len(models))
	for i, name := range models {
		node := map[string]any{"resource_type": "model", "package_name": "shop", "name": name}
		if i > 0 {
			node["depends_on"] = map[string]any{"nodes": []string{"model.shop." + models[i-1]}}
		}
		nodes["model.shop."+name] = node
	}
	data, err := json.Marshal(map[string]any{"nodes": nodes})
	require.NoError(t, err)
	path := filepath.Join(dir, source.ManifestPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestWatchDBTProject(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "stg_orders", "orders")

	s := New(Config{Source: source.DBTProject{Dir: dir}, Runner: pipeline.NewRunner(nil, nil, nil)})
	require.NoError(t, s.Reload(context.Background(), false))
	assert.Equal(t, 2, s.current().graph.ModelCount())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, 20*time.Millisecond) }()
	time.Sleep(100 * time.Millisecond)

	writeManifest(t, dir, "stg_orders", "orders", "revenue")
	assert.Eventually(t, func() bool {
		_, ok := s.current().graph.Link("shop_orders", "shop_revenue")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchNeedsLocalSource(t *testing.T) {
	s, _, _ := newTestServer(t)
	assert.Error(t, s.Watch(context.Background(), time.Millisecond))
}

func TestListenAndServeShutdown(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
