package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

// Artifact locations inside a dbt project.
const (
	ManifestPath = "target/manifest.json"
	CatalogPath  = "target/catalog.json"
)

// DBTProject loads lineage from compiled dbt projects.
//
// Dir is either a single project (it contains target/manifest.json) or a
// directory whose non-hidden subdirectories are projects. Projects without a
// manifest are skipped; target/catalog.json is optional and supplies column
// types.
//
// Models, seeds, snapshots and sources become lineage models with the id
// "<package>_<name>" (sources: "<package>_<source>_<name>"). Because ids are
// derived from the owning package, a node that appears in several manifests,
// for example a project installed as a package of another, resolves to one
// model and links the projects together. Edges come from depends_on.nodes;
// nodes without it fall back to the ref() and source() calls in their SQL.
type DBTProject struct {
	Dir string
}

func (p DBTProject) String() string { return p.Dir }

// Projects lists the project directories below Dir in name order.
func (p DBTProject) Projects() ([]string, error) {
	info, err := os.Stat(p.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Wrap(errs.ErrCodeFileNotFound, err, "dbt project directory %s not found", p.Dir)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidPath, err, "stat %s", p.Dir)
	}
	if !info.IsDir() {
		return nil, errs.New(errs.ErrCodeInvalidPath, "%s is not a directory", p.Dir)
	}
	if fileExists(filepath.Join(p.Dir, ManifestPath)) {
		return []string{p.Dir}, nil
	}

	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidPath, err, "read %s", p.Dir)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(p.Dir, e.Name())
		if fileExists(filepath.Join(dir, ManifestPath)) {
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) == 0 {
		return nil, errs.New(errs.ErrCodeFileNotFound, "no %s found under %s", ManifestPath, p.Dir)
	}
	return dirs, nil
}

// WatchPaths returns the manifest and catalog of every project.
func (p DBTProject) WatchPaths() ([]string, error) {
	dirs, err := p.Projects()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, 2*len(dirs))
	for _, dir := range dirs {
		paths = append(paths, filepath.Join(dir, ManifestPath), filepath.Join(dir, CatalogPath))
	}
	return paths, nil
}

func (p DBTProject) Load(ctx context.Context, _ bool) (lineage.Input, error) {
	dirs, err := p.Projects()
	if err != nil {
		return lineage.Input{}, err
	}

	var nodes []dbtNode
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return lineage.Input{}, err
		}
		found, err := readProject(dir)
		if err != nil {
			return lineage.Input{}, err
		}
		nodes = append(nodes, found...)
	}
	return buildInput(nodes), nil
}

// =============================================================================
// Artifact decoding
// =============================================================================

type manifest struct {
	Metadata struct {
		ProjectName string `json:"project_name"`
	} `json:"metadata"`
	Nodes   map[string]manifestNode `json:"nodes"`
	Sources map[string]manifestNode `json:"sources"`
}

type manifestNode struct {
	UniqueID     string   `json:"unique_id"`
	ResourceType string   `json:"resource_type"`
	PackageName  string   `json:"package_name"`
	Name         string   `json:"name"`
	SourceName   string   `json:"source_name"`
	Schema       string   `json:"schema"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	Config       struct {
		Materialized string `json:"materialized"`
		Schema       string `json:"schema"`
	} `json:"config"`
	Columns     ordered[manifestColumn] `json:"columns"`
	Constraints []constraint            `json:"constraints"`
	DependsOn   struct {
		Nodes []string `json:"nodes"`
	} `json:"depends_on"`
	RawCode      string `json:"raw_code"`
	RawSQL       string `json:"raw_sql"`
	CompiledCode string `json:"compiled_code"`
}

type manifestColumn struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	DataType    string       `json:"data_type"`
	Constraints []constraint `json:"constraints"`
}

type constraint struct {
	Type    string   `json:"type"`
	Columns []string `json:"columns"`
}

type catalog struct {
	Nodes   map[string]catalogNode `json:"nodes"`
	Sources map[string]catalogNode `json:"sources"`
}

type catalogNode struct {
	Columns map[string]catalogColumn `json:"columns"`
}

type catalogColumn struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Comment string `json:"comment"`
}

// ordered decodes a JSON object into its entries in document order.
type ordered[T any] []T

func (o *ordered[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return err
		}
		var v T
		if err := dec.Decode(&v); err != nil {
			return err
		}
		*o = append(*o, v)
	}
	_, err := dec.Token()
	return err
}

// dbtNode is a manifest node together with the catalog entry it matched.
type dbtNode struct {
	manifestNode
	catalog *catalogNode
}

func readProject(dir string) ([]dbtNode, error) {
	var m manifest
	if err := readJSON(filepath.Join(dir, ManifestPath), &m); err != nil {
		return nil, err
	}
	var c catalog
	if path := filepath.Join(dir, CatalogPath); fileExists(path) {
		if err := readJSON(path, &c); err != nil {
			return nil, err
		}
	}

	project := m.Metadata.ProjectName
	if project == "" {
		project = filepath.Base(dir)
	}

	var out []dbtNode
	collect := func(nodes map[string]manifestNode, cat map[string]catalogNode) {
		for _, id := range sortedKeys(nodes) {
			n := nodes[id]
			if !lineageResource(n.ResourceType) {
				continue
			}
			if n.UniqueID == "" {
				n.UniqueID = id
			}
			if n.PackageName == "" {
				n.PackageName = project
			}
			dn := dbtNode{manifestNode: n}
			if cn, ok := cat[id]; ok {
				dn.catalog = &cn
			}
			out = append(out, dn)
		}
	}
	collect(m.Nodes, c.Nodes)
	collect(m.Sources, c.Sources)
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.ErrCodeFileNotFound, err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.Wrap(errs.ErrCodeInvalidInput, err, "parse %s", path)
	}
	return nil
}

func lineageResource(t string) bool {
	switch t {
	case "model", "seed", "snapshot", "source":
		return true
	}
	return false
}

// =============================================================================
// Conversion
// =============================================================================

var (
	refPattern    = regexp.MustCompile(`\bref\s*\(\s*['"]([^'"]+)['"]\s*(?:,\s*['"]([^'"]+)['"]\s*)?\)`)
	sourcePattern = regexp.MustCompile(`\bsource\s*\(\s*['"]([^'"]+)['"]\s*,\s*['"]([^'"]+)['"]\s*\)`)
)

// Reference is a ref() or source() call found in model SQL.
type Reference struct {
	// Package is set for two-argument ref() calls.
	Package string
	// Source is set for source() calls.
	Source string
	Name   string
}

// ExtractReferences returns the distinct ref() and source() calls in sql,
// refs first, each in order of appearance.
func ExtractReferences(sql string) []Reference {
	var refs []Reference
	seen := make(map[Reference]bool)
	add := func(r Reference) {
		if !seen[r] {
			seen[r] = true
			refs = append(refs, r)
		}
	}
	for _, m := range refPattern.FindAllStringSubmatch(sql, -1) {
		if m[2] != "" {
			add(Reference{Package: m[1], Name: m[2]})
		} else {
			add(Reference{Name: m[1]})
		}
	}
	for _, m := range sourcePattern.FindAllStringSubmatch(sql, -1) {
		add(Reference{Source: m[1], Name: m[2]})
	}
	return refs
}

// ModelID returns the lineage model id of a dbt node.
func ModelID(pkg, sourceName, name string) string {
	id := projectID(pkg) + "_"
	if sourceName != "" {
		id += sourceName + "_"
	}
	return id + name
}

func projectID(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func buildInput(nodes []dbtNode) lineage.Input {
	in := lineage.Input{Models: []lineage.Model{}, Edges: []lineage.RawEdge{}}

	byUnique := make(map[string]string, len(nodes))
	seen := make(map[string]bool, len(nodes))
	var kept []dbtNode
	for _, n := range nodes {
		id := ModelID(n.PackageName, n.SourceName, n.Name)
		if _, ok := byUnique[n.UniqueID]; !ok {
			byUnique[n.UniqueID] = id
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		kept = append(kept, n)
		in.Models = append(in.Models, toModel(id, n))
	}

	for _, n := range kept {
		target := byUnique[n.UniqueID]
		var sources []string
		if len(n.DependsOn.Nodes) > 0 {
			for _, dep := range n.DependsOn.Nodes {
				if id, ok := byUnique[dep]; ok {
					sources = append(sources, id)
				} else if lineageResource(strings.SplitN(dep, ".", 2)[0]) {
					// unloaded package; assembly reports it as unresolved
					sources = append(sources, dep)
				}
			}
		} else {
			sources = resolveReferences(n, kept)
		}

		done := make(map[string]bool, len(sources))
		for _, src := range sources {
			if done[src] {
				continue
			}
			done[src] = true
			in.Edges = append(in.Edges, lineage.RawEdge{Source: lineage.Ref(src), Target: lineage.Ref(target)})
		}
	}
	return in
}

// resolveReferences maps the SQL references of n to model ids. An unqualified
// ref() prefers a model of the same package and otherwise matches every
// loaded model of that name.
func resolveReferences(n dbtNode, nodes []dbtNode) []string {
	sql := n.RawCode
	if sql == "" {
		sql = n.RawSQL
	}
	if sql == "" {
		sql = n.CompiledCode
	}

	var ids []string
	for _, ref := range ExtractReferences(sql) {
		var local, other []string
		for _, cand := range nodes {
			if cand.Name != ref.Name || (ref.Source != "") != (cand.ResourceType == "source") {
				continue
			}
			if ref.Source != "" && cand.SourceName != ref.Source {
				continue
			}
			if ref.Package != "" && cand.PackageName != ref.Package {
				continue
			}
			id := ModelID(cand.PackageName, cand.SourceName, cand.Name)
			if cand.PackageName == n.PackageName {
				local = append(local, id)
			} else {
				other = append(other, id)
			}
		}
		if len(local) > 0 {
			ids = append(ids, local...)
		} else {
			ids = append(ids, other...)
		}
	}
	return ids
}

func toModel(id string, n dbtNode) lineage.Model {
	m := lineage.Model{
		ID:          id,
		Name:        n.Name,
		Project:     projectID(n.PackageName),
		Description: n.Description,
		Schema:      n.Config.Schema,
		Tags:        slices.Clone(n.Tags),
		Columns:     columns(n),
	}
	if m.Schema == "" {
		m.Schema = n.Schema
	}
	switch n.ResourceType {
	case "model":
		m.Materialized = n.Config.Materialized
		if m.Materialized == "" {
			m.Materialized = "view"
		}
	default:
		m.Materialized = n.ResourceType
	}
	return m
}

// columns merges the catalog, which knows the warehouse column order and
// types, with the documented manifest columns. Without a catalog entry the
// manifest order is used.
func columns(n dbtNode) []lineage.Column {
	pk := make(map[string]bool)
	for _, c := range n.Constraints {
		if c.Type == "primary_key" {
			for _, name := range c.Columns {
				pk[strings.ToLower(name)] = true
			}
		}
	}
	documented := make(map[string]manifestColumn, len(n.Columns))
	for _, c := range n.Columns {
		documented[strings.ToLower(c.Name)] = c
		for _, con := range c.Constraints {
			if con.Type == "primary_key" {
				pk[strings.ToLower(c.Name)] = true
			}
		}
	}

	out := []lineage.Column{}
	if n.catalog != nil && len(n.catalog.Columns) > 0 {
		cat := make([]catalogColumn, 0, len(n.catalog.Columns))
		for key, c := range n.catalog.Columns {
			if c.Name == "" {
				c.Name = key
			}
			cat = append(cat, c)
		}
		sort.Slice(cat, func(i, j int) bool {
			if cat[i].Index != cat[j].Index {
				return cat[i].Index < cat[j].Index
			}
			return cat[i].Name < cat[j].Name
		})
		for _, c := range cat {
			key := strings.ToLower(c.Name)
			desc := documented[key].Description
			if desc == "" {
				desc = c.Comment
			}
			out = append(out, lineage.Column{
				Name:         c.Name,
				DataType:     c.Type,
				IsPrimaryKey: pk[key],
				Description:  desc,
			})
		}
		return out
	}

	for _, c := range n.Columns {
		out = append(out, lineage.Column{
			Name:         c.Name,
			DataType:     c.DataType,
			IsPrimaryKey: pk[strings.ToLower(c.Name)],
			Description:  c.Description,
		})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
