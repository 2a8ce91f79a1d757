package layout

import (
	"math"
	"slices"

	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

// Spacing defaults. Default-sized rendered nodes do not overlap with these.
const (
	DefaultHorizontalSpacing = 250.0
	DefaultVerticalSpacing   = 200.0
	DefaultOffsetX           = 100.0
	DefaultOffsetY           = 50.0
)

// Leveling selects how levels are assigned during traversal.
type Leveling string

const (
	// LongestPath pushes a node down whenever a deeper path reaches it.
	LongestPath Leveling = "longest-path"

	// FirstVisit keeps the level of the first path that reaches a node.
	FirstVisit Leveling = "first-visit"
)

// DefaultLeveling is used when Options.Leveling is empty.
const DefaultLeveling = LongestPath

// Levelings lists the supported leveling modes.
var Levelings = []Leveling{LongestPath, FirstVisit}

// ParseLeveling validates a leveling name. The empty string selects
// [DefaultLeveling].
func ParseLeveling(s string) (Leveling, error) {
	if s == "" {
		return DefaultLeveling, nil
	}
	for _, l := range Levelings {
		if string(l) == s {
			return l, nil
		}
	}
	return "", errs.New(errs.ErrCodeInvalidLeveling, "invalid leveling: %q (must be one of: %s, %s)", s, LongestPath, FirstVisit)
}

// Options configures [Compute]. Zero values select the defaults.
type Options struct {
	HorizontalSpacing float64  `json:"horizontal_spacing,omitempty" toml:"horizontal_spacing"`
	VerticalSpacing   float64  `json:"vertical_spacing,omitempty" toml:"vertical_spacing"`
	OffsetX           float64  `json:"offset_x,omitempty" toml:"offset_x"`
	OffsetY           float64  `json:"offset_y,omitempty" toml:"offset_y"`
	Leveling          Leveling `json:"leveling,omitempty" toml:"leveling"`
}

// WithDefaults returns a copy of o with zero fields set to their defaults.
// An unknown leveling falls back to [DefaultLeveling].
func (o Options) WithDefaults() Options {
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
	if l, err := ParseLeveling(string(o.Leveling)); err == nil {
		o.Leveling = l
	} else {
		o.Leveling = DefaultLeveling
	}
	return o
}

// Validate reports invalid option values.
func (o Options) Validate() error {
	if _, err := ParseLeveling(string(o.Leveling)); err != nil {
		return err
	}
	fields := []struct {
		name string
		v    float64
	}{
		{"horizontal spacing", o.HorizontalSpacing},
		{"vertical spacing", o.VerticalSpacing},
		{"offset x", o.OffsetX},
		{"offset y", o.OffsetY},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return errs.New(errs.ErrCodeInvalidInput, "%s must be a finite number", f.name)
		}
	}
	if o.HorizontalSpacing < 0 || o.VerticalSpacing < 0 {
		return errs.New(errs.ErrCodeInvalidInput, "spacing must not be negative")
	}
	return nil
}

// Position is the center of a rendered model node.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Result is the output of [Compute].
type Result struct {
	// Positions maps every model id to its position.
	Positions map[string]Position `json:"positions" yaml:"positions"`

	// Levels maps every model id to its level; roots are at 0.
	Levels map[string]int `json:"levels" yaml:"levels"`

	// Rows lists model ids per level, in placement order.
	Rows [][]string `json:"rows" yaml:"rows"`

	// Order lists model ids in first-visit order.
	Order []string `json:"order" yaml:"order"`

	// BackEdges lists links whose target was on the traversal path when the
	// link was followed. Self-loops are always back edges.
	BackEdges [][2]string `json:"back_edges,omitempty" yaml:"back_edges,omitempty"`
}

// Depth returns the number of levels.
func (r Result) Depth() int { return len(r.Rows) }

// Width returns the size of the widest level.
func (r Result) Width() int {
	w := 0
	for _, row := range r.Rows {
		w = max(w, len(row))
	}
	return w
}

// Compute lays out models and links.
//
// [FirstVisit] reproduces the plain visited-guard traversal exactly.
// [LongestPath] may descend into a node again each time a deeper path
// reaches it, so its worst case is O(V·E) rather than O(V+E).
//
// Links referencing unknown model ids are ignored. Duplicate model ids keep
// their first occurrence. Compute never fails; an empty graph yields an empty
// result.
func Compute(models []lineage.Model, links []lineage.Link, opts Options) Result {
	opts = opts.WithDefaults()

	ids := make([]string, 0, len(models))
	known := make(map[string]bool, len(models))
	for _, m := range models {
		if m.ID == "" || known[m.ID] {
			continue
		}
		known[m.ID] = true
		ids = append(ids, m.ID)
	}

	children := make(map[string][]string, len(ids))
	hasIncoming := make(map[string]bool, len(ids))
	for _, l := range links {
		if !known[l.Source] || !known[l.Target] {
			continue
		}
		children[l.Source] = append(children[l.Source], l.Target)
		hasIncoming[l.Target] = true
	}

	t := newTraversal(children, opts.Leveling)
	for _, id := range ids {
		if !hasIncoming[id] {
			t.visit(id)
		}
	}
	for _, id := range ids {
		if !t.visited[id] {
			t.visit(id)
		}
	}

	return t.place(opts)
}

// =============================================================================
// Traversal
// =============================================================================

type traversal struct {
	children map[string][]string
	leveling Leveling

	visited map[string]bool
	onPath  map[string]bool
	level   map[string]int
	order   []string

	backEdges [][2]string
	seenBack  map[[2]string]bool
}

func newTraversal(children map[string][]string, leveling Leveling) *traversal {
	return &traversal{
		children: children,
		leveling: leveling,
		visited:  make(map[string]bool),
		onPath:   make(map[string]bool),
		level:    make(map[string]int),
		seenBack: make(map[[2]string]bool),
	}
}

// frame is one entry of the explicit DFS stack: a node whose children are
// being walked, next being the index of the following child.
type frame struct {
	id   string
	next int
}

// visit runs a depth-first assignment from root at level 0. The explicit
// stack reproduces recursive preorder without bounding depth by the
// goroutine stack.
func (t *traversal) visit(root string) {
	if !t.enter(root, 0) {
		return
	}
	stack := []frame{{id: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := t.children[top.id]
		if top.next == len(kids) {
			t.onPath[top.id] = false
			stack = stack[:len(stack)-1]
			continue
		}
		child := kids[top.next]
		top.next++

		if t.onPath[child] {
			t.recordBackEdge(top.id, child)
			continue
		}
		if t.enter(child, t.level[top.id]+1) {
			stack = append(stack, frame{id: child})
		}
	}
}

// enter assigns level to id and reports whether its children should be
// walked. Callers guarantee id is not on the current path.
func (t *traversal) enter(id string, level int) bool {
	if t.visited[id] {
		if t.leveling == FirstVisit || t.level[id] >= level {
			return false
		}
	} else {
		t.visited[id] = true
		t.order = append(t.order, id)
	}
	t.level[id] = max(t.level[id], level)
	t.onPath[id] = true
	return true
}

func (t *traversal) recordBackEdge(from, to string) {
	e := [2]string{from, to}
	if t.seenBack[e] {
		return
	}
	t.seenBack[e] = true
	t.backEdges = append(t.backEdges, e)
}

// =============================================================================
// Packing
// =============================================================================

// place groups visited ids by level in first-visit order and assigns
// coordinates.
func (t *traversal) place(opts Options) Result {
	res := Result{
		Positions: make(map[string]Position, len(t.order)),
		Levels:    make(map[string]int, len(t.order)),
		Order:     slices.Clone(t.order),
		BackEdges: t.backEdges,
	}
	if len(t.order) == 0 {
		res.Rows = [][]string{}
		return res
	}

	depth := 0
	for _, id := range t.order {
		depth = max(depth, t.level[id]+1)
	}
	res.Rows = make([][]string, depth)
	for _, id := range t.order {
		lvl := t.level[id]
		res.Rows[lvl] = append(res.Rows[lvl], id)
		res.Levels[id] = lvl
	}

	h, v := opts.HorizontalSpacing, opts.VerticalSpacing
	for lvl, row := range res.Rows {
		if row == nil {
			// a level left empty by a node pushed past a cycle
			res.Rows[lvl] = []string{}
			continue
		}
		k := float64(len(row))
		for i, id := range row {
			res.Positions[id] = Position{
				X: -(k*h)/2 + float64(i)*h + opts.OffsetX,
				Y: float64(lvl)*v + opts.OffsetY,
			}
		}
	}
	return res
}
