package cache

// Keyer builds cache keys. Implementations must be deterministic: equal
// inputs yield equal keys.
type Keyer interface {
	// HTTPKey identifies a metadata API response.
	HTTPKey(namespace, key string) string

	// GraphKey identifies an assembled graph by the hash of its input.
	GraphKey(inputHash string, opts GraphKeyOpts) string

	// LayoutKey identifies a layout by the hash of its graph.
	LayoutKey(graphHash string, opts LayoutKeyOpts) string

	// ArtifactKey identifies one rendered format of a layout.
	ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string
}

// GraphKeyOpts holds assembly settings that change the assembled graph.
type GraphKeyOpts struct {
	Matcher string `json:"matcher,omitempty"`
}

// LayoutKeyOpts holds settings that change node positions.
type LayoutKeyOpts struct {
	Leveling          string  `json:"leveling"`
	HorizontalSpacing float64 `json:"h"`
	VerticalSpacing   float64 `json:"v"`
	OffsetX           float64 `json:"ox"`
	OffsetY           float64 `json:"oy"`
}

// ArtifactKeyOpts holds settings that change a rendered artifact.
type ArtifactKeyOpts struct {
	Format      string `json:"format"`
	ShowColumns bool   `json:"show_columns,omitempty"`
	Detailed    bool   `json:"detailed,omitempty"`
}

// DefaultKeyer produces keys of the form "<kind>:<sha256>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

func (DefaultKeyer) GraphKey(inputHash string, opts GraphKeyOpts) string {
	return hashKey(KeyTypeGraph, inputHash, opts)
}

func (DefaultKeyer) LayoutKey(graphHash string, opts LayoutKeyOpts) string {
	return hashKey(KeyTypeLayout, graphHash, opts)
}

func (DefaultKeyer) ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string {
	return hashKey(KeyTypeArtifact, layoutHash, opts)
}
