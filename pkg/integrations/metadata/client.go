// Package metadata fetches lineage input from a dbt metadata service.
//
// The service exposes three endpoints:
//
//	GET /api/models                       models with columns
//	GET /api/lineage                      [{source, target}] model edges
//	GET /api/models/{id}/column-lineage   explicit column lineage of one model
//
// [Client.FetchInput] combines them into a [lineage.Input]. Column lineage
// is fetched per model with bounded concurrency; a 404 means the model has
// none.
package metadata

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/dbtlineage/pkg/cache"
	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/integrations"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

// DefaultConcurrency bounds the number of in-flight column-lineage requests.
const DefaultConcurrency = 8

// Defaults applied to models the service returns without these fields.
const (
	DefaultSchema       = "default"
	DefaultMaterialized = "view"
)

// Client talks to one metadata service.
//
// All methods are safe for concurrent use.
type Client struct {
	*integrations.Client
	baseURL     string
	token       string
	concurrency int
	backoff     *cache.Backoff
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithConcurrency sets the column-lineage fetch limit. Values below 1 are
// ignored.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBackoff sets the retry policy for every request.
func WithBackoff(b cache.Backoff) Option {
	return func(c *Client) { c.backoff = &b }
}

// NewClient creates a client for the service at baseURL. Responses are
// cached in backend for ttl; a nil backend disables caching.
func NewClient(backend cache.Cache, baseURL string, ttl time.Duration, opts ...Option) (*Client, error) {
	if err := errs.ValidateURL(baseURL); err != nil {
		return nil, err
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(c)
	}

	var headers map[string]string
	if c.token != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.token}
	}
	c.Client = integrations.NewClient(backend, "metadata:"+c.baseURL, ttl, headers)
	if c.backoff != nil {
		c.Client.WithBackoff(*c.backoff)
	}
	return c, nil
}

// BaseURL returns the service root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// Endpoints
// =============================================================================

// FetchModels lists every model. Missing optional fields get the service
// defaults: schema "default", materialization "view", and empty columns and
// tags.
func (c *Client) FetchModels(ctx context.Context, refresh bool) ([]lineage.Model, error) {
	var raw []apiModel
	err := c.Cached(ctx, "models", refresh, &raw, func() error {
		return c.Get(ctx, c.baseURL+"/api/models", &raw)
	})
	if err != nil {
		return nil, wrap(err, "fetch models")
	}
	out := make([]lineage.Model, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.toModel())
	}
	return out, nil
}

// LinkRef is one model edge as returned by /api/lineage.
type LinkRef struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// FetchLineage lists the model-level edges.
func (c *Client) FetchLineage(ctx context.Context, refresh bool) ([]LinkRef, error) {
	var links []LinkRef
	err := c.Cached(ctx, "lineage", refresh, &links, func() error {
		return c.Get(ctx, c.baseURL+"/api/lineage", &links)
	})
	if err != nil {
		return nil, wrap(err, "fetch lineage")
	}
	return links, nil
}

// FetchColumnLineage returns the explicit column lineage of one model.
// found is false when the service has none for it.
func (c *Client) FetchColumnLineage(ctx context.Context, modelID string, refresh bool) (cl lineage.ColumnLineage, found bool, err error) {
	if err := errs.ValidateModelID(modelID); err != nil {
		return lineage.ColumnLineage{}, false, err
	}
	u := c.baseURL + "/api/models/" + url.PathEscape(modelID) + "/column-lineage"
	err = c.Cached(ctx, "column-lineage:"+modelID, refresh, &cl, func() error {
		return c.Get(ctx, u, &cl)
	})
	if errors.Is(err, integrations.ErrNotFound) {
		return lineage.ColumnLineage{}, false, nil
	}
	if err != nil {
		return lineage.ColumnLineage{}, false, wrap(err, "fetch column lineage for %q", modelID)
	}
	return cl, true, nil
}

// FetchInput pulls models, edges, and column lineage and returns them as
// assembly input. Edges reference models by id; column lineage records
// without any upstream or downstream entries are dropped.
func (c *Client) FetchInput(ctx context.Context, refresh bool) (lineage.Input, error) {
	var (
		models []lineage.Model
		links  []LinkRef
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		models, err = c.FetchModels(gctx, refresh)
		return err
	})
	g.Go(func() (err error) {
		links, err = c.FetchLineage(gctx, refresh)
		return err
	})
	if err := g.Wait(); err != nil {
		return lineage.Input{}, err
	}

	records := make([]lineage.ColumnLineage, len(models))
	present := make([]bool, len(models))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, m := range models {
		g.Go(func() error {
			cl, ok, err := c.FetchColumnLineage(gctx, m.ID, refresh)
			if err != nil {
				return err
			}
			records[i], present[i] = cl, ok && hasEntries(cl)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return lineage.Input{}, err
	}

	in := lineage.Input{Models: models, Edges: make([]lineage.RawEdge, 0, len(links))}
	for _, l := range links {
		in.Edges = append(in.Edges, lineage.RawEdge{Source: lineage.Ref(l.Source), Target: lineage.Ref(l.Target)})
	}
	for i, m := range models {
		if !present[i] {
			continue
		}
		if in.ColumnLineage == nil {
			in.ColumnLineage = make(map[string]lineage.ColumnLineage)
		}
		in.ColumnLineage[m.ID] = records[i]
	}
	return in, nil
}

func hasEntries(cl lineage.ColumnLineage) bool {
	for _, v := range cl.UpstreamColumns {
		if len(v) > 0 {
			return true
		}
	}
	for _, v := range cl.DownstreamColumns {
		if len(v) > 0 {
			return true
		}
	}
	return false
}

func wrap(err error, format string, args ...any) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	code := errs.ErrCodeNetwork
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = errs.ErrCodeTimeout
	case errors.Is(err, integrations.ErrNotFound):
		code = errs.ErrCodeNotFound
	case !errors.Is(err, integrations.ErrNetwork):
		code = errs.ErrCodeInvalidFormat
	}
	return errs.Wrap(code, err, format, args...)
}
