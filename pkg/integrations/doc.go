// Package integrations provides HTTP clients for remote metadata services.
//
// # Client
//
// [Client] is the shared JSON-over-HTTP layer. It applies default headers,
// maps status codes onto sentinel errors, and caches decoded responses in a
// [cache.Cache]:
//
//	client := integrations.NewClient(c, "metadata", cache.TTLHTTP, map[string]string{
//		"Authorization": "Bearer " + token,
//	})
//	var models []lineage.Model
//	err := client.Cached(ctx, "models", refresh, &models, func() error {
//		return client.Get(ctx, base+"/api/models", &models)
//	})
//
// A 404 maps to [ErrNotFound]. Connection failures, 429, and 5xx responses
// map to a retryable [ErrNetwork], which [Client.Cached] retries with
// exponential backoff.
//
// # Metadata API
//
// The [metadata] subpackage fetches models, model lineage, and per-model
// column lineage from a dbt metadata service and converts them into a
// [lineage.Input].
//
// [cache.Cache]: github.com/matzehuels/dbtlineage/pkg/cache.Cache
// [metadata]: github.com/matzehuels/dbtlineage/pkg/integrations/metadata
// [lineage.Input]: github.com/matzehuels/dbtlineage/pkg/lineage.Input
package integrations
