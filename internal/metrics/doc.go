/*
Package metrics holds the Prometheus collectors of the catalog cache and the
ingestion worker. Collectors are registered on the default registry at init
and updated through the Record* helpers.

Cache metrics:
  - catalog_cache_operations_total: backend operations (operation, result)
  - catalog_cache_operation_duration_seconds: backend latency (operation)
  - catalog_query_cache_reads_total: read-through outcome (scope, outcome)
  - catalog_cache_circuit_breaker_state: breaker state gauge (name)

Invalidation metrics:
  - catalog_generation_bumps_total: generations advanced (scope)
  - catalog_detail_key_deletes_total: direct keys deleted
  - catalog_invalidation_failures_total: steps skipped on backend failure (step)

Ingestion metrics:
  - catalog_ingest_jobs_total: job outcomes (outcome)
  - catalog_ingest_step_duration_seconds: step latency (step, status)
  - catalog_ingest_step_retries_total: retried attempts (step)

Scope labels use ScopeFamily so per-entity scopes do not create a series per
id.
*/
package metrics
