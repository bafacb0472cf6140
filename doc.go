// Package querylens collects query telemetry from Dremio analytical
// engines and loads it into PostgreSQL for offline analysis.
//
// The collector speaks both of the engine's API dialects behind one
// gateway: the legacy REST API of Dremio Software and the
// SQL-over-HTTP API of Dremio Cloud. The dialect is selected once from
// configuration; every logical operation is routed through a strategy
// table, so callers never branch on deployment type.
//
// # Collection model
//
// One collection pass drives four sequential streams:
//
//  1. Query history: up to 1000 recent jobs, append-only.
//  2. Execution profiles: the newest 100 of those jobs, append-only.
//  3. Reflection metadata: all reflections, upserted.
//  4. Dataset metadata: catalog datasets, upserted.
//
// Each stream lands its whole batch in one database transaction. A
// failed stream contributes nothing for that pass but never blocks the
// streams after it, and re-running a pass never duplicates rows: the
// engine's own identifiers are the natural keys.
//
// # Quick start
//
//	querylens migrate  -c config.yaml
//	querylens check    -c config.yaml
//	querylens collect  -c config.yaml --once
//	querylens report queries --slowest
//
// # Packages
//
//   - pkg/dremio: dialect routing, authentication, retry, job polling
//   - pkg/loaders: wire payload to canonical record transforms
//   - pkg/store: PostgreSQL persistence and schema migrations
//   - pkg/collector: pass orchestration and the interval runner
//   - pkg/config, pkg/logger, pkg/errors, pkg/metrics: shared plumbing
package querylens
