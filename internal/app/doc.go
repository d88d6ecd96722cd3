// Package app composes the agency layer into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go   # Application struct, wiring and lifecycle
//	├── actor/           # Authenticated caller carried in contexts
//	├── domain/          # Domain models (pure data, enums, filters)
//	├── integration/     # Sync layer: denormalized names, aggregates, reconcile
//	├── services/        # Business services (clients, projects, calendar, ...)
//	├── storage/         # Store interfaces plus memory, postgres and supabase backends
//	├── httpapi/         # REST routes, membership resolution, audit trail
//	├── jobs/            # Cron-driven maintenance (reconcile, reminders, overdue)
//	├── metrics/         # Prometheus collectors
//	└── system/          # Lifecycle manager
//
// # Dependency Direction
//
//	cmd/agencyd
//	      │
//	      ▼
//	internal/app (composition)
//	      │
//	      ├──► services ──► integration ──► storage
//	      ├──► httpapi  ──► services
//	      └──► jobs     ──► services, integration
//
// Every service writes through its store and then hands the before and
// after state to the Syncer, which rewrites linked records and recomputes
// aggregates under a per-agency lock. Sync failures never fail the write;
// the reconcile job repairs whatever drifted.
package app
