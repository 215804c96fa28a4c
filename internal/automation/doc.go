// Package automation provides repository-backed fleet rules and an
// on-demand execution engine.
//
// A Rule names a Kind (maintenance_reminder, warranty_alert,
// offline_detection, aging_update, user_assignment), an enabled flag,
// handler parameters, and an optional cron schedule recorded purely as
// metadata for external schedulers. Nothing in this package ticks.
//
// # Architecture
//
//	Repository (SQLite) -> Registry (cache) -> Engine -> Handler
//
// The Registry wraps the Repository with a deep-copying in-memory
// cache, refreshed at startup and kept in sync by its CRUD methods.
// The Engine holds a map of Kind to Handler; RunRule loads the rule,
// dispatches once, and records a RuleRun with the outcome plus the
// denormalised last_run_at/last_result on the rule row.
//
// Handlers sweep the current device fleet (and, for ownership checks,
// the school directory) and publish findings as an MQTT event on the
// rule's topic; the aging handler writes book values to the telemetry
// sink instead.
//
// # Thread Safety
//
//   - Registry: all public methods are safe for concurrent use.
//   - Engine: RunRule is safe for concurrent use after wiring;
//     Register is startup-only.
//   - Handlers: stateless, safe for concurrent use.
package automation
