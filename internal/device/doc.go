// Package device is the core of SchoolTrack Asset Core: device records,
// name-tag generation, school assignment, and derived metrics.
//
// A device is identified two ways: a globally unique serial number
// (stamped on the hardware) and a generated name tag of the form
// RTB/<prefix>/<scope>/<seq>. The tag is derived from the device's
// category and current school assignment; it is regenerated whenever
// either changes and must never be edited by hand.
//
// The package is organised around four pieces:
//
//   - nametag.go: pure tag derivation (category prefix, district scope
//     code, sequence formatting)
//   - repository.go: Repository interface + SQLite implementation,
//     including the transactional reassignment path
//   - manager.go: Manager orchestrating validation, tag generation and
//     persistence for creates, updates, (bulk) assignment and deletion
//   - metrics.go: pure derived-metric functions over (Device, now)
//
// # Thread Safety
//
// Manager and SQLiteRepository are safe for concurrent use. Sequence
// numbers are derived by scanning existing tags inside the same SQL
// transaction as the write; the unique index on name_tag is the final
// arbiter and collisions are retried a bounded number of times before
// being reported.
package device
