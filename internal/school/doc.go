// Package school provides the school directory for SchoolTrack Asset Core.
//
// Schools are the assignment targets for devices: every device either
// belongs to exactly one school or sits unassigned in central stock.
// The school's district drives the geographic scope code embedded in
// device name tags.
//
// The package provides a Repository interface with a SQLite implementation.
//
// # Thread Safety
//
// SQLiteRepository is safe for concurrent use from multiple goroutines
// (SQLite WAL mode + connection pooling).
package school
