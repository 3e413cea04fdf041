// Package queue persists cleaning tasks in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, atomic
// pending-task claims, heartbeat tracking, and stale-task recovery. Tasks move
// pending -> processing -> completed or failed; the terminal states are
// absorbing. The database is transient storage for in-flight work rather than
// a long-term archive: schema changes bump the version in schema.go and users
// clear the database to adopt the new schema.
package queue
