// Package database manages the Postgres connection pool shared by the
// durable queues, the tick store, and the watchdog's probes. The relational
// store is the only resource shared across process boundaries; all
// cross-component hand-off goes through it.
package database
