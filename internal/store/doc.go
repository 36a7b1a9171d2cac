// Package store holds the Postgres persistence layer: the ticker feed
// table plus the row stores backing the signal and order queues.
package store
