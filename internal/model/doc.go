// Package model defines the core data types shared across the pipeline:
// market ticks, trading signals, orders, balances, and the queue status
// lifecycle.
//
// Status transitions are monotonic (QUEUED -> PROCESSING -> COMPLETE|FAILED)
// and enforced by the durable queue; nothing outside the queue package should
// write statuses directly.
package model
