package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Queue Status
// -----------------------------------------------------------------------------

// Status is the lifecycle state of a queued item (signal or order).
//
// Transitions are one-directional: QUEUED -> PROCESSING -> COMPLETE|FAILED.
// COMPLETE and FAILED are terminal.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusComplete   Status = "COMPLETE"
	StatusFailed     Status = "FAILED"
)

// ParseStatus canonicalizes a status string (case-insensitive on input).
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusQueued:
		return StatusQueued, nil
	case StatusProcessing:
		return StatusProcessing, nil
	case StatusComplete:
		return StatusComplete, nil
	case StatusFailed:
		return StatusFailed, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal returns true for COMPLETE and FAILED.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal
// forward transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusComplete || next == StatusFailed
	}
	return false
}

// -----------------------------------------------------------------------------
// Order Side
// -----------------------------------------------------------------------------

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide canonicalizes a side string.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// Tick is one market-data snapshot for a trading symbol.
type Tick struct {
	Symbol      string  // Trading pair (e.g., "BTCUSD")
	Ask         float64 // Best ask price
	Bid         float64 // Best bid price
	Last        float64 // Last trade price
	Low         float64 // 24h low
	High        float64 // 24h high
	Open        float64 // Price 24 hours ago
	Volume      float64 // 24h volume in base currency
	VolumeQuote float64 // 24h volume in quote currency
	Timestamp   int64   // Unix seconds
}

// CSVLine renders the file-sink line format:
// ask,bid,last,low,high,open,volume,volume_quote,timestamp with a trailing
// newline.
func (t Tick) CSVLine() string {
	fields := []string{
		formatFloat(t.Ask),
		formatFloat(t.Bid),
		formatFloat(t.Last),
		formatFloat(t.Low),
		formatFloat(t.High),
		formatFloat(t.Open),
		formatFloat(t.Volume),
		formatFloat(t.VolumeQuote),
		strconv.FormatInt(t.Timestamp, 10),
	}
	return strings.Join(fields, ",") + "\n"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// -----------------------------------------------------------------------------
// Trading Signal
// -----------------------------------------------------------------------------

// Signal is a directional, confidence-weighted forecast queued for the
// execution engine. Immutable once created.
type Signal struct {
	UUID        uuid.UUID // Primary key
	Weight      float64   // Direction and confidence, in [-1, 1]
	Predictions []float64 // Ordered future price estimates
	Timestamp   int64     // Target timestamp (unix seconds)
	Percent     float64   // Predicted percent change behind the weight
}

// NewSignal creates a signal with a fresh UUID.
func NewSignal(weight float64, predictions []float64, timestamp int64, percent float64) Signal {
	return Signal{
		UUID:        uuid.New(),
		Weight:      weight,
		Predictions: predictions,
		Timestamp:   timestamp,
		Percent:     percent,
	}
}

// Key returns the signal's queue identity.
func (s Signal) Key() uuid.UUID { return s.UUID }

// ReferencePrice is the price the engine sizes buy orders against: the
// prediction four steps from the end when the history is long enough,
// otherwise the last prediction. Zero when there are no predictions.
func (s Signal) ReferencePrice() float64 {
	n := len(s.Predictions)
	if n == 0 {
		return 0
	}
	if n >= 4 {
		return s.Predictions[n-4]
	}
	return s.Predictions[n-1]
}

// -----------------------------------------------------------------------------
// Orders and Balances
// -----------------------------------------------------------------------------

// Order is a sized, directed trade derived from a signal.
type Order struct {
	UUID      uuid.UUID // Matches the originating signal's UUID when applicable
	Symbol    string    // Trading pair
	Side      Side      // buy or sell
	Quantity  float64   // Base-currency units, always positive
	Status    Status    // Queue lifecycle state
	CreatedAt int64     // Unix seconds

	// Snapshot at creation time, persisted for audit.
	FiatBalance   float64
	CryptoBalance float64
	Price         float64 // Reference price used for sizing
}

// NewOrder creates an order linked to the given signal UUID.
func NewOrder(id uuid.UUID, symbol string, side Side, quantity float64) Order {
	return Order{
		UUID:      id,
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Status:    StatusQueued,
		CreatedAt: time.Now().Unix(),
	}
}

// Key returns the order's queue identity.
func (o Order) Key() uuid.UUID { return o.UUID }

// Balance is the available amount for a single currency.
type Balance struct {
	Currency  string
	Available float64
}
