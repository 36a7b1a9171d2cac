package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lmartin/tradepipe/internal/model"
)

// request is the JSON-RPC style frame the exchange speaks.
type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
	ID     int64  `json:"id"`
}

// response carries either a result or an error for a request id. Pushed
// data (ticks) arrives as a method frame with params instead.
type response struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Params json.RawMessage `json:"params"`
	Error  *wireError      `json:"error"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wireError) Error() string {
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Message)
}

// tickPayload is the wire form of a ticker push. Prices arrive as strings.
type tickPayload struct {
	Symbol      string `json:"symbol"`
	Ask         string `json:"ask"`
	Bid         string `json:"bid"`
	Last        string `json:"last"`
	Low         string `json:"low"`
	High        string `json:"high"`
	Open        string `json:"open"`
	Volume      string `json:"volume"`
	VolumeQuote string `json:"volume_quote"`
	Timestamp   string `json:"timestamp"`
}

// toTick parses the string fields into a model.Tick. Missing optional
// fields parse as zero; a bad timestamp is an error since the dedup rule
// depends on it.
func (p tickPayload) toTick() (model.Tick, error) {
	ts, err := parseTimestamp(p.Timestamp)
	if err != nil {
		return model.Tick{}, fmt.Errorf("parse tick timestamp %q: %w", p.Timestamp, err)
	}

	return model.Tick{
		Symbol:      p.Symbol,
		Ask:         parsePrice(p.Ask),
		Bid:         parsePrice(p.Bid),
		Last:        parsePrice(p.Last),
		Low:         parsePrice(p.Low),
		High:        parsePrice(p.High),
		Open:        parsePrice(p.Open),
		Volume:      parsePrice(p.Volume),
		VolumeQuote: parsePrice(p.VolumeQuote),
		Timestamp:   ts,
	}, nil
}

func parsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseTimestamp accepts either unix seconds or the exchange's RFC3339
// millisecond format.
func parseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return unix, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.000Z", s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// balancePayload is the wire form of one currency balance.
type balancePayload struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
}

func (p balancePayload) toBalance() model.Balance {
	return model.Balance{
		Currency:  p.Currency,
		Available: parsePrice(p.Available),
	}
}

// orderParams is the wire form of an order submission.
type orderParams struct {
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Quantity      string `json:"quantity"`
	Type          string `json:"type"`
}

func orderToParams(o model.Order) orderParams {
	return orderParams{
		ClientOrderID: o.UUID.String(),
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		Quantity:      strconv.FormatFloat(o.Quantity, 'f', -1, 64),
		Type:          "market",
	}
}
