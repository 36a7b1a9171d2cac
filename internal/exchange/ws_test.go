package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lmartin/tradepipe/internal/model"
)

var upgrader = websocket.Upgrader{}

// tickerServer upgrades connections and replays canned frames after the
// subscribe request arrives.
func tickerServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Wait for the subscribe request.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}

		// Hold the socket open until the client closes.
		conn.ReadMessage()
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSubscribeTicksRecv(t *testing.T) {
	frames := []string{
		`{"id": 1, "result": true}`, // subscription ack, skipped
		`{"method": "ticker", "params": {"symbol": "BTCUSD", "ask": "46842.47", "bid": "46840.01", "last": "46841.5", "timestamp": "123456789"}}`,
	}
	server := tickerServer(t, frames)
	defer server.Close()

	client := &WSClient{
		cfg:    WSConfig{URL: wsURL(server), ReadTimeout: 2 * time.Second, WriteTimeout: time.Second},
		logger: nil,
	}
	client.logger = discardLogger()

	stream, err := client.SubscribeTicks(context.Background(), "BTCUSD")
	if err != nil {
		t.Fatalf("SubscribeTicks: %v", err)
	}
	defer stream.Close()

	tick, err := stream.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}

	if tick.Symbol != "BTCUSD" {
		t.Errorf("Symbol = %q", tick.Symbol)
	}
	if tick.Ask != 46842.47 {
		t.Errorf("Ask = %v, want 46842.47", tick.Ask)
	}
	if tick.Bid != 46840.01 {
		t.Errorf("Bid = %v, want 46840.01", tick.Bid)
	}
	if tick.Timestamp != 123456789 {
		t.Errorf("Timestamp = %v, want 123456789", tick.Timestamp)
	}
}

func TestRecvSkipsNonTickerFrames(t *testing.T) {
	frames := []string{
		`{"method": "heartbeat"}`,
		`not json at all`,
		`{"method": "ticker", "params": {"ask": "10", "timestamp": "42"}}`,
	}
	server := tickerServer(t, frames)
	defer server.Close()

	client := &WSClient{
		cfg:    WSConfig{URL: wsURL(server), ReadTimeout: 2 * time.Second, WriteTimeout: time.Second},
		logger: discardLogger(),
	}

	stream, err := client.SubscribeTicks(context.Background(), "BTCUSD")
	if err != nil {
		t.Fatalf("SubscribeTicks: %v", err)
	}
	defer stream.Close()

	tick, err := stream.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if tick.Ask != 10 || tick.Timestamp != 42 {
		t.Errorf("tick = %+v", tick)
	}
}

func TestRecvConnectionErrorOnClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.ReadMessage() // consume subscribe
		conn.Close()       // drop the socket
	}))
	defer server.Close()

	client := &WSClient{
		cfg:    WSConfig{URL: wsURL(server), ReadTimeout: 2 * time.Second, WriteTimeout: time.Second},
		logger: discardLogger(),
	}

	stream, err := client.SubscribeTicks(context.Background(), "BTCUSD")
	if err != nil {
		t.Fatalf("SubscribeTicks: %v", err)
	}
	defer stream.Close()

	_, err = stream.Recv(context.Background())
	if err == nil {
		t.Fatal("Recv expected error after server close")
	}
	if !IsConnectionError(err) {
		t.Errorf("err = %v, want ConnectionError", err)
	}
}

func TestRoundTripBalances(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req request
		json.Unmarshal(msg, &req)
		if req.Method != "spot_balances" {
			t.Errorf("method = %q", req.Method)
		}

		// Interleave a push before the response; the client must skip it.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"method": "ticker", "params": {"ask": "1", "timestamp": "1"}}`))

		resp := map[string]any{
			"id": req.ID,
			"result": []map[string]string{
				{"currency": "USD", "available": "25000.0"},
				{"currency": "BTC", "available": "5"},
				{"currency": "ETH", "available": "12"},
			},
		}
		data, _ := json.Marshal(resp)
		conn.WriteMessage(websocket.TextMessage, data)
		conn.ReadMessage()
	}))
	defer server.Close()

	conn, err := dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	client := &WSClient{
		cfg:    WSConfig{URL: wsURL(server), ReadTimeout: 2 * time.Second, WriteTimeout: time.Second},
		logger: discardLogger(),
		conn:   conn,
	}
	defer client.Close()

	balances, err := client.GetBalances(context.Background(), []string{"USD", "BTC"})
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}

	if len(balances) != 2 {
		t.Fatalf("len(balances) = %d, want 2 (ETH filtered)", len(balances))
	}
	if balances[0].Currency != "USD" || balances[0].Available != 25000 {
		t.Errorf("balances[0] = %+v", balances[0])
	}
	if balances[1].Currency != "BTC" || balances[1].Available != 5 {
		t.Errorf("balances[1] = %+v", balances[1])
	}
}

func TestRoundTripExchangeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req request
		json.Unmarshal(msg, &req)

		resp := map[string]any{
			"id":    req.ID,
			"error": map[string]any{"code": 20001, "message": "insufficient funds"},
		}
		data, _ := json.Marshal(resp)
		conn.WriteMessage(websocket.TextMessage, data)
		conn.ReadMessage()
	}))
	defer server.Close()

	conn, err := dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	client := &WSClient{
		cfg:    WSConfig{URL: wsURL(server), ReadTimeout: 2 * time.Second, WriteTimeout: time.Second},
		logger: discardLogger(),
		conn:   conn,
	}
	defer client.Close()

	order := model.NewOrder(model.NewSignal(1, nil, 0, 0).UUID, "BTCUSD", model.SideBuy, 1)
	if _, err := client.SubmitOrder(context.Background(), order); err == nil {
		t.Fatal("SubmitOrder expected exchange error")
	}
}

func TestTickPayloadTimestampFormats(t *testing.T) {
	unix, err := parseTimestamp("123456789")
	if err != nil || unix != 123456789 {
		t.Errorf("unix parse = %d, %v", unix, err)
	}

	iso, err := parseTimestamp("2019-01-01T08:00:00.000Z")
	if err != nil {
		t.Fatalf("iso parse: %v", err)
	}
	want := time.Date(2019, 1, 1, 8, 0, 0, 0, time.UTC).Unix()
	if iso != want {
		t.Errorf("iso parse = %d, want %d", iso, want)
	}

	if _, err := parseTimestamp(""); err == nil {
		t.Error("empty timestamp expected error")
	}
}
