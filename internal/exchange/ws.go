package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lmartin/tradepipe/internal/model"
)

// WSConfig holds websocket client settings.
type WSConfig struct {
	URL          string
	APIKey       string
	APISecret    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WSClient implements Client over a gorilla websocket connection. Trading
// requests share one authenticated socket; each tick subscription gets its
// own socket so feed reconnects never disturb in-flight orders.
type WSClient struct {
	cfg    WSConfig
	logger *slog.Logger

	// Serializes request/response exchanges on the trading socket.
	mu    sync.Mutex
	conn  *websocket.Conn
	reqID int64
}

// DialWS connects the trading socket and authenticates when credentials are
// configured.
func DialWS(ctx context.Context, cfg WSConfig, logger *slog.Logger) (*WSClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	c := &WSClient{cfg: cfg, logger: logger}

	conn, err := dial(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	if cfg.APIKey != "" {
		if err := c.login(ctx); err != nil {
			conn.Close()
			return nil, err
		}
	}

	c.logger.Debug("exchange socket connected", "url", cfg.URL)
	return c, nil
}

func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	return conn, nil
}

// Close tears down the trading socket.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *WSClient) login(ctx context.Context) error {
	params := map[string]string{
		"type":       "BASIC",
		"api_key":    c.cfg.APIKey,
		"secret_key": c.cfg.APISecret,
	}
	_, err := c.roundTrip(ctx, "login", params)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// GetBalances fetches available balances over the trading socket.
func (c *WSClient) GetBalances(ctx context.Context, currencies []string) ([]model.Balance, error) {
	raw, err := c.roundTrip(ctx, "spot_balances", map[string]any{})
	if err != nil {
		return nil, err
	}

	var payloads []balancePayload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return nil, fmt.Errorf("unmarshal balances: %w", err)
	}

	want := make(map[string]struct{}, len(currencies))
	for _, cur := range currencies {
		want[cur] = struct{}{}
	}

	balances := make([]model.Balance, 0, len(payloads))
	for _, p := range payloads {
		if len(want) > 0 {
			if _, ok := want[p.Currency]; !ok {
				continue
			}
		}
		balances = append(balances, p.toBalance())
	}
	return balances, nil
}

// SubmitOrder places a market order over the trading socket.
func (c *WSClient) SubmitOrder(ctx context.Context, order model.Order) (model.Order, error) {
	raw, err := c.roundTrip(ctx, "spot_new_order", orderToParams(order))
	if err != nil {
		return model.Order{}, err
	}

	// The exchange echoes the accepted order; we keep our own fields and
	// only confirm acceptance.
	var echo struct {
		ClientOrderID string `json:"client_order_id"`
	}
	if err := json.Unmarshal(raw, &echo); err != nil {
		return model.Order{}, fmt.Errorf("unmarshal order ack: %w", err)
	}
	return order, nil
}

// CancelOrder cancels an active order by client order id.
func (c *WSClient) CancelOrder(ctx context.Context, id uuid.UUID) error {
	params := map[string]string{"client_order_id": id.String()}
	_, err := c.roundTrip(ctx, "spot_cancel_order", params)
	return err
}

// roundTrip writes one request and reads frames until its response arrives,
// discarding unrelated pushes. The mutex keeps one exchange in flight at a
// time, which is all the single-writer dispatcher needs.
func (c *WSClient) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, &ConnectionError{Op: method, Err: fmt.Errorf("socket closed")}
	}

	c.reqID++
	req := request{Method: method, Params: params, ID: c.reqID}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, &ConnectionError{Op: method, Err: err}
	}

	deadline := time.Now().Add(c.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	for {
		c.conn.SetReadDeadline(deadline)
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return nil, &ConnectionError{Op: method, Err: err}
		}

		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			c.logger.Debug("discarding unparseable frame", "error", err)
			continue
		}
		if resp.ID != req.ID {
			// Push or stale frame; not ours.
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// SubscribeTicks opens a dedicated socket subscribed to one symbol's ticker
// channel.
func (c *WSClient) SubscribeTicks(ctx context.Context, symbol string) (TickStream, error) {
	conn, err := dial(ctx, c.cfg.URL)
	if err != nil {
		return nil, err
	}

	sub := request{
		Method: "subscribeTicker",
		Params: map[string]string{"symbol": symbol},
		ID:     time.Now().Unix(),
	}
	data, _ := json.Marshal(sub)

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		return nil, &ConnectionError{Op: "subscribe", Err: err}
	}

	c.logger.Debug("tick subscription opened", "symbol", symbol)
	return &wsTickStream{
		conn:        conn,
		readTimeout: c.cfg.ReadTimeout,
		logger:      c.logger.With("symbol", symbol),
	}, nil
}

// wsTickStream reads ticker pushes from one subscription socket.
type wsTickStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	logger      *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Recv blocks for the next ticker push. Frames that are not ticker data
// (subscription acks, heartbeats) are skipped.
func (s *wsTickStream) Recv(ctx context.Context) (model.Tick, error) {
	for {
		select {
		case <-ctx.Done():
			return model.Tick{}, ctx.Err()
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return model.Tick{}, &ConnectionError{Op: "recv", Err: err}
		}

		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			s.logger.Debug("discarding unparseable frame", "error", err)
			continue
		}
		if resp.Method != "ticker" || len(resp.Params) == 0 {
			continue
		}

		var payload tickPayload
		if err := json.Unmarshal(resp.Params, &payload); err != nil {
			s.logger.Debug("discarding malformed ticker", "error", err)
			continue
		}

		tick, err := payload.toTick()
		if err != nil {
			s.logger.Debug("discarding malformed ticker", "error", err)
			continue
		}
		return tick, nil
	}
}

// Close tears down the subscription socket.
func (s *wsTickStream) Close() error {
	s.closeOnce.Do(func() {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
