// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Tick ingest and persistence rates (post-dedup)
//   - Feed reconnect count
//   - Durable queue depth per payload kind
//   - Orders submitted per side, and rejections
//   - Watchdog alert counts per subservice
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradepipe_ticks_received_total", Help: "Ticks received from the exchange stream"},
		[]string{"symbol"},
	)
	TicksPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradepipe_ticks_persisted_total", Help: "Ticks persisted after interval dedup"},
		[]string{"symbol"},
	)
	FeedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tradepipe_feed_reconnects_total", Help: "Feed socket reconnects, both receive-failure and watchdog driven"},
	)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "tradepipe_queue_depth", Help: "QUEUED items in the durable queue"},
		[]string{"kind"},
	)
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradepipe_orders_submitted_total", Help: "Orders handed to the exchange"},
		[]string{"symbol", "side"},
	)
	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradepipe_orders_rejected_total", Help: "Signals that produced no order"},
		[]string{"reason"},
	)
	WatchdogAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradepipe_watchdog_alerts_total", Help: "Watchdog alerts emitted"},
		[]string{"subservice", "kind"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksReceived,
		TicksPersisted,
		FeedReconnects,
		QueueDepth,
		OrdersSubmitted,
		OrdersRejected,
		WatchdogAlerts,
	)
}

// Serve starts the metrics endpoint in the background and returns the server
// so callers can shut it down.
func Serve(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
