// Package metrics exposes Prometheus instrumentation for the bot runner:
// tick throughput and latency, order churn, risk trips and the volume ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for one process.
type Metrics struct {
	TicksTotal        prometheus.Counter   // run loop iterations completed
	TickDuration      prometheus.Histogram // tick body duration in seconds
	OrdersPlaced      prometheus.Counter   // quotes placed on the venue
	OrdersCancelled   prometheus.Counter   // orders cancelled by the loop
	VolumeOrders      prometheus.Counter   // volume orders emitted
	RiskTriggers      prometheus.Counter   // ticks vetoed by the risk evaluator
	ErrorsTotal       prometheus.Counter   // non-fatal errors inside ticks
	OpenOrders        prometheus.Gauge     // open orders observed last tick
	OpenOrdersMM      prometheus.Gauge     // managed (market-making) subset
	OpenOrdersVol     prometheus.Gauge     // volume subset
	TradedNotionalDay prometheus.Gauge     // ledger notional for the UTC day
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates collectors on a custom registry, keeping tests
// isolated from the global state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmbot_ticks_total",
			Help: "Run loop iterations completed",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mmbot_tick_duration_seconds",
			Help:    "Duration of one tick body in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		OrdersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmbot_orders_placed_total",
			Help: "Orders placed on the exchange",
		}),
		OrdersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmbot_orders_cancelled_total",
			Help: "Orders cancelled by the run loop",
		}),
		VolumeOrders: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmbot_volume_orders_total",
			Help: "Volume orders emitted by the scheduler",
		}),
		RiskTriggers: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmbot_risk_triggers_total",
			Help: "Ticks vetoed by the risk evaluator",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mmbot_errors_total",
			Help: "Non-fatal errors encountered inside ticks",
		}),
		OpenOrders: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mmbot_open_orders",
			Help: "Open orders observed on the last tick",
		}),
		OpenOrdersMM: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mmbot_open_orders_mm",
			Help: "Open managed market-making orders",
		}),
		OpenOrdersVol: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mmbot_open_orders_vol",
			Help: "Open volume orders",
		}),
		TradedNotionalDay: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mmbot_traded_notional_today",
			Help: "Volume-trade notional accumulated for the current UTC day",
		}),
	}
}
