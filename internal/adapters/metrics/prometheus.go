package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "perp_bot"

// Prometheus implements ports.Metrics with Prometheus collectors registered
// on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	ticksTotal    *prometheus.CounterVec
	tradesOpened  *prometheus.CounterVec
	tradeQty      *prometheus.HistogramVec
	tradesClosed  *prometheus.CounterVec
	realizedPnL   *prometheus.CounterVec
	eventsTotal   *prometheus.CounterVec
	tradesToday   prometheus.Gauge
	dailyPnL      prometheus.Gauge
	loopErrorsTot prometheus.Counter
}

// NewPrometheus creates the collectors and registers them, together with the
// Go and process collectors, on a fresh registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Engine ticks by outcome",
			},
			[]string{"outcome"},
		),
		tradesOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_opened_total",
				Help:      "Trades opened",
			},
			[]string{"symbol", "side"},
		),
		tradeQty: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trade_qty",
				Help:      "Distribution of entry quantities in base units",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"symbol"},
		),
		tradesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_closed_total",
				Help:      "Trades closed by exit reason",
			},
			[]string{"symbol", "reason"},
		),
		realizedPnL: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realized_pnl_abs_total",
				Help:      "Absolute realized PnL in quote currency, split by sign",
			},
			[]string{"symbol", "sign"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Audit events recorded",
			},
			[]string{"level", "type"},
		),
		tradesToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trades_today",
			Help:      "Entries since the last UTC day rollover",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_pnl",
			Help:      "Realized PnL since the last UTC day rollover",
		}),
		loopErrorsTot: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_errors_total",
			Help:      "Ticks that ended in an error",
		}),
	}

	p.registry.MustRegister(
		p.ticksTotal, p.tradesOpened, p.tradeQty, p.tradesClosed, p.realizedPnL,
		p.eventsTotal, p.tradesToday, p.dailyPnL, p.loopErrorsTot,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry exposes the registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) TickCompleted(outcome string) {
	p.ticksTotal.WithLabelValues(outcome).Inc()
	if outcome == "error" {
		p.loopErrorsTot.Inc()
	}
}

func (p *Prometheus) TradeOpened(symbol, side string, qty float64) {
	p.tradesOpened.WithLabelValues(symbol, side).Inc()
	p.tradeQty.WithLabelValues(symbol).Observe(qty)
}

func (p *Prometheus) TradeClosed(symbol, reason string, pnl float64) {
	p.tradesClosed.WithLabelValues(symbol, reason).Inc()
	if pnl >= 0 {
		p.realizedPnL.WithLabelValues(symbol, "profit").Add(pnl)
	} else {
		p.realizedPnL.WithLabelValues(symbol, "loss").Add(-pnl)
	}
}

func (p *Prometheus) EventRecorded(level, typ string) {
	p.eventsTotal.WithLabelValues(level, typ).Inc()
}

func (p *Prometheus) SetDailyState(tradesToday int, dailyPnL float64) {
	p.tradesToday.Set(float64(tradesToday))
	p.dailyPnL.Set(dailyPnL)
}
