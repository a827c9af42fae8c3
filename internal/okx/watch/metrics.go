package watch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts pipeline activity, served on /metrics.
type Metrics struct {
	TicksReceived    prometheus.Counter
	Crossings        prometheus.Counter
	AlertsSent       prometheus.Counter
	AlertsSuppressed prometheus.Counter
	AlertsFailed     prometheus.Counter
	Connects         prometheus.Counter
	FeedErrors       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_ticks_received_total",
			Help: "Valid price ticks consumed from the feed.",
		}),
		Crossings: factory.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_band_crossings_total",
			Help: "Price observations outside the active band.",
		}),
		AlertsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_alerts_sent_total",
			Help: "Alerts delivered to the webhook.",
		}),
		AlertsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_alerts_suppressed_total",
			Help: "Crossings suppressed by the cooldown deduplicator.",
		}),
		AlertsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_alerts_failed_total",
			Help: "Alerts the webhook rejected or that failed to send.",
		}),
		Connects: factory.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_feed_connects_total",
			Help: "Successful feed connections, including reconnects.",
		}),
		FeedErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_feed_errors_total",
			Help: "Error frames and malformed data received from the feed.",
		}),
	}
}
