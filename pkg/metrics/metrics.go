package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "higadmin", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter backend and route scope."},
		[]string{"limiter", "scope"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "higadmin", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter backend and route scope."},
		[]string{"limiter", "scope"},
	)
	ContentWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "higadmin", Name: "content_writes_total", Help: "Document store writes by collection, operation and result."},
		[]string{"collection", "op", "result"},
	)
	FeedSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "higadmin", Name: "feed_subscribers", Help: "Open live feed subscriptions per collection."},
		[]string{"collection"},
	)
	MediaRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "higadmin", Name: "media_rejected_total", Help: "Image uploads refused or failed before reaching a document."},
		[]string{"reason"},
	)
	LogStatements = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "higadmin", Name: "log_statements_total", Help: "Number of log statements by level."},
		[]string{"level"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ContentWrites)
	reg.MustRegister(FeedSubscribers)
	reg.MustRegister(MediaRejected)
	reg.MustRegister(LogStatements)
}

// ObserveWrite records the outcome of one store write.
func ObserveWrite(collection, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ContentWrites.WithLabelValues(collection, op, result).Inc()
}

// LogHook counts log statements per level; install with logger.SetHook.
type LogHook struct{}

func (LogHook) Run(_ *zerolog.Event, level zerolog.Level, _ string) {
	if level != zerolog.NoLevel {
		LogStatements.WithLabelValues(level.String()).Inc()
	}
}
