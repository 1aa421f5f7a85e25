package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatRequests     prometheus.Counter
	ChatFailures     prometheus.Counter
	TokensTotal      prometheus.Counter
	CostUSDTotal     prometheus.Counter
	SummariesTotal   prometheus.Counter
	RateLimitedTotal prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "kenchat",
				Name:      "chat_requests_total",
				Help:      "Total chat generation requests handled",
			}),
			ChatFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "kenchat",
				Name:      "chat_failures_total",
				Help:      "Total chat generation requests that failed",
			}),
			TokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "kenchat",
				Name:      "tokens_total",
				Help:      "Total tokens recorded in the usage ledger",
			}),
			CostUSDTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "kenchat",
				Name:      "cost_usd_total",
				Help:      "Total USD cost recorded in the usage ledger",
			}),
			SummariesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "kenchat",
				Name:      "summaries_total",
				Help:      "Total conversation summaries created",
			}),
			RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "kenchat",
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the rate limiter",
			}),
		}
		prometheus.MustRegister(
			global.ChatRequests, global.ChatFailures, global.TokensTotal,
			global.CostUSDTotal, global.SummariesTotal, global.RateLimitedTotal,
		)
	})
	return global
}
