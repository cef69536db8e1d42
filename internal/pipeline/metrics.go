package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recap_summarize_requests_total",
		Help: "Summarize requests prepared by the pipeline.",
	})
	deniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recap_budget_denied_total",
		Help: "Summarize requests denied by the budget ledger.",
	})
	sampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recap_sampled_requests_total",
		Help: "Requests whose message set was reduced by sampling.",
	})
	storeTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recap_store_timeouts_total",
		Help: "Retrieval attempts that hit the store timeout budget.",
	})
)
