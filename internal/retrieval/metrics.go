package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_retrieval_documents_total",
		Help: "Documents returned by the retrieval gateway, by source.",
	}, []string{"source"})

	queryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_retrieval_query_failures_total",
		Help: "Individual query failures that were skipped, by source.",
	}, []string{"source"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advisor_retrieval_cache_hits_total",
		Help: "Retrieval results served from the redis cache.",
	})
)
