package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var streamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "advisor_stream_events_total",
	Help: "Workflow events written to SSE streams, by type.",
}, []string{"type"})
