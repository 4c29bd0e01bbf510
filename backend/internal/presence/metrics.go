package presence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	joinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_joins_total",
		Help: "Join requests by outcome",
	}, []string{"outcome"})

	leavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_offline_total",
		Help: "Identities that went offline on a board",
	})
)
