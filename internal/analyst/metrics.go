package analyst

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reviewsUsed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "trading",
	Subsystem: "analyst",
	Name:      "reviews_total",
	Help:      "Completed signal reviews counted against the daily quota.",
})
