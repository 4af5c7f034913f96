package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gonka_gateway",
		Name:      "requests_total",
		Help:      "Total requests served by the gateway, by route and response status",
	},
	[]string{"route", "status"},
)
