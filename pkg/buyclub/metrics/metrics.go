// Package metrics holds the Prometheus collectors for the server.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buyclub_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// ProductsSuggested counts products created through suggestion.
	ProductsSuggested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buyclub_products_suggested_total",
		Help: "Products suggested by group members.",
	})

	// Votes counts vote transitions by kind (up, down, clear).
	Votes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buyclub_product_votes_total",
		Help: "Votes cast on ranked products.",
	}, []string{"vote"})

	// Recalculations counts rank recalculations by whether the list changed.
	Recalculations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buyclub_rank_recalculations_total",
		Help: "Rank recalculations, labelled by whether anything changed.",
	}, []string{"changed"})

	// LegacyMigrations counts legacy shopping list items folded into product lists.
	LegacyMigrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buyclub_legacy_migrations_total",
		Help: "Legacy shopping list migrations by outcome.",
	}, []string{"outcome"})
)

// ObserveRecalculation records one recalculation
func ObserveRecalculation(changed bool) {
	Recalculations.WithLabelValues(strconv.FormatBool(changed)).Inc()
}

// Middleware records request latency keyed by the matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry in the exposition format
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
