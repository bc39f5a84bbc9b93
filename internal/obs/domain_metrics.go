package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// GatewayRequestsTotal counts outbound calls to the payment processor.
	GatewayRequestsTotal *prometheus.CounterVec
	// ClassificationsTotal counts result-code classifications by matched rule.
	ClassificationsTotal *prometheus.CounterVec
	// ReconciliationsTotal counts reconciliation outcomes for inbound notifications.
	ReconciliationsTotal *prometheus.CounterVec
	// FulfillmentsTotal counts fulfillment task outcomes.
	FulfillmentsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		GatewayRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Count of outbound payment processor calls by action and result.",
		}, []string{"action", "result"})
		ClassificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_classifications_total",
			Help:      "Count of vendor result-code classifications by rule and outcome.",
		}, []string{"rule", "outcome"})
		ReconciliationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Count of reconciliation outcomes for inbound payment notifications.",
		}, []string{"outcome"})
		FulfillmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillments_total",
			Help:      "Count of cart fulfillment task outcomes.",
		}, []string{"result"})

		mustRegisterCollector(reg, GatewayRequestsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				GatewayRequestsTotal = v
			}
		})
		mustRegisterCollector(reg, ClassificationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ClassificationsTotal = v
			}
		})
		mustRegisterCollector(reg, ReconciliationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReconciliationsTotal = v
			}
		})
		mustRegisterCollector(reg, FulfillmentsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FulfillmentsTotal = v
			}
		})
	})
}
