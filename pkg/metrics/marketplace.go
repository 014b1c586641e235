package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MarketplaceMetrics counts domain events emitted by the services.
type MarketplaceMetrics struct {
	ordersPlaced      prometheus.Counter
	orderTransitions  *prometheus.CounterVec
	stockRejections   prometheus.Counter
	reviewsSubmitted  prometheus.Counter
	reviewModerations *prometheus.CounterVec
}

func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	if reg == nil {
		return &MarketplaceMetrics{}
	}
	m := &MarketplaceMetrics{
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Orders created from carts.",
		}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Order status changes, by target status.",
		}, []string{"status"}),
		stockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_stock_rejections_total",
			Help: "Delivery confirmations rejected for insufficient stock.",
		}),
		reviewsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviews_submitted_total",
			Help: "Reviews submitted by customers.",
		}),
		reviewModerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_moderations_total",
			Help: "Moderator actions on reviews, by action.",
		}, []string{"action"}),
	}
	reg.MustRegister(m.ordersPlaced, m.orderTransitions, m.stockRejections, m.reviewsSubmitted, m.reviewModerations)
	return m
}

func (m *MarketplaceMetrics) OrderPlaced() {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.Inc()
}

func (m *MarketplaceMetrics) OrderTransitioned(status string) {
	if m == nil || m.orderTransitions == nil {
		return
	}
	m.orderTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *MarketplaceMetrics) StockRejected() {
	if m == nil || m.stockRejections == nil {
		return
	}
	m.stockRejections.Inc()
}

func (m *MarketplaceMetrics) ReviewSubmitted() {
	if m == nil || m.reviewsSubmitted == nil {
		return
	}
	m.reviewsSubmitted.Inc()
}

func (m *MarketplaceMetrics) ReviewModerated(action string) {
	if m == nil || m.reviewModerations == nil {
		return
	}
	m.reviewModerations.WithLabelValues(normalizeLabel(action)).Inc()
}
