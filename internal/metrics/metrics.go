package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersPlaced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plantcart_orders_placed_total",
		Help: "Orders committed after every line item reserved.",
	})

	OrdersRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plantcart_orders_rejected_total",
		Help: "Orders rejected before commit, by reason.",
	}, []string{"reason"})

	HistoryAppendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plantcart_history_append_failures_total",
		Help: "Orders persisted whose user-history append failed.",
	})

	StockConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plantcart_stock_conflicts_total",
		Help: "Conditional decrements that found insufficient stock.",
	})
)

func init() {
	prometheus.MustRegister(OrdersPlaced, OrdersRejected, HistoryAppendFailures, StockConflicts)
}
