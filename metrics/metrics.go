package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbet_inbound_messages_total",
			Help: "Inbound WhatsApp messages by payload type",
		},
		[]string{"type"},
	)

	FlowTraversalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbet_flow_traversals_total",
			Help: "Flow engine traversals by flow and result",
		},
		[]string{"flow", "result"},
	)

	TicketsPlacedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbet_tickets_placed_total",
			Help: "Bet tickets successfully placed",
		},
	)

	TicketRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbet_ticket_rejections_total",
			Help: "Bet ticket submissions rejected by reason",
		},
		[]string{"reason"},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbet_settlements_total",
			Help: "Ticket settlements by final status",
		},
		[]string{"status"},
	)

	CommissionsGrantedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbet_commissions_granted_total",
			Help: "Agent commissions granted",
		},
	)

	OutboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbet_outbound_messages_total",
			Help: "Outbound WhatsApp sends by status",
		},
		[]string{"status"},
	)

	JobRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbet_job_retries_total",
			Help: "Queue task retries by task name",
		},
		[]string{"task"},
	)
)

// Serve exposes /metrics on a side listener, separate from the Fiber app.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
