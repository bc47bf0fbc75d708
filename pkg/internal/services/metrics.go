package services

import "github.com/prometheus/client_golang/prometheus"

const (
	SendPathRealtime = "realtime"
	SendPathFallback = "fallback"
	SendPathUpload   = "upload"
)

var (
	sentMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_messages_sent_total",
			Help: "Messages handed to the server, by path.",
		},
		[]string{"path"},
	)
	fallbackSends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_fallback_sends_total",
		Help: "Sends retried over the request/response API after a transport fault.",
	})
	failedSends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_failed_sends_total",
		Help: "Sends that failed on every path.",
	})
	rejectedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_rejected_messages_total",
		Help: "Messages rejected by the content policy.",
	})
	reconciledMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_reconciled_messages_total",
		Help: "Provisional entries resolved to their server id.",
	})
	transfersFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_transfers_total",
			Help: "Chunked attachment transfers, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(sentMessages)
	prometheus.MustRegister(fallbackSends)
	prometheus.MustRegister(failedSends)
	prometheus.MustRegister(rejectedMessages)
	prometheus.MustRegister(reconciledMessages)
	prometheus.MustRegister(transfersFinished)
}
