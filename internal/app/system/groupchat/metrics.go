package groupchat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// messagesPosted counts messages persisted through PostMessage.
	messagesPosted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyhub",
		Subsystem: "groupchat",
		Name:      "messages_posted_total",
		Help:      "Messages persisted to group transcripts",
	})

	// rejections counts refused operations.
	// Labels: op (list, post, join, create), reason (not_found, forbidden, validation, conflict)
	rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyhub",
		Subsystem: "groupchat",
		Name:      "rejections_total",
		Help:      "Group chat operations refused, by operation and reason",
	}, []string{"op", "reason"})

	// joins counts successful group joins.
	joins = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyhub",
		Subsystem: "groupchat",
		Name:      "joins_total",
		Help:      "Successful group joins",
	})

	// pageSize observes how many messages each ListMessages call returns.
	pageSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "studyhub",
		Subsystem: "groupchat",
		Name:      "page_size",
		Help:      "Messages returned per history page",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 75, 100},
	})
)

func reject(op, reason string) {
	rejections.WithLabelValues(op, reason).Inc()
}
