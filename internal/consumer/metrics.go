package consumer

import "github.com/prometheus/client_golang/prometheus"

// Results recorded per consumed message.
const (
	resultProcessed    = "processed"
	resultHandlerError = "handler_error"
	resultDecodeError  = "decode_error"
)

var (
	consumedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepcause",
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Kafka messages read back from the outbox topics, labeled by topic and result.",
	}, []string{"topic", "result"})

	lastEventTime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stepcause",
		Subsystem: "consumer",
		Name:      "last_event_timestamp_seconds",
		Help:      "Broker timestamp of the newest processed message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(consumedMessages, lastEventTime)
}

func recordProcessed(msg Message) {
	consumedMessages.WithLabelValues(msg.Topic, resultProcessed).Inc()
	if !msg.Timestamp.IsZero() {
		lastEventTime.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	consumedMessages.WithLabelValues(msg.Topic, resultHandlerError).Inc()
}

func recordDecodeError(topic string) {
	consumedMessages.WithLabelValues(topic, resultDecodeError).Inc()
}
