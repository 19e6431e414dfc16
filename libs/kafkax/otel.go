package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ExtractTraceContext continues the producer's trace, if it sent one.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
}

// headerCarrier is read-only; the dashboard never produces to Kafka.
type headerCarrier []kafka.Header

func (c headerCarrier) Get(key string) string { return HeaderValue(c, key) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, h := range c {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c headerCarrier) Set(string, string) {}

var _ propagation.TextMapCarrier = headerCarrier(nil)
