package xstream

import (
	"log/slog"

	"github.com/omeyang/xbus/pkg/observability/xmetrics"
)

const (
	componentName = "xstream"
)

func streamAttrs(stream string) []xmetrics.Attr {
	attrs := []xmetrics.Attr{xmetrics.String("messaging.system", "redis")}
	if stream != "" {
		attrs = append(attrs, xmetrics.String("messaging.destination", stream))
	}
	return attrs
}

func consumeAttrs(stream, group, consumer string) []xmetrics.Attr {
	return append(streamAttrs(stream),
		xmetrics.String("messaging.consumer.group.name", group),
		xmetrics.String("messaging.consumer.name", consumer),
	)
}

func slogStream(stream string) slog.Attr { return slog.String("stream", stream) }

func slogConsumer(key consumerKey) slog.Attr {
	return slog.Group("consumer",
		slog.String("stream", key.stream),
		slog.String("group", key.group),
		slog.String("name", key.consumer),
	)
}
