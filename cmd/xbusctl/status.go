package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/omeyang/xbus/pkg/mq/xstream"
	"github.com/omeyang/xbus/pkg/observability/xlog"
)

// metricPoint 导出到 /metrics 的单个数据点。
type metricPoint struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
	Count      uint64            `json:"count,omitempty"`
}

// statusHandler 只读状态接口：
//
//	GET /healthz                          健康检查，不健康时 503
//	GET /metrics                          总线计数与 OTel 指标
//	GET /consumers                        本进程的消费者
//	GET /streams                          所有流
//	GET /streams/{stream}                 流信息
//	GET /streams/{stream}/pending?group=  未确认条目
//	GET /streams/{stream}/dead-letters    死信，count 默认 10
func (h *host) statusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.HandleFunc("GET /consumers", func(w http.ResponseWriter, r *http.Request) {
		h.respond(r.Context(), w, http.StatusOK, nonNil(h.bus.Consumers()))
	})
	mux.HandleFunc("GET /streams", func(w http.ResponseWriter, r *http.Request) {
		streams, err := h.bus.ListStreams(r.Context())
		h.respondResult(w, r, nonNil(streams), err)
	})
	mux.HandleFunc("GET /streams/{stream}", func(w http.ResponseWriter, r *http.Request) {
		info, err := h.bus.StreamInfo(r.Context(), r.PathValue("stream"))
		h.respondResult(w, r, info, err)
	})
	mux.HandleFunc("GET /streams/{stream}/pending", func(w http.ResponseWriter, r *http.Request) {
		group := r.URL.Query().Get("group")
		if group == "" {
			h.respondError(w, r, http.StatusBadRequest, "group is required")
			return
		}
		entries, err := h.bus.PendingMessages(r.Context(), r.PathValue("stream"), group)
		h.respondResult(w, r, nonNil(entries), err)
	})
	mux.HandleFunc("GET /streams/{stream}/dead-letters", func(w http.ResponseWriter, r *http.Request) {
		count := int64(defaultDLQCount)
		if raw := r.URL.Query().Get("count"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n <= 0 {
				h.respondError(w, r, http.StatusBadRequest, "count must be a positive integer")
				return
			}
			count = n
		}
		letters, err := h.bus.DeadLetters(r.Context(), r.PathValue("stream"), count)
		h.respondResult(w, r, nonNil(letters), err)
	})
	return mux
}

func (h *host) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.bus.Health(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	h.respond(r.Context(), w, code, status)
}

func (h *host) handleMetrics(w http.ResponseWriter, r *http.Request) {
	points, err := h.collect(r.Context())
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.respond(r.Context(), w, http.StatusOK, map[string]any{
		"bus":  h.bus.Metrics(),
		"otel": points,
	})
}

// collect 从 ManualReader 读取一次并展开为数据点。
func (h *host) collect(ctx context.Context) ([]metricPoint, error) {
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	points := []metricPoint{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, metricPoint{Name: m.Name, Attributes: attrMap(dp.Attributes.ToSlice()), Value: float64(dp.Value)})
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, metricPoint{Name: m.Name, Attributes: attrMap(dp.Attributes.ToSlice()), Value: float64(dp.Value)})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, metricPoint{Name: m.Name, Attributes: attrMap(dp.Attributes.ToSlice()), Value: dp.Sum, Count: dp.Count})
				}
			}
		}
	}
	return points, nil
}

func (h *host) respondResult(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		code := http.StatusInternalServerError
		if isClientError(err) {
			code = http.StatusBadRequest
		}
		h.respondError(w, r, code, err.Error())
		return
	}
	h.respond(r.Context(), w, http.StatusOK, v)
}

func (h *host) respondError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	h.respond(r.Context(), w, code, map[string]string{"error": msg})
}

func (h *host) respond(ctx context.Context, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := writeJSON(w, v); err != nil {
		h.logger.Debug(ctx, "write status response", xlog.Err(err), slog.Int("code", code))
	}
}

func isClientError(err error) bool {
	return errors.Is(err, xstream.ErrEmptyStream) ||
		errors.Is(err, xstream.ErrEmptyGroup) ||
		errors.Is(err, xstream.ErrInvalidMaxLen)
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}
