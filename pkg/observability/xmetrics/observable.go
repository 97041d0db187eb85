package xmetrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// ObservableKind 决定导出为累计值还是瞬时值。
type ObservableKind int

const (
	ObservableCounter ObservableKind = iota
	ObservableGauge
)

// Observable 采集时通过 Value 读取的 int64 指标。
type Observable struct {
	Name        string
	Description string
	Unit        string
	Kind        ObservableKind
	Value       func() int64
}

func (o Observable) instrument(meter metric.Meter) (metric.Int64Observable, error) {
	if o.Kind == ObservableGauge {
		return meter.Int64ObservableGauge(o.Name, metric.WithDescription(o.Description), metric.WithUnit(o.Unit))
	}
	return meter.Int64ObservableCounter(o.Name, metric.WithDescription(o.Description), metric.WithUnit(o.Unit))
}

// RegisterObservables 在 meter 上注册 observables 与一个共享回调。
// 缺少 Name 或 Value 的条目被跳过。组件关闭时调用返回值的 Unregister。
func RegisterObservables(meter metric.Meter, observables ...Observable) (metric.Registration, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}

	type reading struct {
		inst metric.Int64Observable
		read func() int64
	}
	readings := make([]reading, 0, len(observables))
	insts := make([]metric.Observable, 0, len(observables))
	for _, o := range observables {
		if o.Name == "" || o.Value == nil {
			continue
		}
		inst, err := o.instrument(meter)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInstrument, o.Name, err)
		}
		readings = append(readings, reading{inst: inst, read: o.Value})
		insts = append(insts, inst)
	}

	return meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		for _, r := range readings {
			obs.ObserveInt64(r.inst, r.read())
		}
		return nil
	}, insts...)
}
