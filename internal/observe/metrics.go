// SPDX-License-Identifier: EPL-2.0

// Package observe exports processor counters and codec initialization
// timings through the OpenTelemetry metrics API.
//
// Processor counters are atomics on the real-time path; they are read only
// when a reader collects, through observable instruments. Tests should use
// [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ik5/framebridge/frame"
)

const meterName = "github.com/ik5/framebridge"

// StatsSource is anything that reports processor counters. *frame.Processor
// satisfies it.
type StatsSource interface {
	Name() string
	Stats() frame.Stats
}

// Metrics holds the instruments. It is safe for concurrent use.
type Metrics struct {
	// InitDuration tracks codec initialization time, by node and status.
	InitDuration metric.Float64Histogram

	// InitResults counts finished initializations, by node and status.
	InitResults metric.Int64Counter

	// ActiveNodes tracks the number of tracked processors.
	ActiveNodes metric.Int64UpDownCounter

	blocks          metric.Int64ObservableCounter
	framesProcessed metric.Int64ObservableCounter
	framesSkipped   metric.Int64ObservableCounter
	underrunBlocks  metric.Int64ObservableCounter
	configErrors    metric.Int64ObservableCounter
	reallocations   metric.Int64ObservableCounter

	mu      sync.Mutex
	sources []StatsSource
}

// initBuckets are bucket boundaries in seconds. Initializations range from
// a few milliseconds to several seconds for long impulse responses.
var initBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates the instruments on mp and registers the callback that
// reads tracked processors.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.InitDuration, err = m.Float64Histogram("framebridge.codec.init.duration",
		metric.WithDescription("Time spent in expensive codec initialization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(initBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InitResults, err = m.Int64Counter("framebridge.codec.init.results",
		metric.WithDescription("Finished codec initializations by node and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveNodes, err = m.Int64UpDownCounter("framebridge.nodes.active",
		metric.WithDescription("Number of processors being reported."),
	); err != nil {
		return nil, err
	}

	observable := []struct {
		dst  *metric.Int64ObservableCounter
		name string
		desc string
	}{
		{&met.blocks, "framebridge.blocks", "Host blocks processed."},
		{&met.framesProcessed, "framebridge.frames.processed", "Codec frames processed."},
		{&met.framesSkipped, "framebridge.frames.skipped", "Codec frames skipped because the codec was not ready."},
		{&met.underrunBlocks, "framebridge.blocks.underrun", "Host blocks that carried silence for a missing frame."},
		{&met.configErrors, "framebridge.config.errors", "Host blocks rejected for not matching the layout."},
		{&met.reallocations, "framebridge.reallocations", "Buffer pool reallocations."},
	}
	instruments := make([]metric.Observable, 0, len(observable))
	for _, o := range observable {
		if *o.dst, err = m.Int64ObservableCounter(o.name, metric.WithDescription(o.desc)); err != nil {
			return nil, err
		}
		instruments = append(instruments, *o.dst)
	}

	if _, err = m.RegisterCallback(met.observe, instruments...); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) observe(_ context.Context, o metric.Observer) error {
	m.mu.Lock()
	sources := slices.Clone(m.sources)
	m.mu.Unlock()

	for _, src := range sources {
		st := src.Stats()
		attrs := metric.WithAttributes(attribute.String("node", src.Name()))
		o.ObserveInt64(m.blocks, int64(st.Blocks), attrs)
		o.ObserveInt64(m.framesProcessed, int64(st.FramesProcessed), attrs)
		o.ObserveInt64(m.framesSkipped, int64(st.FramesSkipped), attrs)
		o.ObserveInt64(m.underrunBlocks, int64(st.UnderrunBlocks), attrs)
		o.ObserveInt64(m.configErrors, int64(st.ConfigErrors), attrs)
		o.ObserveInt64(m.reallocations, int64(st.Reallocations), attrs)
	}

	return nil
}

// Track reports src's counters from now on.
func (m *Metrics) Track(src StatsSource) {
	m.mu.Lock()
	m.sources = append(m.sources, src)
	m.mu.Unlock()

	m.ActiveNodes.Add(context.Background(), 1)
}

// Untrack stops reporting src.
func (m *Metrics) Untrack(src StatsSource) {
	m.mu.Lock()
	n := len(m.sources)
	m.sources = slices.DeleteFunc(m.sources, func(s StatsSource) bool { return s == src })
	removed := n - len(m.sources)
	m.mu.Unlock()

	if removed > 0 {
		m.ActiveNodes.Add(context.Background(), int64(-removed))
	}
}

// RecordInit records one finished initialization.
func (m *Metrics) RecordInit(ctx context.Context, node string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("node", node),
		attribute.String("status", status),
	)

	m.InitDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.InitResults.Add(ctx, 1, attrs)
}

// InitObserver adapts RecordInit for frame.WithInitObserver.
func (m *Metrics) InitObserver() frame.LifecycleOption {
	return frame.WithInitObserver(func(node string, elapsed time.Duration, err error) {
		m.RecordInit(context.Background(), node, elapsed, err)
	})
}
