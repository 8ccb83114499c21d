package capture

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	metricBufferDepth      = "provenance.buffer.depth"
	metricActiveSources    = "provenance.active_sources.count"
	metricActiveRelevance  = "provenance.active_sources.avg_relevance"
	metricWorkBlocksTotal  = "provenance.work_blocks.total"
	metricSourceLinksTotal = "provenance.source_links.total"
	metricPrunedTotal      = "provenance.pruned.total"
	metricHubDropped       = "provenance.hub.dropped_total"

	attrFamily = "family"
	attrManual = "manual"
	attrTopic  = "topic"
)

// hubTopics lists every topic Hub tracks drops for, in the fixed order
// observed on each metrics scrape.
var hubTopics = []string{TopicCaptures, TopicWorkBlocks, TopicSourceLinks}

// metricBuilder accumulates OTel instrument creation errors so every
// instrument for a subsystem can be constructed with a single error check.
type metricBuilder struct {
	meter metric.Meter
	err   error
}

func newMetricBuilder(mt metric.Meter) *metricBuilder {
	return &metricBuilder{meter: mt}
}

func (b *metricBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)
	return c
}

func (b *metricBuilder) gauge(name, desc, unit string) metric.Int64ObservableGauge {
	g, err := b.meter.Int64ObservableGauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)
	return g
}

func (b *metricBuilder) float64Gauge(name, desc, unit string) metric.Float64ObservableGauge {
	g, err := b.meter.Float64ObservableGauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)
	return g
}

func (b *metricBuilder) setErr(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create %s: %w", name, err)
	}
}

// Metrics holds the OTel instruments published by a Subsystem: buffer
// depth and active-source gauges sampled on scrape, plus counters for
// committed work blocks, source links, and pruned rows.
type Metrics struct {
	sub *Subsystem

	bufferDepth     metric.Int64ObservableGauge
	activeSources   metric.Int64ObservableGauge
	activeRelevance metric.Float64ObservableGauge
	hubDropped      metric.Int64ObservableGauge
	workBlocksTotal metric.Int64Counter
	sourceLinks     metric.Int64Counter
	pruned          metric.Int64Counter
}

// NewMetrics creates every instrument and registers the observable-gauge
// callbacks against sub's live buffer and tracker state.
func NewMetrics(mt metric.Meter, sub *Subsystem) (*Metrics, error) {
	b := newMetricBuilder(mt)

	m := &Metrics{
		sub:             sub,
		bufferDepth:     b.gauge(metricBufferDepth, "Number of undrained entries per capture family", "{entry}"),
		activeSources:   b.gauge(metricActiveSources, "Number of currently tracked active sources", "{source}"),
		activeRelevance: b.float64Gauge(metricActiveRelevance, "Average decayed relevance across active sources", "1"),
		hubDropped:      b.gauge(metricHubDropped, "Cumulative messages dropped per hub topic on a full subscriber buffer", "{message}"),
		workBlocksTotal: b.counter(metricWorkBlocksTotal, "Total committed work blocks", "{block}"),
		sourceLinks:     b.counter(metricSourceLinksTotal, "Total source links created", "{link}"),
		pruned:          b.counter(metricPrunedTotal, "Total rows reclaimed by retention pruning", "{row}"),
	}
	if b.err != nil {
		return nil, b.err
	}

	_, err := mt.RegisterCallback(m.observe,
		m.bufferDepth, m.activeSources, m.activeRelevance, m.hubDropped)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	return m, nil
}

func (m *Metrics) observe(_ context.Context, o metric.Observer) error {
	for family, depth := range m.sub.buffer.Depths() {
		o.ObserveInt64(m.bufferDepth, int64(depth), metric.WithAttributes(attribute.String(attrFamily, family)))
	}
	avgRelevance, count := m.sub.tracker.Snapshot()
	o.ObserveInt64(m.activeSources, int64(count))
	o.ObserveFloat64(m.activeRelevance, avgRelevance)
	for _, topic := range hubTopics {
		o.ObserveInt64(m.hubDropped, m.sub.hub.DroppedCount(topic), metric.WithAttributes(attribute.String(attrTopic, topic)))
	}
	return nil
}

// RecordWorkBlock increments the committed-work-block counter.
func (m *Metrics) RecordWorkBlock(ctx context.Context, manual bool) {
	m.workBlocksTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool(attrManual, manual)))
}

// RecordSourceLink increments the created-source-link counter.
func (m *Metrics) RecordSourceLink(ctx context.Context) {
	m.sourceLinks.Add(ctx, 1)
}

// RecordPrune adds n to the rows-reclaimed counter; a non-positive n is
// ignored.
func (m *Metrics) RecordPrune(ctx context.Context, n int64) {
	if n > 0 {
		m.pruned.Add(ctx, n)
	}
}

// PrometheusHandler builds a Prometheus registry and MeterProvider wired
// together, returning the scrape handler and the Meter new instruments
// should be created from. Each call is independent, avoiding collector
// conflicts across tests.
func PrometheusHandler() (http.Handler, metric.Meter, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("provenance")

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), meter, nil
}
