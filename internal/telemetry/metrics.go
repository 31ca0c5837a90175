package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// defaultMetrics is set by InitMetrics so services can record domain
// metrics without threading the handle through every constructor. The
// package-level Record* helpers no-op until it is set, which keeps unit
// tests free of telemetry setup.
var defaultMetrics *Metrics

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter   metric.Int64Counter
	RequestDuration  metric.Float64Histogram
	TokensUsed       metric.Int64Counter
	ExtractionTime   metric.Float64Histogram
	BriefGenerations metric.Int64Counter
	CitationChecks   metric.Int64Counter
	CacheLookups     metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("tracebrief")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	extractionTime, err := meter.Float64Histogram(
		"document.extraction.duration",
		metric.WithDescription("Document extraction duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	briefGenerations, err := meter.Int64Counter(
		"brief.generations.total",
		metric.WithDescription("Total brief generation attempts"),
	)
	if err != nil {
		return nil, err
	}

	citationChecks, err := meter.Int64Counter(
		"brief.citation_checks.total",
		metric.WithDescription("Total citation verification outcomes"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"brief.cache.lookups",
		metric.WithDescription("Brief cache lookups by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		RequestCounter:   requestCounter,
		RequestDuration:  requestDuration,
		TokensUsed:       tokensUsed,
		ExtractionTime:   extractionTime,
		BriefGenerations: briefGenerations,
		CitationChecks:   citationChecks,
		CacheLookups:     cacheLookups,
	}
	defaultMetrics = m
	return m, nil
}

// RecordTokensUsed records Gemini token usage against the default metrics.
func RecordTokensUsed(tokens int64, model string) {
	if defaultMetrics != nil {
		defaultMetrics.RecordTokensUsed(tokens, model)
	}
}

// RecordExtraction records an extraction duration against the default metrics.
func RecordExtraction(duration float64, kind, status string) {
	if defaultMetrics != nil {
		defaultMetrics.RecordExtraction(duration, kind, status)
	}
}

// RecordBriefGeneration records a generation outcome against the default metrics.
func RecordBriefGeneration(model, outcome string) {
	if defaultMetrics != nil {
		defaultMetrics.RecordBriefGeneration(model, outcome)
	}
}

// RecordCitationCheck records citation outcomes against the default metrics.
func RecordCitationCheck(verified bool, count int64) {
	if defaultMetrics != nil && count > 0 {
		defaultMetrics.RecordCitationCheck(verified, count)
	}
}

// RecordCacheLookup records a cache hit or miss against the default metrics.
func RecordCacheLookup(hit bool) {
	if defaultMetrics != nil {
		defaultMetrics.RecordCacheLookup(hit)
	}
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordExtraction records document extraction metrics
func (m *Metrics) RecordExtraction(duration float64, kind, status string) {
	attrs := []attribute.KeyValue{
		attribute.String("document.kind", kind),
		attribute.String("document.status", status),
	}

	m.ExtractionTime.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordBriefGeneration records a brief generation attempt and its outcome
func (m *Metrics) RecordBriefGeneration(model, outcome string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("outcome", outcome),
	}

	m.BriefGenerations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordCitationCheck records verified vs unverifiable claim counts
func (m *Metrics) RecordCitationCheck(verified bool, count int64) {
	attrs := []attribute.KeyValue{
		attribute.Bool("citation.verified", verified),
	}

	m.CitationChecks.Add(context.Background(), count, metric.WithAttributes(attrs...))
}

// RecordCacheLookup records a brief cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("cache.hit", hit),
	}

	m.CacheLookups.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
