package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	promreg "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/orchestr8/dashboard/internal/config"
)

type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *metric.MeterProvider
	promExporter   *prometheus.Exporter
	promHandler    http.Handler
	shutdownFuncs  []func(context.Context) error

	httpRequestCounter *promreg.CounterVec
	httpRequestLatency *promreg.HistogramVec
	changeEventCounter *promreg.CounterVec
	malformedCounter   *promreg.CounterVec
	invalidationCount  promreg.Counter
	refreshLatency     promreg.Histogram
}

func Setup(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	if !cfg.EnableOTLP && !cfg.EnableMetrics {
		return nil, nil
	}

	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("orchestr8-dashboard"),
		),
	)
	if err != nil {
		return nil, err
	}

	if cfg.EnableOTLP {
		endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		opts := []otlptracegrpc.Option{}
		switch {
		case strings.HasPrefix(endpoint, "http://"):
			endpoint = strings.TrimPrefix(endpoint, "http://")
			opts = append(opts, otlptracegrpc.WithInsecure())
		case strings.HasPrefix(endpoint, "https://"):
			endpoint = strings.TrimPrefix(endpoint, "https://")
		default:
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))

		client := otlptracegrpc.NewClient(opts...)
		exporter, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		provider.tracerProvider = tp
		provider.shutdownFuncs = append(provider.shutdownFuncs, tp.Shutdown)
	}

	if cfg.EnableMetrics {
		registry := promreg.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, err
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(promExporter),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		provider.meterProvider = mp
		provider.promExporter = promExporter
		provider.promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
		provider.shutdownFuncs = append(provider.shutdownFuncs, mp.Shutdown)

		latencyBuckets := []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10}
		httpRequests := promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: "orchestr8_dashboard",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		)
		httpLatency := promreg.NewHistogramVec(
			promreg.HistogramOpts{
				Namespace: "orchestr8_dashboard",
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   latencyBuckets,
			},
			[]string{"method", "route", "status"},
		)
		changeEvents := promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: "orchestr8_dashboard",
				Name:      "change_events_total",
				Help:      "Change notifications observed per watched table.",
			},
			[]string{"table"},
		)
		malformed := promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: "orchestr8_dashboard",
				Name:      "malformed_change_payloads_total",
				Help:      "Change notifications dropped because the payload could not be decoded.",
			},
			[]string{"table"},
		)
		invalidations := promreg.NewCounter(
			promreg.CounterOpts{
				Namespace: "orchestr8_dashboard",
				Name:      "invalidations_total",
				Help:      "Debounced invalidation signals fired by the realtime coordinator.",
			},
		)
		refreshLatency := promreg.NewHistogram(
			promreg.HistogramOpts{
				Namespace: "orchestr8_dashboard",
				Name:      "dashboard_refresh_duration_seconds",
				Help:      "Duration of dashboard metric refreshes triggered by invalidations.",
				Buckets:   latencyBuckets,
			},
		)
		collectors := []promreg.Collector{httpRequests, httpLatency, changeEvents, malformed, invalidations, refreshLatency}
		for _, c := range collectors {
			if err := registry.Register(c); err != nil {
				return nil, err
			}
		}
		provider.httpRequestCounter = httpRequests
		provider.httpRequestLatency = httpLatency
		provider.changeEventCounter = changeEvents
		provider.malformedCounter = malformed
		provider.invalidationCount = invalidations
		provider.refreshLatency = refreshLatency
	}

	return provider, nil
}

func (p *Provider) PrometheusHandler() http.Handler {
	if p == nil || p.promHandler == nil {
		return nil
	}
	return p.promHandler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tracerProvider
}

func (p *Provider) RecordHTTPRequest(_ context.Context, method, route string, status int, duration time.Duration) {
	if p == nil {
		return
	}

	statusLabel := strconv.Itoa(status)

	if p.httpRequestCounter != nil {
		p.httpRequestCounter.WithLabelValues(method, route, statusLabel).Inc()
	}

	if p.httpRequestLatency != nil {
		p.httpRequestLatency.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
	}
}

func (p *Provider) RecordChangeEvent(table string) {
	if p == nil || p.changeEventCounter == nil {
		return
	}
	p.changeEventCounter.WithLabelValues(table).Inc()
}

func (p *Provider) RecordMalformedPayload(table string) {
	if p == nil || p.malformedCounter == nil {
		return
	}
	p.malformedCounter.WithLabelValues(table).Inc()
}

func (p *Provider) RecordInvalidation() {
	if p == nil || p.invalidationCount == nil {
		return
	}
	p.invalidationCount.Inc()
}

func (p *Provider) RecordRefresh(duration time.Duration) {
	if p == nil || p.refreshLatency == nil {
		return
	}
	p.refreshLatency.Observe(duration.Seconds())
}
