package tracing

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"contrib.go.opencensus.io/exporter/aws"
	"contrib.go.opencensus.io/exporter/jaeger"
	"contrib.go.opencensus.io/exporter/prometheus"
	"contrib.go.opencensus.io/exporter/stackdriver"
	"contrib.go.opencensus.io/exporter/zipkin"
	"contrib.go.opencensus.io/integrations/ocsql"
	datadog "github.com/DataDog/opencensus-go-exporter-datadog"
	zipkinhttp "github.com/openzipkin/zipkin-go/reporter/http"
	"go.opencensus.io/plugin/ochttp"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"

	"github.com/Notifuse/outreach/config"
)

// InitTracing initializes OpenCensus tracing and metrics with the given configuration
// codecov:ignore:start
func InitTracing(cfg *config.TracingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	trace.ApplyConfig(trace.Config{
		DefaultSampler: trace.ProbabilitySampler(cfg.SamplingProbability),
	})

	if err := initTraceExporter(cfg); err != nil {
		return err
	}

	if err := initMetricsExporters(cfg); err != nil {
		return err
	}

	if err := view.Register(ochttp.DefaultServerViews...); err != nil {
		return fmt.Errorf("failed to register HTTP server views: %w", err)
	}

	log.Printf("OpenCensus initialized with trace exporter: %s, metrics exporters: %s",
		cfg.TraceExporter, cfg.MetricsExporter)
	return nil
}

func initTraceExporter(cfg *config.TracingConfig) error {
	switch cfg.TraceExporter {
	case "jaeger":
		if cfg.JaegerEndpoint == "" {
			return fmt.Errorf("Jaeger endpoint is required for Jaeger exporter")
		}
		je, err := jaeger.NewExporter(jaeger.Options{
			CollectorEndpoint: cfg.JaegerEndpoint,
			ServiceName:       cfg.ServiceName,
			Process:           jaeger.Process{ServiceName: cfg.ServiceName},
		})
		if err != nil {
			return fmt.Errorf("failed to create Jaeger exporter: %w", err)
		}
		trace.RegisterExporter(je)
	case "zipkin":
		if cfg.ZipkinEndpoint == "" {
			return fmt.Errorf("Zipkin endpoint is required for Zipkin exporter")
		}
		trace.RegisterExporter(zipkin.NewExporter(zipkinhttp.NewReporter(cfg.ZipkinEndpoint), nil))
	case "stackdriver":
		if cfg.StackdriverProjectID == "" {
			return fmt.Errorf("Stackdriver project ID is required for Stackdriver exporter")
		}
		se, err := stackdriver.NewExporter(stackdriver.Options{ProjectID: cfg.StackdriverProjectID})
		if err != nil {
			return fmt.Errorf("failed to create Stackdriver exporter: %w", err)
		}
		trace.RegisterExporter(se)
	case "datadog":
		exporter, err := newDatadogExporter(cfg)
		if err != nil {
			return err
		}
		trace.RegisterExporter(exporter)
	case "xray":
		if cfg.XRayRegion == "" {
			return fmt.Errorf("AWS region is required for X-Ray exporter")
		}
		exporter, err := aws.NewExporter(aws.WithRegion(cfg.XRayRegion), aws.WithVersion("latest"))
		if err != nil {
			return fmt.Errorf("failed to create AWS X-Ray exporter: %w", err)
		}
		trace.RegisterExporter(exporter)
	case "none", "":
		return nil
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}
	return nil
}

// initMetricsExporters accepts a comma-separated list of exporters
func initMetricsExporters(cfg *config.TracingConfig) error {
	if cfg.MetricsExporter == "none" || cfg.MetricsExporter == "" {
		return nil
	}

	for _, exporter := range strings.Split(cfg.MetricsExporter, ",") {
		exporter = strings.TrimSpace(exporter)
		if exporter == "" {
			continue
		}

		var err error
		switch exporter {
		case "prometheus":
			err = initPrometheusExporter(cfg)
		case "stackdriver":
			var se *stackdriver.Exporter
			se, err = stackdriver.NewExporter(stackdriver.Options{
				ProjectID:    cfg.StackdriverProjectID,
				MetricPrefix: cfg.ServiceName,
				OnError: func(err error) {
					log.Printf("Stackdriver metrics exporter error: %v", err)
				},
			})
			if err == nil {
				view.RegisterExporter(se)
			}
		case "datadog":
			var dd *datadog.Exporter
			dd, err = newDatadogExporter(cfg)
			if err == nil {
				view.RegisterExporter(dd)
			}
		default:
			return fmt.Errorf("unsupported metrics exporter: %s", exporter)
		}

		if err != nil {
			return fmt.Errorf("failed to initialize %s metrics exporter: %w", exporter, err)
		}
	}

	if err := view.Register(ocsql.DefaultViews...); err != nil {
		return fmt.Errorf("failed to register database views: %w", err)
	}
	return RegisterDeliveryViews()
}

func newDatadogExporter(cfg *config.TracingConfig) (*datadog.Exporter, error) {
	if cfg.DatadogAgentAddress == "" {
		return nil, fmt.Errorf("Datadog agent address is required for Datadog exporter")
	}

	options := datadog.Options{
		Service:   cfg.ServiceName,
		TraceAddr: cfg.DatadogAgentAddress,
		StatsAddr: cfg.DatadogAgentAddress,
		OnError: func(err error) {
			log.Printf("Datadog exporter error: %v", err)
		},
	}
	if cfg.DatadogAPIKey != "" {
		options.GlobalTags = map[string]interface{}{"api_key": cfg.DatadogAPIKey}
	}

	exporter, err := datadog.NewExporter(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create Datadog exporter: %w", err)
	}
	return exporter, nil
}

func initPrometheusExporter(cfg *config.TracingConfig) error {
	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: strings.ReplaceAll(cfg.ServiceName, "-", "_"),
		OnError: func(err error) {
			log.Printf("Prometheus exporter error: %v", err)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	view.RegisterExporter(pe)

	if cfg.PrometheusPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", pe)

			server := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.PrometheusPort),
				Handler: mux,
			}

			log.Printf("Starting Prometheus metrics server on :%d", cfg.PrometheusPort)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Failed to start Prometheus metrics server: %v", err)
			}
		}()
	}

	return nil
}

// codecov:ignore:end
