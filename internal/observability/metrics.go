package observability

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Metrics holds common metric instruments. A nil *Metrics is valid and
// records nothing, so callers never need to guard.
type Metrics struct {
	// HTTP server metrics
	HTTPRequestCount    metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPResponseSize    metric.Int64Histogram

	// Relay metrics
	WSConnections metric.Int64UpDownCounter
	RelayMessages metric.Int64Counter
	MatchesMade   metric.Int64Counter
}

// InitMetrics initializes and returns metric instruments.
func InitMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("chatlite")

	m := &Metrics{}

	var err error
	m.HTTPRequestCount, err = meter.Int64Counter(
		"http.server.request_count",
		metric.WithDescription("Number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request count counter: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.server.request_duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	m.HTTPResponseSize, err = meter.Int64Histogram(
		"http.server.response_size",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create response size histogram: %w", err)
	}

	m.WSConnections, err = meter.Int64UpDownCounter(
		"relay.connections",
		metric.WithDescription("Live WebSocket connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connections counter: %w", err)
	}

	m.RelayMessages, err = meter.Int64Counter(
		"relay.messages",
		metric.WithDescription("Chat messages relayed, by kind"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages counter: %w", err)
	}

	m.MatchesMade, err = meter.Int64Counter(
		"relay.matches",
		metric.WithDescription("Matchmaking pairs formed"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create matches counter: %w", err)
	}

	return m, nil
}

// ConnOpened records a new live connection.
func (m *Metrics) ConnOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.WSConnections.Add(ctx, 1)
}

// ConnClosed records a closed connection.
func (m *Metrics) ConnClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.WSConnections.Add(ctx, -1)
}

// MessageRelayed counts one relayed chat message of the given kind
// (public, private, random).
func (m *Metrics) MessageRelayed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.RelayMessages.Add(ctx, 1, metric.WithAttributes(AttrMessageKind.String(kind)))
}

// MatchMade counts one matchmaking pairing.
func (m *Metrics) MatchMade(ctx context.Context) {
	if m == nil {
		return
	}
	m.MatchesMade.Add(ctx, 1)
}

// AttrMessageKind labels relayed messages by delivery path.
var AttrMessageKind = attribute.Key("relay.message_kind")

// initMeterProvider initializes the meter provider based on config.
func initMeterProvider(ctx context.Context, cfg *Config) (metric.MeterProvider, any, error) {
	var reader sdkmetric.Reader

	switch cfg.Exporter {
	case "stdout":
		exporter, err := stdoutmetric.New(
			stdoutmetric.WithWriter(os.Stderr),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter)
	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		conn, err := grpc.DialContext(ctx, cfg.Endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithBlock(),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to OTLP collector: %w", err)
		}

		exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter)
	case "none":
		return sdkmetric.NewMeterProvider(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown exporter: %s", cfg.Exporter)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	return mp, reader, nil
}
