package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	permissionChecks    metric.Int64Counter
	cacheLookups        metric.Int64Counter
	guardBlocks         metric.Int64Counter
	membershipMutations metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "greenroom"
	}
	meter := provider.Meter(name)

	permissionChecks, err := meter.Int64Counter("greenroom_permission_checks_total")
	if err != nil {
		return nil, err
	}
	cacheLookups, err := meter.Int64Counter("greenroom_authz_cache_lookups_total")
	if err != nil {
		return nil, err
	}
	guardBlocks, err := meter.Int64Counter("greenroom_membership_guard_blocks_total")
	if err != nil {
		return nil, err
	}
	membershipMutations, err := meter.Int64Counter("greenroom_membership_mutations_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		permissionChecks:    permissionChecks,
		cacheLookups:        cacheLookups,
		guardBlocks:         guardBlocks,
		membershipMutations: membershipMutations,
	}, nil
}

// RecordPermissionCheck increments permission check counts.
func (m *Metrics) RecordPermissionCheck(ctx context.Context, allowed bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", checkResult(allowed)))
	m.permissionChecks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheLookup increments resolver cache lookup counts.
func (m *Metrics) RecordCacheLookup(ctx context.Context, kind string, hit bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("outcome", lookupOutcome(hit)),
	)
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGuardBlock increments mutation guard rejection counts.
func (m *Metrics) RecordGuardBlock(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.guardBlocks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMembershipMutation increments applied membership mutation counts.
func (m *Metrics) RecordMembershipMutation(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.membershipMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func checkResult(allowed bool) string {
	return strconv.FormatBool(allowed)
}

func lookupOutcome(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"result":      {},
	"kind":        {},
	"outcome":     {},
	"reason":      {},
	"action":      {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
