package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments for the ledger's write and read paths.
type Metrics struct {
	CommandDuration metric.Float64Histogram
	CommandTotal    metric.Int64Counter
	CommandErrors   metric.Int64Counter

	EventsAppended  metric.Int64Counter
	EventsPublished metric.Int64Counter

	AggregateLoads metric.Int64Counter
	SnapshotHits   metric.Int64Counter
	SnapshotMisses metric.Int64Counter
	SnapshotWrites metric.Int64Counter

	ProjectionApplies metric.Int64Counter
	ProjectionSkips   metric.Int64Counter
	ProjectionErrors  metric.Int64Counter
	RebuildDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CommandDuration, err = meter.Float64Histogram(
		"ledger.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.duration: %w", err)
	}

	m.CommandTotal, err = meter.Int64Counter(
		"ledger.command.total",
		metric.WithDescription("Total commands executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.total: %w", err)
	}

	m.CommandErrors, err = meter.Int64Counter(
		"ledger.command.errors",
		metric.WithDescription("Total command errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.errors: %w", err)
	}

	m.EventsAppended, err = meter.Int64Counter(
		"ledger.events.appended",
		metric.WithDescription("Total events appended to the event log"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.appended: %w", err)
	}

	m.EventsPublished, err = meter.Int64Counter(
		"ledger.events.published",
		metric.WithDescription("Total committed events published to the event bus"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.published: %w", err)
	}

	m.AggregateLoads, err = meter.Int64Counter(
		"ledger.aggregate.loads",
		metric.WithDescription("Total aggregate rehydrations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating aggregate.loads: %w", err)
	}

	m.SnapshotHits, err = meter.Int64Counter(
		"ledger.snapshot.hits",
		metric.WithDescription("Aggregate loads served from a snapshot"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot.hits: %w", err)
	}

	m.SnapshotMisses, err = meter.Int64Counter(
		"ledger.snapshot.misses",
		metric.WithDescription("Aggregate loads replayed from scratch"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot.misses: %w", err)
	}

	m.SnapshotWrites, err = meter.Int64Counter(
		"ledger.snapshot.writes",
		metric.WithDescription("Snapshots persisted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot.writes: %w", err)
	}

	m.ProjectionApplies, err = meter.Int64Counter(
		"ledger.projection.applies",
		metric.WithDescription("Events applied to read models"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.applies: %w", err)
	}

	m.ProjectionSkips, err = meter.Int64Counter(
		"ledger.projection.skips",
		metric.WithDescription("Events skipped as already applied"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.skips: %w", err)
	}

	m.ProjectionErrors, err = meter.Int64Counter(
		"ledger.projection.errors",
		metric.WithDescription("Read model update failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.errors: %w", err)
	}

	m.RebuildDuration, err = meter.Float64Histogram(
		"ledger.projection.rebuild.duration",
		metric.WithDescription("Full projection rebuild duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.rebuild.duration: %w", err)
	}

	return m, nil
}
