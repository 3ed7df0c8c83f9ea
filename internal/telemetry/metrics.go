package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/wishroom"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Engine operation metrics, attributed by operation and outcome
	OperationsTotal   metric.Int64Counter
	OperationDuration metric.Float64Histogram

	// Room metrics
	RoomsCreatedTotal   metric.Int64Counter
	RoomsDeletedTotal   metric.Int64Counter
	CodeCollisionsTotal metric.Int64Counter
	JoinsTotal          metric.Int64Counter
	WishesAddedTotal    metric.Int64Counter
	TierChangesTotal    metric.Int64Counter

	// Delivery metrics
	DeliveryRunsTotal       metric.Int64Counter
	DeliveryRunDuration     metric.Float64Histogram
	DeliveryMessagesTotal   metric.Int64Counter
	DeliveryFailuresTotal   metric.Int64Counter
	DeliveryRoomErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.OperationsTotal, _ = meter.Int64Counter(
		"wishroom.operations.total",
		metric.WithDescription("Total number of engine operations by operation and outcome"),
		metric.WithUnit("{operation}"),
	)

	m.OperationDuration, _ = meter.Float64Histogram(
		"wishroom.operations.duration",
		metric.WithDescription("Duration of engine operations"),
		metric.WithUnit("ms"),
	)

	m.RoomsCreatedTotal, _ = meter.Int64Counter(
		"wishroom.rooms.created.total",
		metric.WithDescription("Total number of rooms created"),
		metric.WithUnit("{room}"),
	)

	m.RoomsDeletedTotal, _ = meter.Int64Counter(
		"wishroom.rooms.deleted.total",
		metric.WithDescription("Total number of rooms deleted"),
		metric.WithUnit("{room}"),
	)

	m.CodeCollisionsTotal, _ = meter.Int64Counter(
		"wishroom.rooms.code_collisions.total",
		metric.WithDescription("Total number of generated room codes that were already taken"),
		metric.WithUnit("{code}"),
	)

	m.JoinsTotal, _ = meter.Int64Counter(
		"wishroom.memberships.joins.total",
		metric.WithDescription("Total number of successful joins"),
		metric.WithUnit("{join}"),
	)

	m.WishesAddedTotal, _ = meter.Int64Counter(
		"wishroom.wishes.added.total",
		metric.WithDescription("Total number of wishes added"),
		metric.WithUnit("{wish}"),
	)

	m.TierChangesTotal, _ = meter.Int64Counter(
		"wishroom.rooms.tier_changes.total",
		metric.WithDescription("Total number of room tier changes"),
		metric.WithUnit("{change}"),
	)

	m.DeliveryRunsTotal, _ = meter.Int64Counter(
		"wishroom.delivery.runs.total",
		metric.WithDescription("Total number of delivery runs by outcome"),
		metric.WithUnit("{run}"),
	)

	m.DeliveryRunDuration, _ = meter.Float64Histogram(
		"wishroom.delivery.run.duration",
		metric.WithDescription("Duration of delivery runs"),
		metric.WithUnit("ms"),
	)

	m.DeliveryMessagesTotal, _ = meter.Int64Counter(
		"wishroom.delivery.messages.total",
		metric.WithDescription("Total number of messages dispatched to recipients"),
		metric.WithUnit("{message}"),
	)

	m.DeliveryFailuresTotal, _ = meter.Int64Counter(
		"wishroom.delivery.failures.total",
		metric.WithDescription("Total number of failed recipient dispatches"),
		metric.WithUnit("{message}"),
	)

	m.DeliveryRoomErrorsTotal, _ = meter.Int64Counter(
		"wishroom.delivery.room_errors.total",
		metric.WithDescription("Total number of rooms skipped due to errors or timeouts"),
		metric.WithUnit("{room}"),
	)

	return m
}
