package tracing

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	MeasureClaimed  = stats.Int64("outreach/queue/claimed", "Queue items claimed by the delivery worker", stats.UnitDimensionless)
	MeasureSent     = stats.Int64("outreach/delivery/sent", "Recipients accepted by the mail transport", stats.UnitDimensionless)
	MeasureFailed   = stats.Int64("outreach/delivery/failed", "Recipients rejected by the mail transport", stats.UnitDimensionless)
	MeasureDeferred = stats.Int64("outreach/delivery/deferred", "Recipients deferred by domain quotas", stats.UnitDimensionless)
	MeasureReaped   = stats.Int64("outreach/queue/reaped", "Expired leases recovered by the reaper", stats.UnitDimensionless)

	KeyTransport = tag.MustNewKey("transport")
)

// DeliveryViews aggregate the delivery measures as counts per transport
var DeliveryViews = []*view.View{
	{Name: "outreach/queue/claimed_total", Measure: MeasureClaimed, Aggregation: view.Sum()},
	{Name: "outreach/delivery/sent_total", Measure: MeasureSent, Aggregation: view.Sum(), TagKeys: []tag.Key{KeyTransport}},
	{Name: "outreach/delivery/failed_total", Measure: MeasureFailed, Aggregation: view.Sum(), TagKeys: []tag.Key{KeyTransport}},
	{Name: "outreach/delivery/deferred_total", Measure: MeasureDeferred, Aggregation: view.Sum()},
	{Name: "outreach/queue/reaped_total", Measure: MeasureReaped, Aggregation: view.Sum()},
}

// RegisterDeliveryViews registers DeliveryViews with the default view worker
func RegisterDeliveryViews() error {
	return view.Register(DeliveryViews...)
}

// RecordDelivery records the outcome of one worker invocation
func RecordDelivery(ctx context.Context, transport string, claimed, sent, failed, deferred int) {
	ctx, err := tag.New(ctx, tag.Upsert(KeyTransport, transport))
	if err != nil {
		return
	}
	stats.Record(ctx,
		MeasureClaimed.M(int64(claimed)),
		MeasureSent.M(int64(sent)),
		MeasureFailed.M(int64(failed)),
		MeasureDeferred.M(int64(deferred)),
	)
}
