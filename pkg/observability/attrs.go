// Package observability instrumentation helpers for control-plane operations.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for panther operations.
var (
	// App identity attributes
	AttrAppID          = attribute.Key("panther.app.id")
	AttrAppVersion     = attribute.Key("panther.app.version")
	AttrEnv            = attribute.Key("panther.env")
	AttrDevicePlatform = attribute.Key("panther.device.platform")

	// Policy attributes
	AttrPolicyID = attribute.Key("panther.policy.id")
	AttrCacheHit = attribute.Key("panther.policy.cache_hit")

	// Telemetry attributes
	AttrEventID   = attribute.Key("panther.event.id")
	AttrRiskScore = attribute.Key("panther.risk.score")

	// Report attributes
	AttrReportID       = attribute.Key("panther.report.id")
	AttrReportSource   = attribute.Key("panther.report.source")
	AttrFindingCount   = attribute.Key("panther.report.finding_count")
	AttrArchiveAddress = attribute.Key("panther.report.archive_address")
)

// PolicyFetchOperation creates attributes for a policy lookup.
func PolicyFetchOperation(appID, appVersion, env, platform string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAppID.String(appID),
		AttrAppVersion.String(appVersion),
		AttrEnv.String(env),
		AttrDevicePlatform.String(platform),
	}
}

// PolicyUpsertOperation creates attributes for a policy write.
func PolicyUpsertOperation(policyID, platform string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPolicyID.String(policyID),
		AttrDevicePlatform.String(platform),
	}
}

// TelemetryIngestOperation creates attributes for event ingestion.
func TelemetryIngestOperation(eventID, appID, env string, riskScore uint32) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEventID.String(eventID),
		AttrAppID.String(appID),
		AttrEnv.String(env),
		AttrRiskScore.Int64(int64(riskScore)),
	}
}

// ReportUploadOperation creates attributes for a report upload.
func ReportUploadOperation(reportID, source string, findings int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrReportID.String(reportID),
		AttrReportSource.String(source),
		AttrFindingCount.Int(findings),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
