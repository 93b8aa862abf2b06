// Package publish implements the Fan-Out Publisher (§4.3): a best-effort
// dual-write of every EnvelopeV1 to a partitioned stream and an event-routing
// bus. It never returns an error to its caller; failures are logged.
package publish

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/envelope"
)

// streamClient is the subset of *kinesis.Client used here, narrowed for testability.
type streamClient interface {
	PutRecord(ctx context.Context, params *kinesis.PutRecordInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error)
}

// busClient is the subset of *eventbridge.Client used here.
type busClient interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Result reports the outcome of a single publish call. Either field may be
// empty if the corresponding destination was skipped or failed.
type Result struct {
	StreamAckID string
	BusAckID    string
}

// Publisher fans a single EnvelopeV1 out to a Kinesis-shaped stream and an
// EventBridge-shaped bus. A nil stream client is treated as "never
// initialized" (e.g., no credentials) and step 1 is skipped with a warning.
type Publisher struct {
	stream     streamClient
	bus        busClient
	streamName string
	busName    string
	source     string
}

// New builds a Publisher. stream may be nil when the stream client could not
// be initialized at startup; publishing still proceeds to the bus.
func New(stream streamClient, bus busClient, streamName, busName, source string) *Publisher {
	return &Publisher{stream: stream, bus: bus, streamName: streamName, busName: busName, source: source}
}

// streamRecord is the top-level wire shape for a stream record, per §6.3.
type streamRecord struct {
	Envelope      envelope.EnvelopeV1 `json:"envelope"`
	TraceID       string              `json:"trace_id"`
	TenantID      string              `json:"tenant_id"`
	SchemaVersion string              `json:"schema_version"`
}

// Publish performs the dual-write and never returns an error: every failure
// is logged and reflected by the absence of the corresponding ack ID in the
// returned Result.
func (p *Publisher) Publish(ctx context.Context, env envelope.EnvelopeV1) Result {
	var result Result

	if p.stream == nil {
		slog.Warn("publish: stream client not initialized, skipping stream publish",
			"interaction_id", env.InteractionID, "tenant_id", env.TenantID)
	} else {
		record := streamRecord{
			Envelope:      env,
			TraceID:       env.TraceID,
			TenantID:      env.TenantID.String(),
			SchemaVersion: envelope.SchemaVersion,
		}
		data, err := json.Marshal(record)
		if err != nil {
			slog.Error("publish: marshal stream record failed",
				"interaction_id", env.InteractionID, "tenant_id", env.TenantID, "error", err)
		} else {
			out, err := p.stream.PutRecord(ctx, &kinesis.PutRecordInput{
				StreamName:   aws.String(p.streamName),
				Data:         data,
				PartitionKey: aws.String(env.TenantID.String()),
			})
			if err != nil {
				slog.Error("publish: stream publish failed",
					"interaction_id", env.InteractionID, "tenant_id", env.TenantID,
					"record_len", len(data), "error", err)
			} else if out.SequenceNumber != nil {
				result.StreamAckID = *out.SequenceNumber
			}
		}
	}

	if p.bus == nil {
		slog.Warn("publish: bus client not initialized, skipping bus publish",
			"interaction_id", env.InteractionID, "tenant_id", env.TenantID)
	} else {
		detail, err := json.Marshal(env)
		if err != nil {
			slog.Error("publish: marshal bus detail failed",
				"interaction_id", env.InteractionID, "tenant_id", env.TenantID, "error", err)
		} else {
			detailStr := string(detail)
			out, err := p.bus.PutEvents(ctx, &eventbridge.PutEventsInput{
				Entries: []types.PutEventsRequestEntry{
					{
						EventBusName: aws.String(p.busName),
						Source:       aws.String(p.source),
						DetailType:   aws.String("BatchProcessingCompleted"),
						Detail:       aws.String(detailStr),
					},
				},
			})
			if err != nil {
				slog.Error("publish: bus publish failed",
					"interaction_id", env.InteractionID, "tenant_id", env.TenantID,
					"detail_len", len(detailStr), "error", err)
			} else if len(out.Entries) > 0 && out.Entries[0].EventId != nil {
				result.BusAckID = *out.Entries[0].EventId
			}
		}
	}

	return result
}
