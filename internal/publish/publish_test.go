package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/google/uuid"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/envelope"
)

type fakeStream struct {
	partitionKey string
	err          error
}

func (f *fakeStream) PutRecord(_ context.Context, params *kinesis.PutRecordInput, _ ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error) {
	if params.PartitionKey != nil {
		f.partitionKey = *params.PartitionKey
	}
	if f.err != nil {
		return nil, f.err
	}
	return &kinesis.PutRecordOutput{SequenceNumber: aws.String("seq-1")}, nil
}

type fakeBus struct {
	called bool
}

func (f *fakeBus) PutEvents(_ context.Context, _ *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.called = true
	return &eventbridge.PutEventsOutput{Entries: []types.PutEventsResultEntry{{EventId: aws.String("evt-1")}}}, nil
}

func testEnvelope() envelope.EnvelopeV1 {
	return envelope.New(uuid.New(), "user-1", envelope.InteractionNote,
		envelope.Content{Text: "hi", Format: envelope.FormatPlain}, envelope.SourceAPI, uuid.New(), uuid.New().String())
}

func TestPublishPartitionKeyIsTenantID(t *testing.T) {
	stream := &fakeStream{}
	bus := &fakeBus{}
	p := New(stream, bus, "stream", "bus", "com.example.test")

	env := testEnvelope()
	result := p.Publish(context.Background(), env)

	if stream.partitionKey != env.TenantID.String() {
		t.Errorf("partition key = %q, want %q", stream.partitionKey, env.TenantID.String())
	}
	if result.StreamAckID != "seq-1" {
		t.Errorf("StreamAckID = %q", result.StreamAckID)
	}
	if result.BusAckID != "evt-1" {
		t.Errorf("BusAckID = %q", result.BusAckID)
	}
	if !bus.called {
		t.Error("expected bus to be called")
	}
}

func TestPublishStreamFailureDoesNotBlockBus(t *testing.T) {
	stream := &fakeStream{err: errors.New("stream down")}
	bus := &fakeBus{}
	p := New(stream, bus, "stream", "bus", "com.example.test")

	result := p.Publish(context.Background(), testEnvelope())

	if result.StreamAckID != "" {
		t.Errorf("expected empty StreamAckID on failure, got %q", result.StreamAckID)
	}
	if result.BusAckID == "" {
		t.Error("expected bus publish to still succeed")
	}
	if !bus.called {
		t.Error("expected bus to still be called despite stream failure")
	}
}

func TestPublishNilStreamClientSkipsStream(t *testing.T) {
	bus := &fakeBus{}
	p := New(nil, bus, "stream", "bus", "com.example.test")

	result := p.Publish(context.Background(), testEnvelope())
	if result.StreamAckID != "" {
		t.Errorf("expected no stream ack when stream client is nil, got %q", result.StreamAckID)
	}
	if result.BusAckID == "" {
		t.Error("expected bus publish to still run")
	}
}
