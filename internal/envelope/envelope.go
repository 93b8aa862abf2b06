// Package envelope defines EnvelopeV1, the single versioned event schema used
// for the stream and bus hand-offs. The live session's per-segment telemetry
// frame is not an envelope.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the fixed schema_version value for every EnvelopeV1.
const SchemaVersion = "v1"

// InteractionType enumerates the kinds of interaction an envelope carries.
type InteractionType string

const (
	InteractionTranscript  InteractionType = "transcript"
	InteractionNote        InteractionType = "note"
	InteractionMeeting     InteractionType = "meeting"
	InteractionBatchUpload InteractionType = "batch_upload"
	InteractionDocument    InteractionType = "document"
)

// ContentFormat enumerates the format of Content.Text.
type ContentFormat string

const (
	FormatPlain    ContentFormat = "plain"
	FormatMarkdown ContentFormat = "markdown"
	FormatDiarized ContentFormat = "diarized"
)

// Source enumerates where an interaction originated.
type Source string

const (
	SourceWebMic    Source = "web-mic"
	SourceUpload    Source = "upload"
	SourceAPI       Source = "api"
	SourceWebsocket Source = "websocket"
	SourceImport    Source = "import"
)

// Content holds the interaction body and its format.
type Content struct {
	Text   string        `json:"text"`
	Format ContentFormat `json:"format"`
}

// EnvelopeV1 is the canonical event. It is created exactly once per completed
// pipeline run and serialized exactly once per publish. Its JSON form must
// round-trip field-by-field.
type EnvelopeV1 struct {
	SchemaVersion   string           `json:"schema_version"`
	TenantID        uuid.UUID        `json:"tenant_id"`
	UserID          string           `json:"user_id"`
	InteractionType InteractionType  `json:"interaction_type"`
	Content         Content          `json:"content"`
	Timestamp       time.Time        `json:"timestamp"`
	Source          Source           `json:"source"`
	Extras          map[string]any   `json:"extras"`
	InteractionID   uuid.UUID        `json:"interaction_id"`
	TraceID         string           `json:"trace_id"`
	AccountID       *string          `json:"account_id,omitempty"`
}

// New builds an EnvelopeV1 with SchemaVersion and Timestamp populated. Extras
// is never nil in the constructed value so serialization always emits `{}`
// rather than `null` for callers that haven't set anything.
func New(tenantID uuid.UUID, userID string, interactionType InteractionType, content Content, source Source, interactionID uuid.UUID, traceID string) EnvelopeV1 {
	return EnvelopeV1{
		SchemaVersion:   SchemaVersion,
		TenantID:        tenantID,
		UserID:          userID,
		InteractionType: interactionType,
		Content:         content,
		Timestamp:       time.Now().UTC(),
		Source:          source,
		Extras:          map[string]any{},
		InteractionID:   interactionID,
		TraceID:         traceID,
	}
}

// wireEnvelope mirrors EnvelopeV1 but serializes Timestamp with an explicit Z
// suffix and UUIDs as canonical hyphenated lowercase strings (the default
// encoding/json and google/uuid behavior already produces this, but the
// alias makes the invariant explicit and independently testable).
type wireEnvelope EnvelopeV1

// MarshalJSON implements json.Marshaler, forcing RFC3339 with a literal "Z"
// suffix for Timestamp regardless of the local time.Time's monotonic reading.
func (e EnvelopeV1) MarshalJSON() ([]byte, error) {
	type alias wireEnvelope
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{
		alias:     alias(e),
		Timestamp: e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
	})
}

// UnmarshalJSON implements json.Unmarshaler, parsing the Z-suffixed
// timestamp back into a UTC time.Time.
func (e *EnvelopeV1) UnmarshalJSON(data []byte) error {
	type alias wireEnvelope
	aux := struct {
		alias
		Timestamp string `json:"timestamp"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		ts, err = time.Parse("2006-01-02T15:04:05.000000Z", aux.Timestamp)
		if err != nil {
			return err
		}
	}
	*e = EnvelopeV1(aux.alias)
	e.Timestamp = ts.UTC()
	return nil
}

// Equal reports whether e and other are field-by-field equivalent, treating
// nil and empty Extras maps as equal. Used by the round-trip invariant test.
func (e EnvelopeV1) Equal(other EnvelopeV1) bool {
	if e.SchemaVersion != other.SchemaVersion ||
		e.TenantID != other.TenantID ||
		e.UserID != other.UserID ||
		e.InteractionType != other.InteractionType ||
		e.Content != other.Content ||
		!e.Timestamp.Equal(other.Timestamp) ||
		e.Source != other.Source ||
		e.InteractionID != other.InteractionID ||
		e.TraceID != other.TraceID {
		return false
	}
	if (e.AccountID == nil) != (other.AccountID == nil) {
		return false
	}
	if e.AccountID != nil && *e.AccountID != *other.AccountID {
		return false
	}
	if len(e.Extras) != len(other.Extras) {
		return false
	}
	for k, v := range e.Extras {
		ov, ok := other.Extras[k]
		if !ok {
			return false
		}
		a, _ := json.Marshal(v)
		b, _ := json.Marshal(ov)
		if string(a) != string(b) {
			return false
		}
	}
	return true
}

// Serialize returns the canonical JSON encoding of e.
func Serialize(e EnvelopeV1) ([]byte, error) {
	return json.Marshal(e)
}

// Deserialize parses the canonical JSON encoding back into an EnvelopeV1.
func Deserialize(data []byte) (EnvelopeV1, error) {
	var e EnvelopeV1
	if err := json.Unmarshal(data, &e); err != nil {
		return EnvelopeV1{}, err
	}
	return e, nil
}
