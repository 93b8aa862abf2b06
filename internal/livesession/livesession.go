// Package livesession implements the Live Session Endpoint (§4.9): a
// bidirectional WebSocket session that forwards inbound audio to a
// downstream STT session, stitches finalized segments into a per-session
// buffer, and on close runs the cleaner and orchestrator over the
// reconstructed transcript.
package livesession

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/clean"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/envelope"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/identity"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/orchestrate"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/stt"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/sessionbuffer"
)

// defaultStreamConfig is the fixed audio format negotiated for every live session.
// Real deployments may eventually make this configurable per client.
var defaultStreamConfig = stt.StreamConfig{SampleRate: 16000, Channels: 1}

// controlFrame is the minimal shape of an inbound JSON control message.
type controlFrame struct {
	Type string `json:"type"`
}

// completeFrame is the terminal JSON message sent to the client, per §4.9
// step 3.
type completeFrame struct {
	Type              string   `json:"type"`
	Summary           string   `json:"summary,omitempty"`
	ActionItems       []string `json:"action_items,omitempty"`
	CleanedTranscript string   `json:"cleaned_transcript"`
	RawTranscript     string   `json:"raw_transcript"`
}

// Handler upgrades HTTP requests to WebSocket sessions and runs them.
type Handler struct {
	resolver     *identity.Resolver
	sttProvider  stt.Provider
	buffer       sessionbuffer.Store
	cleaner      *clean.Cleaner
	orchestrator *orchestrate.Orchestrator
	onOpen       func()
	onClose      func()
}

// NewHandler builds a Handler. onOpen/onClose, if non-nil, are called to
// maintain an active-session gauge; either may be nil.
func NewHandler(resolver *identity.Resolver, sttProvider stt.Provider, buffer sessionbuffer.Store, cleaner *clean.Cleaner, orchestrator *orchestrate.Orchestrator, onOpen, onClose func()) *Handler {
	return &Handler{
		resolver:     resolver,
		sttProvider:  sttProvider,
		buffer:       buffer,
		cleaner:      cleaner,
		orchestrator: orchestrator,
		onOpen:       onOpen,
		onClose:      onClose,
	}
}

// ServeHTTP implements WS /listen (§6.1). Identity is negotiated via the
// standard Authorization header, or via a "token" query parameter when no
// Authorization header is present — browsers cannot
// set arbitrary headers on the WebSocket handshake.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc, err := h.resolveIdentity(r)
	if err != nil {
		conn, acceptErr := websocket.Accept(w, r, nil)
		if acceptErr == nil {
			conn.Close(websocket.StatusCode(4001), "bad token")
		} else {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("livesession: accept failed", "error", err)
		return
	}

	if h.onOpen != nil {
		h.onOpen()
	}
	defer func() {
		if h.onClose != nil {
			h.onClose()
		}
	}()

	s := &session{
		handler:   h,
		conn:      conn,
		rc:        rc,
		sessionID: uuid.NewString(),
	}
	s.run(r.Context())
}

// resolveIdentity tries the standard resolver first, then falls back to a
// "token" query parameter carried as a synthetic Authorization header, since
// browser WebSocket clients cannot set custom headers on the handshake.
func (h *Handler) resolveIdentity(r *http.Request) (identity.RequestContext, error) {
	if r.Header.Get("Authorization") == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			cloned := r.Clone(r.Context())
			cloned.Header = r.Header.Clone()
			cloned.Header.Set("Authorization", "Bearer "+token)
			return h.resolver.Resolve(cloned)
		}
	}
	return h.resolver.Resolve(r)
}

// session holds the per-connection state for one live session.
type session struct {
	handler   *Handler
	conn      *websocket.Conn
	rc        identity.RequestContext
	sessionID string
}

// run drives the session end to end: steps 2-3 of open, the forwarding
// loop, and the finalization guard on close, per §4.9.
func (s *session) run(ctx context.Context) {
	defer s.finalize(ctx)

	sttSession, err := s.handler.sttProvider.StartStream(ctx, defaultStreamConfig)
	if err != nil {
		slog.Error("livesession: start downstream stream failed", "session_id", s.sessionID, "error", err)
		s.conn.Close(websocket.StatusInternalError, "downstream unavailable")
		return
	}
	defer sttSession.Close()

	go s.drainFinals(ctx, sttSession)

	s.readLoop(ctx, sttSession)
}

// readLoop forwards inbound binary audio frames and handles control frames
// until the client disconnects or sends stop_recording.
func (s *session) readLoop(ctx context.Context, sttSession stt.SessionHandle) {
	for {
		msgType, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		switch msgType {
		case websocket.MessageBinary:
			if err := sttSession.SendAudio(data); err != nil {
				slog.Warn("livesession: send audio failed", "session_id", s.sessionID, "error", err)
			}
		case websocket.MessageText:
			var frame controlFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			if frame.Type == "stop_recording" {
				return
			}
		}
	}
}

// drainFinals appends every final transcript segment to the session buffer
// and emits a lightweight telemetry frame, independently per §4.9: a
// failure writing one must not block the other.
func (s *session) drainFinals(ctx context.Context, sttSession stt.SessionHandle) {
	key := sessionbuffer.Key(s.sessionID)
	for t := range sttSession.Finals() {
		if err := s.handler.buffer.Append(ctx, key, t.Text); err != nil {
			slog.Warn("livesession: buffer append failed", "session_id", s.sessionID, "error", err)
		}

		if err := s.conn.Write(ctx, websocket.MessageText, encodeTranscriptEvent(t.Text)); err != nil {
			slog.Warn("livesession: telemetry write failed", "session_id", s.sessionID, "error", err)
		}
	}
}

func encodeTranscriptEvent(text string) []byte {
	data, _ := json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "transcript", Text: text})
	return data
}

// finalize implements §4.9's on-close steps, always run regardless of exit
// path: drain the buffer, clean + orchestrate if non-empty, send the final
// frame if the connection is still usable.
func (s *session) finalize(ctx context.Context) {
	bg := context.WithoutCancel(ctx)
	key := sessionbuffer.Key(s.sessionID)

	chunks, err := s.handler.buffer.Range(bg, key)
	if err != nil {
		slog.Warn("livesession: buffer range failed", "session_id", s.sessionID, "error", err)
	}
	if err := s.handler.buffer.Delete(bg, key); err != nil {
		slog.Warn("livesession: buffer delete failed", "session_id", s.sessionID, "error", err)
	}

	rawTranscript := strings.Join(chunks, " ")
	if strings.TrimSpace(rawTranscript) == "" {
		s.conn.Close(websocket.StatusNormalClosure, "session ended")
		return
	}

	cleanedTranscript := s.handler.cleaner.Clean(bg, rawTranscript)

	traceID := s.rc.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	result := s.handler.orchestrator.Run(bg, orchestrate.Params{
		TenantID:        s.rc.TenantID,
		UserID:          s.rc.UserID,
		UserName:        s.rc.UserName,
		InteractionID:   s.rc.InteractionID,
		TraceID:         traceID,
		InteractionType: envelope.InteractionMeeting,
		Content:         envelope.Content{Text: cleanedTranscript, Format: envelope.FormatDiarized},
		Source:          envelope.SourceWebsocket,
		AccountID:       s.rc.AccountID,
	})

	frame := completeFrame{
		Type:              "session_complete",
		CleanedTranscript: cleanedTranscript,
		RawTranscript:     rawTranscript,
	}
	if result.Analysis != nil {
		frame.Summary = result.Analysis.Summaries.Brief
		for _, item := range result.Analysis.ActionItems {
			frame.ActionItems = append(frame.ActionItems, item.Description)
		}
	}

	data, _ := json.Marshal(frame)
	if err := s.conn.Write(bg, websocket.MessageText, data); err != nil {
		slog.Warn("livesession: final frame write failed", "session_id", s.sessionID, "error", err)
	}
	s.conn.Close(websocket.StatusNormalClosure, "session complete")
}

// Register attaches the live session route to mux (§6.1).
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /listen", h.ServeHTTP)
}
