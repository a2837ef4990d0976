package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/normanking/quorum/internal/council"
)

const (
	// writeWait is the timeout for writing a frame to a client.
	writeWait = 10 * time.Second

	// maxRequestSize bounds the initial request frame.
	maxRequestSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsRequest is the single frame a client sends after connecting.
type wsRequest struct {
	// Mode selects the flow: "ranking" (default) or "debate".
	Mode string `json:"mode"`

	// Query is the user's question.
	Query string `json:"query"`

	// ConversationID appends to an existing conversation. Empty creates one.
	ConversationID string `json:"conversation_id,omitempty"`

	// Cycles overrides the debate cycle count when positive.
	Cycles int `json:"cycles,omitempty"`

	// Strategy overrides the synthesis strategy when set.
	Strategy string `json:"strategy,omitempty"`

	// Streaming selects the sequential token-streaming executor for
	// debate rounds.
	Streaming bool `json:"streaming,omitempty"`
}

// handleWS streams deliberation events to a websocket client. The client
// sends one request frame; the server replies with a sequence of event
// frames and closes when the flow completes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxRequestSize)

	var req wsRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.writeFrame(conn, council.Event{Type: council.EventError, Message: "invalid request frame"})
		return
	}
	if req.Query == "" {
		s.writeFrame(conn, council.Event{Type: council.EventError, Message: "query cannot be empty"})
		return
	}

	strategy := s.strategy
	if req.Strategy != "" {
		strategy = council.SynthesisStrategy(req.Strategy)
	}

	// Cancelling the flow context when the handler returns unwinds the
	// engine's producer goroutines after a dropped client.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	convID := s.beginConversation(ctx, req)

	switch req.Mode {
	case "debate":
		s.runDebateWS(ctx, conn, req, convID, strategy)
	default:
		s.runRankingWS(ctx, conn, req, convID, strategy)
	}
}

// beginConversation resolves or creates the conversation for a request and
// records the user turn. Returns "" when persistence is unavailable.
func (s *Server) beginConversation(ctx context.Context, req wsRequest) string {
	convID := req.ConversationID
	if convID == "" {
		title := s.engine.GenerateTitle(ctx, req.Query)
		conv, err := s.store.CreateConversation(ctx, title)
		if err != nil {
			s.log.Error().Err(err).Msg("create conversation failed")
			return ""
		}
		convID = conv.ID
	}

	if _, err := s.store.AppendMessage(ctx, convID, "user", req.Query, nil); err != nil {
		s.log.Error().Err(err).Str("conversation_id", convID).Msg("append user message failed")
	}
	return convID
}

func (s *Server) runDebateWS(ctx context.Context, conn *websocket.Conn, req wsRequest, convID string, strategy council.SynthesisStrategy) {
	cycles := s.cycles
	if req.Cycles > 0 {
		cycles = req.Cycles
	}

	exec := s.engine.RunRoundParallel
	if req.Streaming {
		exec = s.engine.RunRoundStreaming
	}

	var rounds []council.Round
	var synthesis *council.Synthesis

	for ev := range s.engine.Debate(ctx, req.Query, exec, cycles, strategy) {
		if ev.Type == council.EventDebateComplete {
			rounds = ev.Rounds
			synthesis = ev.Synthesis
		}
		if !s.writeFrame(conn, ev) {
			return
		}
	}

	if synthesis != nil {
		s.persistResult(ctx, convID, synthesis.Text, map[string]any{
			"mode":      "debate",
			"rounds":    rounds,
			"synthesis": synthesis,
		})
	}
}

func (s *Server) runRankingWS(ctx context.Context, conn *websocket.Conn, req wsRequest, convID string, strategy council.SynthesisStrategy) {
	result, err := s.engine.RunRanking(ctx, req.Query)
	if err != nil {
		s.writeFrame(conn, council.Event{Type: council.EventError, Message: err.Error()})
		return
	}

	events := make(chan council.Event, 64)
	done := make(chan *council.Synthesis, 1)
	go func() {
		defer close(events)
		done <- s.engine.SynthesizeRanking(ctx, req.Query, result, strategy, events)
	}()

	if !s.writeFrame(conn, council.Event{Type: council.EventSynthesisStart, Model: s.engine.Chairman()}) {
		return
	}
	for ev := range events {
		if !s.writeFrame(conn, ev) {
			return
		}
	}
	synthesis := <-done

	s.writeFrame(conn, council.Event{Type: council.EventSynthesisComplete, Synthesis: synthesis})
	s.writeRawFrame(conn, map[string]any{
		"type":   "ranking_complete",
		"result": result,
	})

	s.persistResult(ctx, convID, synthesis.Text, map[string]any{
		"mode":      "ranking",
		"result":    result,
		"synthesis": synthesis,
	})
}

func (s *Server) persistResult(ctx context.Context, convID, content string, metadata map[string]any) {
	if convID == "" {
		return
	}
	if _, err := s.store.AppendMessage(ctx, convID, "assistant", content, metadata); err != nil {
		s.log.Error().Err(err).Str("conversation_id", convID).Msg("append assistant message failed")
	}
}

// writeFrame sends one event frame. Returns false when the client is gone.
func (s *Server) writeFrame(conn *websocket.Conn, ev council.Event) bool {
	frame, err := ev.MarshalFrame()
	if err != nil {
		s.log.Error().Err(err).Msg("marshal event frame failed")
		return true
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.log.Debug().Err(err).Msg("websocket write failed")
		return false
	}
	return true
}

func (s *Server) writeRawFrame(conn *websocket.Conn, v any) bool {
	frame, err := json.Marshal(v)
	if err != nil {
		return true
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame) == nil
}
