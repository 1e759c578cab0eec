package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/stream"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// streamFrame is one WebSocket frame on the follow endpoint. Exactly one
// field is set per frame.
type streamFrame struct {
	// Message is a run output message in publish order.
	Message *models.Message `json:"message,omitempty"`

	// Control carries the terminal stream signal (END_STREAM, ERROR,
	// STOP). The connection closes after it is sent.
	Control string `json:"control,omitempty"`
}

// handleStream upgrades to a WebSocket and relays the run's message stream:
// backfill first, then live messages, until a terminal control signal
// arrives on the run's control channel.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	ctx := r.Context()

	if _, err := s.opts.Status.Get(ctx, runID); err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	sub, err := s.opts.Broker.Subscribe(ctx, runID)
	if err != nil {
		s.opts.Logger.Error("stream subscribe failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	defer sub.Close()

	control, err := s.opts.Broker.SubscribeControl(ctx, runID)
	if err != nil {
		s.opts.Logger.Error("control subscribe failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	defer control.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Warn("websocket upgrade failed", "run_id", runID, "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close/pong handling works; the follow
	// endpoint is one-way.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// A run already finished before this subscriber attached never signals
	// again, so the terminal status itself also ends the stream after the
	// backfill drains.
	var terminal stream.Signal
	if run, err := s.opts.Status.Get(ctx, runID); err == nil {
		if signal, ok := stream.StatusSignal(run.Status); ok {
			terminal = signal
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var idle *time.Timer
	var idleC <-chan time.Time
	if terminal != "" {
		// Give the backfill a moment to drain, then close.
		idle = time.NewTimer(time.Second)
		idleC = idle.C
		defer idle.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := s.writeFrame(conn, streamFrame{Message: msg}); err != nil {
				return
			}
			if idle != nil {
				idle.Reset(time.Second)
			}

		case signal := <-control.C():
			sig := stream.Signal(signal.Payload)
			switch sig {
			case stream.SignalEndStream, stream.SignalError, stream.SignalStop:
				_ = s.writeFrame(conn, streamFrame{Control: string(sig)})
				return
			}

		case <-idleC:
			_ = s.writeFrame(conn, streamFrame{Control: string(terminal)})
			return

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, frame streamFrame) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, raw)
}
