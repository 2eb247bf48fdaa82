package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/scribelabs/scribe-core/internal/protocol"
)

var jobSocketUpgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleJobSocket streams progress, segment, and result events for one job
// over a websocket. The stream closes after the result event arrives.
func (r *Runtime) handleJobSocket(w http.ResponseWriter, req *http.Request) {
	jobID := strings.TrimPrefix(req.URL.Path, "/ws/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	conn, err := jobSocketUpgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	events := make(chan *nats.Msg, 64)
	subjects := []string{
		protocol.ProgressSubject(jobID),
		protocol.SegmentSubject(jobID),
		protocol.ResultSubject(jobID),
	}
	var subs []*nats.Subscription
	for _, subject := range subjects {
		sub, err := r.bus.Conn().ChanSubscribe(subject, events)
		if err != nil {
			r.logger.Warn("ws subscribe failed",
				slog.String("subject", subject),
				slog.String("error", err.Error()))
			return
		}
		subs = append(subs, sub)
	}
	defer func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}()

	// Detect the client going away so we don't hold subscriptions forever.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-events:
			frame := jobSocketFrame(msg)
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
			if frame.Type == "result" {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
		case <-closed:
			return
		case <-req.Context().Done():
			return
		}
	}
}

type socketFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func jobSocketFrame(msg *nats.Msg) socketFrame {
	frame := socketFrame{Payload: json.RawMessage(msg.Data)}
	switch {
	case strings.HasPrefix(msg.Subject, protocol.SubjectProgressPrefix):
		frame.Type = "progress"
	case strings.HasPrefix(msg.Subject, protocol.SubjectSegmentPrefix):
		frame.Type = "segments"
	case strings.HasPrefix(msg.Subject, protocol.SubjectResultPrefix):
		frame.Type = "result"
	default:
		frame.Type = "event"
	}
	return frame
}
