package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sprite-ai/solaudit/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev; restrict in production
	},
}

const wsWriteWait = 10 * time.Second

// WebSocket message types from client.
const (
	wsMsgAudit = "audit"
)

// WebSocket message types to client.
const (
	wsMsgAccepted       = "accepted"
	wsMsgSourceStarted  = "source_started"
	wsMsgSourceFinished = "source_finished"
	wsMsgReport         = "report"
	wsMsgError          = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsAccepted is sent once an audit request passes validation.
type wsAccepted struct {
	Sources   []string `json:"sources"`
	Validator string   `json:"validator,omitempty"`
}

type wsSourceStarted struct {
	Source string `json:"source"`
}

// wsSourceFinished summarizes one analyzer result.
type wsSourceFinished struct {
	Source     string            `json:"source"`
	OK         bool              `json:"ok"`
	Findings   int               `json:"findings"`
	Score      *int              `json:"security_score,omitempty"`
	Failure    model.FailureKind `json:"failure,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMS int64             `json:"duration_ms"`
}

// wsConn serializes writes; progress events arrive from the audit
// goroutine while the read loop may also reply.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *zap.SugaredLogger
}

func (c *wsConn) send(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.log.Warnw("ws marshal", "type", msgType, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		c.log.Debugw("ws write", "type", msgType, "error", err)
	}
}

func (c *wsConn) sendError(errMsg string) {
	c.send(wsMsgError, map[string]string{"message": errMsg})
}

// SourceStarted implements orchestrator.Observer.
func (c *wsConn) SourceStarted(source string) {
	c.send(wsMsgSourceStarted, wsSourceStarted{Source: source})
}

// SourceFinished implements orchestrator.Observer.
func (c *wsConn) SourceFinished(res model.AnalysisResult) {
	c.send(wsMsgSourceFinished, wsSourceFinished{
		Source:     res.Source,
		OK:         !res.Failed(),
		Findings:   len(res.Findings),
		Score:      res.SecurityScore,
		Failure:    res.FailureKind,
		Error:      res.Error,
		DurationMS: res.Duration.Milliseconds(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn, log: s.log}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Infow("websocket read", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case wsMsgAudit:
			s.handleWSAudit(c, r, msg.Data)
		default:
			c.sendError("unknown message type: " + msg.Type)
		}
	}
}

// handleWSAudit runs one audit, streaming progress before the report.
// Audits on one connection run one at a time.
func (s *Server) handleWSAudit(c *wsConn, r *http.Request, data json.RawMessage) {
	var req auditRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid audit data")
		return
	}
	if msg := req.validate(); msg != "" {
		c.sendError(msg)
		return
	}

	c.send(wsMsgAccepted, wsAccepted{Sources: s.svc.Sources(), Validator: s.svc.ValidatorName()})
	c.send(wsMsgReport, s.run(r, req, c))
}
