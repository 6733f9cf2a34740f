package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sprite-ai/solaudit/internal/model"
)

// SubjectCompleted carries one Completed event per finished audit.
const SubjectCompleted = "audits.completed"

// Completed is the summary published for each audit.
type Completed struct {
	ID            string                 `json:"id"`
	Address       string                 `json:"address,omitempty"`
	Network       string                 `json:"network,omitempty"`
	Mode          string                 `json:"mode"`
	Tier          model.Tier             `json:"tier"`
	SecurityScore int                    `json:"securityScore"`
	RiskLevel     model.RiskLevel        `json:"riskLevel"`
	Degraded      bool                   `json:"degraded"`
	Findings      map[model.Severity]int `json:"findings"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// CompletedEvent summarizes rec.
func CompletedEvent(rec Record) Completed {
	return Completed{
		ID:            rec.ID.String(),
		Address:       rec.Address,
		Network:       rec.Network,
		Mode:          rec.Mode,
		Tier:          rec.Report.Tier,
		SecurityScore: rec.Report.SecurityScore,
		RiskLevel:     rec.Report.RiskLevel,
		Degraded:      rec.Report.Degraded,
		Findings:      rec.Report.CountBySeverity(),
		CreatedAt:     rec.CreatedAt,
	}
}

// Events publishes completed audits to NATS.
type Events struct {
	conn *nats.Conn
}

// NewEvents connects to natsURL, retrying in the background if the server
// is not up yet.
func NewEvents(natsURL string) (*Events, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("solaudit"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Events{conn: conn}, nil
}

func (e *Events) Save(_ context.Context, rec Record) error {
	data, err := json.Marshal(CompletedEvent(rec))
	if err != nil {
		return err
	}
	return e.conn.Publish(SubjectCompleted, data)
}

func (e *Events) IsConnected() bool {
	return e.conn != nil && e.conn.IsConnected()
}

func (e *Events) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}
