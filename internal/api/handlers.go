package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sprite-ai/solaudit/internal/analysis"
	"github.com/sprite-ai/solaudit/internal/audit"
	"github.com/sprite-ai/solaudit/internal/extract"
	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/orchestrator"
	"github.com/sprite-ai/solaudit/internal/source"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// --- Health ---

type healthResponse struct {
	Status    string   `json:"status"`
	Sources   []string `json:"sources"`
	Validator string   `json:"validator,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Sources:   s.svc.Sources(),
		Validator: s.svc.ValidatorName(),
	})
}

// --- Audit ---

// auditRequest selects either an on-chain contract (address, network) or
// source supplied inline.
type auditRequest struct {
	Address  string `json:"address,omitempty"`
	Network  string `json:"network,omitempty"`
	Source   string `json:"source,omitempty"`
	Name     string `json:"name,omitempty"`
	Fast     bool   `json:"fast,omitempty"`
	Deadline int    `json:"deadline_seconds,omitempty"`
}

// validate reports a client error, or "" when the request can run.
func (req auditRequest) validate() string {
	if req.Deadline < 0 {
		return "deadline_seconds must not be negative"
	}
	if strings.TrimSpace(req.Source) != "" {
		return ""
	}
	if req.Address == "" {
		return "address or source is required"
	}
	if !source.ValidAddress(req.Address) {
		return "invalid address: " + req.Address
	}
	return ""
}

func (req auditRequest) options(obs orchestrator.Observer) audit.Options {
	return audit.Options{
		UseValidator: !req.Fast,
		Deadline:     time.Duration(req.Deadline) * time.Second,
		Observer:     obs,
	}
}

// run executes the audit the request describes.
func (s *Server) run(r *http.Request, req auditRequest, obs orchestrator.Observer) model.ConsolidatedReport {
	opts := req.options(obs)
	if strings.TrimSpace(req.Source) != "" {
		meta := model.ContractMetadata{Address: req.Address, Network: req.Network, Name: req.Name}
		return s.svc.AuditSource(r.Context(), meta, req.Source, opts)
	}
	return s.svc.AuditContract(r.Context(), req.Address, req.Network, opts)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	// Every outcome, including an unverified contract, is a report.
	s.writeJSON(w, http.StatusOK, s.run(r, req, nil))
}

// --- Scan ---

type scanRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		s.writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	s.writeJSON(w, http.StatusOK, analysis.Scan(req.Source))
}

// --- Extract ---

type extractRequest struct {
	Raw    string `json:"raw"`
	Source string `json:"source,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	res, err := extract.Extract(req.Raw, req.Source)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// --- Rules ---

type ruleJSON struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Severity    model.Severity `json:"severity"`
	Description string         `json:"description"`
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules := analysis.Rules()
	out := make([]ruleJSON, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleJSON{
			ID:          rule.ID,
			Title:       rule.Title,
			Severity:    rule.Severity,
			Description: rule.Description,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// --- History ---

type auditSummary struct {
	ID        uuid.UUID       `json:"id"`
	Address   string          `json:"address,omitempty"`
	Network   string          `json:"network,omitempty"`
	Mode      string          `json:"mode"`
	Tier      model.Tier      `json:"tier"`
	Score     int             `json:"security_score"`
	Risk      model.RiskLevel `json:"risk_level"`
	Degraded  bool            `json:"degraded,omitempty"`
	Findings  int             `json:"findings"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotImplemented, "no audit history backend is configured")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.log.Warnw("history query failed", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}

	out := make([]auditSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, auditSummary{
			ID:        rec.ID,
			Address:   rec.Address,
			Network:   rec.Network,
			Mode:      rec.Mode,
			Tier:      rec.Report.Tier,
			Score:     rec.Report.SecurityScore,
			Risk:      rec.Report.RiskLevel,
			Degraded:  rec.Report.Degraded,
			Findings:  len(rec.Report.Findings),
			CreatedAt: rec.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}
