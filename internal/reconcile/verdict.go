package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sprite-ai/solaudit/internal/extract"
	"github.com/sprite-ai/solaudit/internal/model"
)

// Verdict is the validator's classification of one prior finding.
type Verdict string

const (
	Confirm Verdict = "CONFIRM"
	Dispute Verdict = "DISPUTE"
	Modify  Verdict = "MODIFY"
)

func parseVerdict(raw string) (Verdict, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "CONFIRM", "CONFIRMED", "AGREE", "VALID", "TRUE_POSITIVE":
		return Confirm, true
	case "DISPUTE", "DISPUTED", "REJECT", "REJECTED", "INVALID", "FALSE_POSITIVE":
		return Dispute, true
	case "MODIFY", "MODIFIED", "ADJUST", "ADJUSTED", "AMEND":
		return Modify, true
	}
	return "", false
}

// judgment is one classified prior finding.
type judgment struct {
	verdict  Verdict
	modified *model.Finding
}

// validation is the parsed validator response.
type validation struct {
	judgments    map[int]judgment
	additions    []model.Finding
	discussion   string
	overview     string
	contractType string
	keyFeatures  []string
	score        *int
}

// parseValidation reads the validator's structured verdict. count is the
// number of prior findings; out-of-range indices are ignored.
func parseValidation(raw, source string, count int) (*validation, error) {
	obj, ok := extract.LocateJSON(raw, "verdicts", "additionalFindings")
	if !ok {
		return nil, fmt.Errorf("no structured verdict in validator response")
	}
	fields := make(map[string]any, len(obj))
	for k, v := range obj {
		fields[normalize(k)] = v
	}

	verdicts, hasVerdicts := fields["verdicts"].([]any)
	additions, hasAdditions := firstArray(fields, "additionalfindings", "additions", "missedfindings", "newfindings")
	if !hasVerdicts && !hasAdditions {
		return nil, fmt.Errorf("validator response has neither verdicts nor additional findings")
	}

	base := extract.FromObject(obj, source)

	v := &validation{
		judgments:    make(map[int]judgment),
		discussion:   stringOf(fields["discussion"]),
		overview:     base.Overview,
		contractType: base.ContractType,
		keyFeatures:  base.KeyFeatures,
		score:        base.SecurityScore,
	}
	if v.discussion == "" {
		v.discussion = stringOf(fields["analysisdiscussion"])
	}

	for _, item := range verdicts {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		vf := make(map[string]any, len(m))
		for k, val := range m {
			vf[normalize(k)] = val
		}
		idx, ok := indexOf(firstOf(vf, "index", "findingindex", "id", "finding"))
		if !ok || idx < 0 || idx >= count {
			continue
		}
		if _, seen := v.judgments[idx]; seen {
			continue
		}
		verdict, ok := parseVerdict(stringOf(firstOf(vf, "verdict", "decision", "classification", "status")))
		if !ok {
			continue
		}
		j := judgment{verdict: verdict}
		if verdict == Modify {
			if mod, ok := firstOf(vf, "modified", "modifiedfinding", "finding", "replacement").(map[string]any); ok {
				if fs := extract.ParseFindings([]any{mod}, source); len(fs) == 1 {
					j.modified = &fs[0]
				}
			}
		}
		v.judgments[idx] = j
	}

	v.additions = extract.ParseFindings(additions, source)
	return v, nil
}

func firstOf(fields map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstArray(fields map[string]any, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if arr, ok := fields[k].([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

func indexOf(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), t == float64(int(t))
	case string:
		n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(t), "[]#"))
		return n, err == nil
	}
	return 0, false
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func normalize(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
}
