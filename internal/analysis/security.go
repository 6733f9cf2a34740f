package analysis

import (
	"regexp"

	"github.com/sprite-ai/solaudit/internal/model"
)

// Rule is one textual vulnerability signature.
type Rule struct {
	ID             string
	Title          string
	Severity       model.Severity
	Description    string
	Recommendation string

	pattern *regexp.Regexp
	// unless suppresses a match on the same line (e.g. a checked return value).
	unless *regexp.Regexp
	// fileLevel rules are evaluated once against the whole source.
	fileLevel func(src string) (line int, hit bool)
}

// Vulnerability signatures, in reporting order. Severity is fixed per rule.
var rules = []Rule{
	{
		ID:             "unchecked-call",
		Title:          "Unchecked low-level call",
		Severity:       model.SeverityHigh,
		Description:    "A low-level call or send is made without checking its return value; a failed transfer is silently ignored.",
		Recommendation: "Capture the boolean result and require it, or use OpenZeppelin Address.sendValue / SafeERC20.",
		pattern:        regexp.MustCompile(`\.(call|send)\s*(\{[^}]*\})?\s*\(`),
		unless:         regexp.MustCompile(`(=|require\s*\(|if\s*\(|assert\s*\(|return\s)`),
	},
	{
		ID:             "delegatecall",
		Title:          "Delegatecall to a possibly untrusted target",
		Severity:       model.SeverityHigh,
		Description:    "delegatecall executes foreign code in this contract's storage context; a controllable target can take over the contract.",
		Recommendation: "Restrict delegatecall targets to immutable, audited implementations.",
		pattern:        regexp.MustCompile(`\.delegatecall\s*\(`),
	},
	{
		ID:             "selfdestruct",
		Title:          "Use of selfdestruct",
		Severity:       model.SeverityHigh,
		Description:    "The contract can be destroyed, removing its code and forwarding its balance.",
		Recommendation: "Remove selfdestruct or gate it behind multi-party governance.",
		pattern:        regexp.MustCompile(`\b(selfdestruct|suicide)\s*\(`),
	},
	{
		ID:             "tx-origin",
		Title:          "Authorization through tx.origin",
		Severity:       model.SeverityMedium,
		Description:    "tx.origin refers to the transaction originator, so a malicious intermediate contract can pass the check on the user's behalf.",
		Recommendation: "Use msg.sender for authorization.",
		pattern:        regexp.MustCompile(`\btx\.origin\b`),
	},
	{
		ID:             "weak-randomness",
		Title:          "Weak on-chain randomness",
		Severity:       model.SeverityMedium,
		Description:    "Block attributes are predictable or influenceable by validators and must not be used as a source of randomness.",
		Recommendation: "Use a verifiable randomness oracle such as Chainlink VRF.",
		pattern:        regexp.MustCompile(`\bblock\.(difficulty|prevrandao)\b|\bblockhash\s*\(`),
	},
	{
		ID:             "unsafe-arithmetic",
		Title:          "Arithmetic without overflow protection",
		Severity:       model.SeverityMedium,
		Description:    "The contract targets a compiler older than 0.8 and performs arithmetic without SafeMath, so integer overflow and underflow wrap silently.",
		Recommendation: "Upgrade to Solidity 0.8+ or wrap arithmetic with SafeMath.",
		fileLevel:      uncheckedArithmetic,
	},
	{
		ID:             "inline-assembly",
		Title:          "Inline assembly",
		Severity:       model.SeverityLow,
		Description:    "Inline assembly bypasses the compiler's safety checks and is easy to get wrong.",
		Recommendation: "Keep assembly blocks minimal and document their memory assumptions.",
		pattern:        regexp.MustCompile(`\bassembly\s*(\("memory-safe"\)\s*)?\{`),
	},
	{
		ID:             "timestamp-dependence",
		Title:          "Block timestamp dependence",
		Severity:       model.SeverityLow,
		Description:    "Validators can skew block.timestamp by several seconds; comparisons against it should tolerate that drift.",
		Recommendation: "Avoid tight timing windows that depend on block.timestamp.",
		pattern:        regexp.MustCompile(`(block\.timestamp|\bnow\b)\s*(<=|>=|<|>|==|%)|(<=|>=|<|>|==)\s*(block\.timestamp|\bnow\b)`),
	},
	{
		ID:             "ecrecover",
		Title:          "Raw ecrecover usage",
		Severity:       model.SeverityLow,
		Description:    "ecrecover accepts malleable signatures and returns address(0) on failure.",
		Recommendation: "Use OpenZeppelin ECDSA.recover and check for the zero address.",
		pattern:        regexp.MustCompile(`\becrecover\s*\(`),
	},
	{
		ID:             "floating-pragma",
		Title:          "Floating compiler pragma",
		Severity:       model.SeverityInfo,
		Description:    "The pragma allows several compiler versions, so the deployed bytecode may differ from the tested one.",
		Recommendation: "Pin the pragma to the compiler version used for testing.",
		pattern:        regexp.MustCompile(`pragma\s+solidity\s*(\^|>=|>)`),
	},
}

// Rules returns the scanner's rule table in reporting order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

var (
	pragmaVersion  = regexp.MustCompile(`pragma\s+solidity\s*[\^>=<~ ]*\s*0\.(\d+)`)
	compoundArith  = regexp.MustCompile(`(\+=|-=|\*=|\+\+|--)|\b\w+\s*=\s*\w+\s*[+\-*]\s*\w+`)
	safeMathMarker = regexp.MustCompile(`\bSafeMath\b|\busing\s+\w+\s+for\s+uint`)
)

// uncheckedArithmetic reports the first arithmetic line when the pragma
// targets a pre-0.8 compiler and SafeMath is not in use.
func uncheckedArithmetic(src string) (int, bool) {
	m := pragmaVersion.FindStringSubmatch(src)
	if m == nil || len(m[1]) != 1 || m[1][0] >= '8' {
		return 0, false
	}
	if safeMathMarker.MatchString(src) {
		return 0, false
	}
	for i, line := range splitLines(src) {
		if isComment(line) {
			continue
		}
		if compoundArith.MatchString(line) {
			return i + 1, true
		}
	}
	return 0, false
}
