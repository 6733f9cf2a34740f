package analysis

import (
	"strings"
	"testing"

	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/scoring"
)

// --- Single-rule tests ---

const txOriginWallet = `// SPDX-License-Identifier: MIT
pragma solidity 0.8.19;

contract Wallet {
    address public owner;

    constructor() {
        owner = msg.sender;
    }

    function withdraw(uint256 amount) external {
        require(tx.origin == owner, "not owner");
        payable(msg.sender).transfer(amount);
    }
}
`

func TestScanTxOriginOnly(t *testing.T) {
	res := Scan(txOriginWallet)

	if res.Failed() {
		t.Fatalf("scanner must not fail, got %q", res.Error)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d: %v", len(res.Findings), res.Findings)
	}

	f := res.Findings[0]
	if f.Severity != model.SeverityMedium {
		t.Errorf("expected MEDIUM, got %s", f.Severity)
	}
	if !strings.Contains(f.Title, "tx.origin") {
		t.Errorf("unexpected title %q", f.Title)
	}
	if f.SourceTag != SourceName || f.ConsensusCount != 1 {
		t.Errorf("unexpected provenance: %s", f)
	}
	if !strings.HasPrefix(f.CodeReference, "L12:") {
		t.Errorf("expected reference to line 12, got %q", f.CodeReference)
	}
	if res.SecurityScore != nil {
		t.Errorf("scanner should not self-report a score")
	}

	score, level := scoring.Score(res.Findings, nil)
	if score != 95 || level != model.RiskSafe {
		t.Errorf("expected 95/Safe, got %d/%s", score, level)
	}
}

func TestScanRules(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
		sev  model.Severity
	}{
		{"unchecked call", "function f() external { payable(a).call{value: 1}(\"\"); }", "Unchecked low-level call", model.SeverityHigh},
		{"unchecked send", "  to.send(amount);", "Unchecked low-level call", model.SeverityHigh},
		{"delegatecall", "(bool ok,) = impl.delegatecall(data);", "Delegatecall to a possibly untrusted target", model.SeverityHigh},
		{"selfdestruct", "selfdestruct(payable(owner));", "Use of selfdestruct", model.SeverityHigh},
		{"weak randomness", "uint r = uint(keccak256(abi.encode(block.difficulty)));", "Weak on-chain randomness", model.SeverityMedium},
		{"assembly", "assembly { sstore(0, 1) }", "Inline assembly", model.SeverityLow},
		{"timestamp", "require(block.timestamp >= deadline);", "Block timestamp dependence", model.SeverityLow},
		{"ecrecover", "address s = ecrecover(h, v, r, s2);", "Raw ecrecover usage", model.SeverityLow},
		{"floating pragma", "pragma solidity ^0.8.0;", "Floating compiler pragma", model.SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Scan(tt.src)
			var got *model.Finding
			for i := range res.Findings {
				if res.Findings[i].Title == tt.want {
					got = &res.Findings[i]
				}
			}
			if got == nil {
				t.Fatalf("expected %q among %v", tt.want, res.Findings)
			}
			if got.Severity != tt.sev {
				t.Errorf("expected %s, got %s", tt.sev, got.Severity)
			}
		})
	}
}

func TestCheckedCallIsIgnored(t *testing.T) {
	src := `(bool ok, ) = to.call{value: amount}("");
require(to.send(1));`
	for _, f := range Scan(src).Findings {
		if f.Title == "Unchecked low-level call" {
			t.Errorf("checked call flagged: %s", f.CodeReference)
		}
	}
}

func TestCommentsIgnored(t *testing.T) {
	src := `// require(tx.origin == owner);
/* selfdestruct(owner); */
 * ecrecover(h, v, r, s)`
	if got := Scan(src).Findings; len(got) != 0 {
		t.Errorf("expected no findings in comments, got %v", got)
	}
}

func TestRuleFiresOncePerSource(t *testing.T) {
	src := `require(tx.origin == a);
require(tx.origin == b);
require(tx.origin == c);`
	res := Scan(src)
	if len(res.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(res.Findings))
	}
	if !strings.Contains(res.Findings[0].Description, "3 occurrences") {
		t.Errorf("expected occurrence count, got %q", res.Findings[0].Description)
	}
}

// --- Arithmetic tests ---

func TestUncheckedArithmetic(t *testing.T) {
	old := `pragma solidity 0.6.12;
contract C {
    uint total;
    function add(uint x) public { total += x; }
}`
	res := Scan(old)
	if !hasTitle(res.Findings, "Arithmetic without overflow protection") {
		t.Errorf("expected arithmetic finding for 0.6 compiler, got %v", res.Findings)
	}

	withSafeMath := "pragma solidity 0.6.12;\nusing SafeMath for uint256;\n" + old[len("pragma solidity 0.6.12;\n"):]
	if hasTitle(Scan(withSafeMath).Findings, "Arithmetic without overflow protection") {
		t.Error("SafeMath should suppress the arithmetic finding")
	}

	modern := strings.Replace(old, "0.6.12", "0.8.20", 1)
	if hasTitle(Scan(modern).Findings, "Arithmetic without overflow protection") {
		t.Error("0.8 compiler has checked arithmetic")
	}
}

// --- Structural observations ---

func TestObserve(t *testing.T) {
	src := `import "@openzeppelin/contracts/token/ERC20/ERC20.sol";
import "@openzeppelin/contracts/access/Ownable.sol";
contract Token is ERC20, Ownable {
    function mint(address to, uint256 v) external onlyOwner { _mint(to, v); }
}`
	obs := Observe(src)
	if obs.ContractType != "ERC20" {
		t.Errorf("expected ERC20, got %s", obs.ContractType)
	}
	features := strings.Join(obs.Features(), "|")
	for _, want := range []string{"onlyOwner modifier", "Ownable", "OpenZeppelin contracts"} {
		if !strings.Contains(features, want) {
			t.Errorf("missing feature %q in %s", want, features)
		}
	}

	// Observations never become findings.
	if got := Scan(src).Findings; len(got) != 0 {
		t.Errorf("expected no findings, got %v", got)
	}
}

func TestScanEmpty(t *testing.T) {
	res := Scan("")
	if res.Failed() || len(res.Findings) != 0 {
		t.Errorf("unexpected result for empty source: %+v", res)
	}
	if res.ContractType != "Generic" {
		t.Errorf("expected Generic, got %s", res.ContractType)
	}
}

func TestRulesCopy(t *testing.T) {
	r := Rules()
	r[0].Title = "mutated"
	if Rules()[0].Title == "mutated" {
		t.Error("Rules must return a copy")
	}
}

func hasTitle(fs []model.Finding, title string) bool {
	for _, f := range fs {
		if f.Title == title {
			return true
		}
	}
	return false
}
