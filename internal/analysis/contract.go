package analysis

import (
	"regexp"
)

// Observations are structural facts about a contract that do not count as
// findings.
type Observations struct {
	ContractType    string
	AccessControl   []string
	SecureImports   []string
	UsesUpgradeable bool
}

// Features renders observations as key feature strings.
func (o Observations) Features() []string {
	var out []string
	for _, a := range o.AccessControl {
		out = append(out, "Access control: "+a)
	}
	for _, s := range o.SecureImports {
		out = append(out, "Uses "+s)
	}
	if o.UsesUpgradeable {
		out = append(out, "Upgradeable proxy pattern")
	}
	return out
}

var accessControlMarkers = []struct {
	name string
	re   *regexp.Regexp
}{
	{"onlyOwner modifier", regexp.MustCompile(`\bonlyOwner\b`)},
	{"Ownable", regexp.MustCompile(`\bOwnable\b`)},
	{"AccessControl roles", regexp.MustCompile(`\bAccessControl\b|\bonlyRole\s*\(`)},
	{"msg.sender checks", regexp.MustCompile(`msg\.sender\s*==|==\s*msg\.sender`)},
}

var secureLibraries = []struct {
	name string
	re   *regexp.Regexp
}{
	{"OpenZeppelin contracts", regexp.MustCompile(`@openzeppelin/`)},
	{"SafeMath", regexp.MustCompile(`\bSafeMath\b`)},
	{"ReentrancyGuard", regexp.MustCompile(`\bReentrancyGuard\b|\bnonReentrant\b`)},
	{"SafeERC20", regexp.MustCompile(`\bSafeERC20\b`)},
}

var contractTypes = []struct {
	name string
	re   *regexp.Regexp
}{
	{"Proxy", regexp.MustCompile(`\b(ERC1967Proxy|TransparentUpgradeableProxy|UUPSUpgradeable|_implementation\s*\(|upgradeTo\s*\()`)},
	{"ERC1155", regexp.MustCompile(`\bERC1155\b|\bsafeBatchTransferFrom\s*\(`)},
	{"ERC721", regexp.MustCompile(`\bERC721\b|\bownerOf\s*\(`)},
	{"ERC20", regexp.MustCompile(`\bERC20\b|\btransferFrom\s*\(|\ballowance\s*\(`)},
	{"Governor", regexp.MustCompile(`\bGovernor\b|\bpropose\s*\(|\bcastVote\s*\(`)},
	{"Multisig", regexp.MustCompile(`(?i)\bmultisig\b|\bconfirmTransaction\s*\(`)},
}

var upgradeableMarker = regexp.MustCompile(`\bInitializable\b|\binitializer\b|Upgradeable\b`)

// Observe collects structural observations about src.
func Observe(src string) Observations {
	var obs Observations
	for _, m := range accessControlMarkers {
		if m.re.MatchString(src) {
			obs.AccessControl = append(obs.AccessControl, m.name)
		}
	}
	for _, l := range secureLibraries {
		if l.re.MatchString(src) {
			obs.SecureImports = append(obs.SecureImports, l.name)
		}
	}
	obs.UsesUpgradeable = upgradeableMarker.MatchString(src)

	obs.ContractType = "Generic"
	for _, ct := range contractTypes {
		if ct.re.MatchString(src) {
			obs.ContractType = ct.name
			break
		}
	}
	return obs
}
