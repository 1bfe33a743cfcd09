package detect

import "regexp"

// Match is a contract address found in a piece of text.
type Match struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

type chainPattern struct {
	chain string
	re    *regexp.Regexp
}

// Patterns are evaluated in declaration order and the first chain whose
// pattern matches wins, regardless of where in the text each match starts.
var chainPatterns = []chainPattern{
	{"ethereum", regexp.MustCompile(`0x[a-fA-F0-9]{40}`)},
	{"tron", regexp.MustCompile(`T[a-zA-Z0-9]{33}`)},
	{"bitcoin", regexp.MustCompile(`[13][a-km-zA-HJ-NP-Z1-9]{25,34}`)},
}

// Address scans text for a contract address and returns the first match in
// chain declaration order. The second return value is false when no chain
// pattern matches.
func Address(text string) (Match, bool) {
	for _, p := range chainPatterns {
		if addr := p.re.FindString(text); addr != "" {
			return Match{Chain: p.chain, Address: addr}, true
		}
	}
	return Match{}, false
}

// Chains returns the chain names in detection order.
func Chains() []string {
	names := make([]string, len(chainPatterns))
	for i, p := range chainPatterns {
		names[i] = p.chain
	}
	return names
}
