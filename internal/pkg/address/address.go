// Package address classifies Bitcoin address strings by format. It performs
// no checksum or on-chain validation; the contract is pattern matching only.
package address

import "regexp"

var (
	legacyPattern  = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	segwitPattern  = regexp.MustCompile(`^bc1[a-z0-9]{39,59}$`)
	extractPattern = regexp.MustCompile(`[13][a-km-zA-HJ-NP-Z1-9]{25,34}|bc1[a-z0-9]{39,59}`)
)

// Validate reports whether addr is a well-formed legacy (1/3 prefix, base58
// body, 26-35 chars total) or segwit (bc1 prefix, lowercase alphanumeric)
// Bitcoin address.
func Validate(addr string) bool {
	if len(addr) < 26 {
		return false
	}
	return legacyPattern.MatchString(addr) || segwitPattern.MatchString(addr)
}

// Extract salvages address-shaped substrings from arbitrary text, in order of
// first appearance and without duplicates. Used to recover wallet addresses
// from a corrupted persisted payload.
func Extract(raw string) []string {
	matches := extractPattern.FindAllString(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		if Validate(m) {
			out = append(out, m)
		}
	}
	return out
}
