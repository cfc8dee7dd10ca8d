package extraction

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Patterns stripped from merchant names, in order: corporate suffixes, then
// branch suffixes like "강남점" or "서초지점".
var (
	corporateSuffixRe = regexp.MustCompile(`(?i)\(주\)|주식회사|컴퍼니|corporation|inc\.`)
	branchSuffixRe    = regexp.MustCompile(`\s*\S*(점|지점|매장|가게)$`)
	parentheticalRe   = regexp.MustCompile(`\([^)]*\)`)
)

// NormalizeMerchant derives the canonical place name stored in
// normalized_place: corporate and branch suffixes removed, trailing detail
// after " - " or " / " dropped, unicode NFC-normalized. The original place
// text is kept verbatim elsewhere; only the derived field uses this.
func NormalizeMerchant(name string) string {
	if name == "" {
		return ""
	}

	s := norm.NFC.String(name)
	s = corporateSuffixRe.ReplaceAllString(s, "")
	s = parentheticalRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = branchSuffixRe.ReplaceAllString(s, "")

	if idx := strings.Index(s, " - "); idx >= 0 {
		s = s[:idx]
	} else if idx := strings.Index(s, " / "); idx >= 0 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}
