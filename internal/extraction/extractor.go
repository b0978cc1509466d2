package extraction

import (
	"regexp"
	"strconv"
	"strings"
)

// Name matchers, ordered most specific to most generic. Evaluation stops at
// the first pattern that matches; later patterns are never consulted, so the
// ordering decides which capture wins on ambiguous text. Keywords match
// case-insensitively while the two captured tokens must be capitalized
// words, assigned to first name then last name.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?i:patient\s+named)\s+([A-Z][a-z]+)\s+([A-Z][a-z]+)`),
	regexp.MustCompile(`\b(?i:dr|mr|mrs)\.?\s+([A-Z][a-z]+)\s+([A-Z][a-z]+)`),
	regexp.MustCompile(`\b(?i:name\s+is)\s+([A-Z][a-z]+)\s+([A-Z][a-z]+)`),
	regexp.MustCompile(`\b(?i:for)\s+([A-Z][a-z]+)\s+([A-Z][a-z]+)`),
	regexp.MustCompile(`\b(?i:patient)\s+([A-Z][a-z]+)\s+([A-Z][a-z]+)`),
	regexp.MustCompile(`([A-Z][a-z]+)\s+([A-Z][a-z]+),?\s+(?i:born|dob)\b`),
}

// datePattern pairs a date regexp with its normalization rules. monthName
// patterns capture (month token, day, year); numeric patterns capture
// (month, day, year) digits. expandYY turns a two-digit year into 20YY and
// is set only on the keyword-prefixed numeric pattern — a bare numeric date
// must carry a four-digit year to match at all.
type datePattern struct {
	re        *regexp.Regexp
	monthName bool
	expandYY  bool
}

// Date matchers, ordered like the name matchers: first match wins. The
// numeric family comes before the month-name family, keyword-prefixed
// before bare within each.
var datePatterns = []datePattern{
	{re: regexp.MustCompile(`\b(?i:born(?:\s+on)?|dob|date\s+of\s+birth)[:\s]+(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})`), expandYY: true},
	{re: regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)},
	{re: regexp.MustCompile(`\b(?i:born(?:\s+on)?|dob|date\s+of\s+birth)[:\s]+([A-Za-z]+)\s+(\d{1,2})(?i:st|nd|rd|th)?,?\s+(\d{4})\b`), monthName: true},
	{re: regexp.MustCompile(`\b([A-Za-z]+)\s+(\d{1,2})(?i:st|nd|rd|th)?,?\s+(\d{4})\b`), monthName: true},
}

var monthNames = [...]string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// monthNumber resolves a captured month token by case-insensitive prefix
// test against the full English month names, January through December. The
// first name the lowercased token starts with wins; abbreviations that do
// not spell out a full month resolve to nothing.
func monthNumber(token string) (int, bool) {
	lower := strings.ToLower(token)
	for i, name := range monthNames {
		if strings.HasPrefix(lower, name) {
			return i + 1, true
		}
	}
	return 0, false
}

// normalize converts a regexp match into MM/DD/YYYY form. Month and day are
// left-padded to two digits. A two-digit year becomes 20YY when expandYY is
// set, so "85" turns into "2085"; pre-2000 two-digit years are not
// representable through this path. Month and day ranges are not validated:
// a value like 13/40/2020 passes through unchanged. A month-name token that
// resolves to no month reports failure so the caller can try the next
// pattern.
func (p datePattern) normalize(m []string) (string, bool) {
	if p.monthName {
		month, ok := monthNumber(m[1])
		if !ok {
			return "", false
		}
		return pad2(strconv.Itoa(month)) + "/" + pad2(m[2]) + "/" + m[3], true
	}
	year := m[3]
	if p.expandYY && len(year) == 2 {
		year = "20" + year
	}
	return pad2(m[1]) + "/" + pad2(m[2]) + "/" + year, true
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// Extract pulls a best-effort patient identity out of free text: dictation
// transcripts, OCR output, or typed notes. Empty or unmatchable text is not
// an error; the returned identity simply has absent fields and a lower
// confidence. The canonical key is set only when the name and date of birth
// were both found. Extract is deterministic: identical input always yields
// an identical identity.
func Extract(text string) Identity {
	var id Identity

	for _, re := range namePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		first, last := m[1], m[2]
		id.FirstName = &first
		id.LastName = &last
		break
	}

	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		dob, ok := p.normalize(m)
		if !ok {
			continue
		}
		id.DateOfBirth = &dob
		break
	}

	return finalize(id)
}
