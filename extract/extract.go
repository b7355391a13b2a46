// Package extract locates the outbound order number inside merged OCR
// text. Patterns run from most specific (label-anchored) to least
// specific (bare token); a label-anchored hit always beats a bare
// token regardless of OCR confidence.
package extract

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"pdf-rename/ocr"
)

var log = logrus.New()

// SetLogLevel sets the logging level for the extract package.
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// Extracted is a grammar-conforming order number together with its
// provenance.
type Extracted struct {
	// Number is the normalized order number, safe for use as a
	// filename component.
	Number string

	// PatternID names the pattern that matched.
	PatternID string

	// Candidate is the OCR span the number was found in.
	Candidate ocr.Candidate

	// Confidence is the combined score of the originating candidate.
	Confidence float64
}

type pattern struct {
	id string
	re *regexp.Regexp
}

// Patterns in priority order. Group 1 captures the order-number token.
// The known label variants come first; OCR-confusion-tolerant label
// spellings next; bare tokens last.
var patterns = []pattern{
	{"kw-outbound", regexp.MustCompile(`(?:销货出库单号|出库单号)[：:\s]*([0-9A-Z][0-9A-Z_:-]{2,23}[0-9A-Z])`)},
	{"kw-generic", regexp.MustCompile(`(?:单号|编号)[：:\s]*([0-9A-Z][0-9A-Z_:-]{2,23}[0-9A-Z])`)},
	{"kw-fuzzy", regexp.MustCompile(`销[货买贷][出人山][库单里][单里号][：:\s]*([0-9]{4}[-_][0-9]{10,15})`)},
	{"bare-strict", regexp.MustCompile(`(?:^|[^0-9A-Z_-])([0-9]{4}[-_][0-9]{10,15})(?:[^0-9A-Z_-]|$)`)},
	{"bare-token", regexp.MustCompile(`(?:^|[^0-9A-Z_:-])([0-9A-Z][0-9A-Z_:-]{2,14}[0-9A-Z])(?:[^0-9A-Z_:-]|$)`)},
}

// Courier tracking numbers share the shape of order numbers and must
// never be picked up.
var expressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z]{2}[0-9]{10,15}$`),
	regexp.MustCompile(`^JD[0-9]{13,18}$`),
	regexp.MustCompile(`^SF[0-9]{12}$`),
	regexp.MustCompile(`^YTO[0-9]{10,13}$`),
	regexp.MustCompile(`^ZTO[0-9]{12}$`),
	regexp.MustCompile(`^STO[0-9]{12}$`),
	regexp.MustCompile(`^YD[0-9]{13}$`),
	regexp.MustCompile(`^HTKY[0-9]{10}$`),
}

var expressPrefixes = []string{"JD", "SF", "YTO", "ZTO", "STO", "YD", "HTKY", "EMS", "YZPY", "YUNDA"}

var excludedWords = map[string]struct{}{
	"document": {}, "order": {}, "sales": {}, "number": {}, "date": {},
	"invoice": {}, "total": {}, "amount": {}, "express": {}, "tracking": {},
}

// Substitutions for glyphs tesseract habitually confuses on
// low-quality scans. Variants generated from these are only consulted
// when the raw text yields no match. Only digit-preserving or
// letter-to-digit directions are tried: digit-to-letter rewrites could
// disguise a courier tracking number as a valid token.
var confusionPairs = [][2]string{
	{"O", "0"},
	{"I", "1"},
	{"Z", "2"},
	{"5", "6"}, {"6", "5"},
	{"8", "0"}, {"0", "8"},
}

// Extractor scans merged OCR results for order numbers.
type Extractor struct {
	minDigits int
	maxLength int
}

// New returns an Extractor with the default validation rules.
func New() *Extractor {
	return &Extractor{minDigits: 4, maxLength: 25}
}

// Extract scans candidates in their ranked order against each pattern
// in priority order and returns the first accepted match. The second
// return value is false when no candidate matches any pattern — the
// extractor never guesses or truncates.
func (e *Extractor) Extract(merged ocr.MergedResult) (Extracted, bool) {
	for _, p := range patterns {
		for _, cand := range merged.Candidates {
			// Raw text first; confusion-corrected variants only as a
			// fallback within the same pattern and candidate.
			for _, text := range textVariants(cand.Text) {
				token, ok := e.firstValidMatch(p.re, text)
				if !ok {
					continue
				}
				number, ok := normalizeToken(token)
				if !ok {
					continue
				}
				log.WithFields(logrus.Fields{
					"pattern": p.id,
					"engine":  cand.Engine,
					"page":    cand.Page,
					"number":  number,
				}).Debug("Order number extracted")
				return Extracted{
					Number:     number,
					PatternID:  p.id,
					Candidate:  cand.Candidate,
					Confidence: cand.Combined,
				}, true
			}
		}
	}
	return Extracted{}, false
}

// firstValidMatch returns the first left-to-right match of re in text
// that survives validation.
func (e *Extractor) firstValidMatch(re *regexp.Regexp, text string) (string, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		token := strings.TrimSpace(m[1])
		if e.validate(token) {
			return token, true
		}
	}
	return "", false
}

func (e *Extractor) validate(token string) bool {
	if len(token) < 4 || len(token) > e.maxLength {
		return false
	}
	digits := 0
	for _, r := range token {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < e.minDigits {
		return false
	}
	if _, excluded := excludedWords[strings.ToLower(token)]; excluded {
		return false
	}
	if repeatedChar(token) {
		return false
	}
	return !isExpressNumber(token)
}

// isExpressNumber reports whether the token looks like a courier
// tracking number rather than an outbound order number.
func isExpressNumber(token string) bool {
	upper := strings.ToUpper(token)
	for _, re := range expressPatterns {
		if re.MatchString(upper) {
			return true
		}
	}
	for _, prefix := range expressPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	if isAllDigits(token) {
		switch len(token) {
		case 13, 15, 18:
			return true
		}
	}
	return false
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func repeatedChar(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return len(s) > 0
}

// textVariants yields the raw text followed by single-substitution
// confusion corrections that actually change it.
func textVariants(text string) []string {
	variants := []string{text}
	for _, pair := range confusionPairs {
		if !strings.Contains(text, pair[0]) {
			continue
		}
		v := strings.ReplaceAll(text, pair[0], pair[1])
		if v != text {
			variants = append(variants, v)
		}
	}
	return variants
}

var illegalFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// normalizeToken canonicalizes separators and verifies the result is a
// safe filename component. A token that cannot be made safe is
// rejected rather than repaired into something unrecognizable.
func normalizeToken(token string) (string, bool) {
	normalized := strings.NewReplacer("_", "-", ":", "-", "：", "-").Replace(token)
	normalized = strings.Trim(normalized, "- ")
	if normalized == "" {
		return "", false
	}
	if illegalFilenameChars.MatchString(normalized) {
		return "", false
	}
	return normalized, true
}
