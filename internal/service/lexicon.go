package service

import "regexp"

// Confidence tiers for description-based detection.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// LexiconEntry is one detection rule: a description pattern plus the
// confidence it grants. Lexicons are ordered data so new providers and BNPL
// vendors are additive changes, not new branches.
type LexiconEntry struct {
	Pattern    *regexp.Regexp
	Confidence Confidence
	// Installments is the default plan length for BNPL entries when the
	// description carries no explicit k/N marker.
	Installments int
}

// transferLexicon matches explicit internal money movement. A hit on either
// leg auto-links the pair.
var transferLexicon = []LexiconEntry{
	{Pattern: regexp.MustCompile(`(?i)\btransfer\b`), Confidence: ConfidenceHigh},
	{Pattern: regexp.MustCompile(`(?i)\binternal\s+(move|transfer)\b`), Confidence: ConfidenceHigh},
	{Pattern: regexp.MustCompile(`(?i)\bown\s+account\b`), Confidence: ConfidenceHigh},
	{Pattern: regexp.MustCompile(`(?i)\btop[\s-]?up\b`), Confidence: ConfidenceHigh},
	{Pattern: regexp.MustCompile(`(?i)\bsavings?\s+sweep\b`), Confidence: ConfidenceHigh},
}

// walletLexicon matches intermediary wallets and BNPL providers whose
// charges often shadow a purchase on another account. Hits only produce
// suggestions, never automatic links.
var walletLexicon = []LexiconEntry{
	{Pattern: regexp.MustCompile(`(?i)\bpaypal\b`), Confidence: ConfidenceMedium},
	{Pattern: regexp.MustCompile(`(?i)\bvenmo\b`), Confidence: ConfidenceMedium},
	{Pattern: regexp.MustCompile(`(?i)\brevolut\b`), Confidence: ConfidenceMedium},
	{Pattern: regexp.MustCompile(`(?i)\bwise\b`), Confidence: ConfidenceMedium},
	{Pattern: regexp.MustCompile(`(?i)\bcash\s?app\b`), Confidence: ConfidenceMedium},
	{Pattern: regexp.MustCompile(`(?i)\bklarna\b`), Confidence: ConfidenceMedium},
	{Pattern: regexp.MustCompile(`(?i)\bafterpay\b`), Confidence: ConfidenceMedium},
	{Pattern: regexp.MustCompile(`(?i)\baffirm\b`), Confidence: ConfidenceMedium},
}

// bnplLexicon matches purchases made through installment providers. Each
// entry carries the provider's default plan length.
var bnplLexicon = []LexiconEntry{
	{Pattern: regexp.MustCompile(`(?i)\bklarna\b`), Confidence: ConfidenceHigh, Installments: 4},
	{Pattern: regexp.MustCompile(`(?i)\bafterpay\b`), Confidence: ConfidenceHigh, Installments: 4},
	{Pattern: regexp.MustCompile(`(?i)\baffirm\b`), Confidence: ConfidenceHigh, Installments: 3},
	{Pattern: regexp.MustCompile(`(?i)\bzip\s?pay\b`), Confidence: ConfidenceHigh, Installments: 4},
	{Pattern: regexp.MustCompile(`(?i)\bsezzle\b`), Confidence: ConfidenceHigh, Installments: 4},
	{Pattern: regexp.MustCompile(`(?i)\binstall?ment\b`), Confidence: ConfidenceHigh, Installments: 3},
	{Pattern: regexp.MustCompile(`(?i)\bparcela\b`), Confidence: ConfidenceHigh, Installments: 3},
}

// installmentMarker captures explicit "k/N" plan markers in descriptions,
// e.g. "KLARNA 1/4" or "purchase installment 2 of 3".
var installmentMarker = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:/|of)\s*(\d{1,2})\b`)

// matchLexicon returns the first entry whose pattern matches description.
func matchLexicon(lexicon []LexiconEntry, description string) (LexiconEntry, bool) {
	for _, entry := range lexicon {
		if entry.Pattern.MatchString(description) {
			return entry, true
		}
	}
	return LexiconEntry{}, false
}
