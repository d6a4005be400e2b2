package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the stable record id from a title and company pair.
// Inputs are trimmed and case-folded first, so identical listings always map
// to the identical id regardless of spacing or capitalisation. The id is used
// both for dedup lookups and for idempotent re-submission to the backend.
func Fingerprint(title, company string) string {
	normalized := normalizeField(title) + "|" + normalizeField(company)
	sum := sha256.Sum256([]byte(normalized))
	return "job_" + hex.EncodeToString(sum[:16])
}

func normalizeField(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
