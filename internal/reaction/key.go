// Package reaction implements the deterministic reaction cache, its
// single-flight miss resolution, and the world-first discovery ledger.
package reaction

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"unicode"
)

// NormalizeEnvironment canonicalizes an environment descriptor: trimmed,
// inner whitespace collapsed, lowercased. An empty descriptor defaults to
// "earth".
func NormalizeEnvironment(environment string) string {
	fields := strings.FieldsFunc(environment, unicode.IsSpace)
	normalized := strings.ToLower(strings.Join(fields, " "))
	if normalized == "" {
		return "earth"
	}
	return normalized
}

// NormalizeReactants trims each identifier and drops empties. Duplicates
// are preserved: the reactant list is a multiset.
func NormalizeReactants(reactants []string) []string {
	normalized := make([]string, 0, len(reactants))
	for _, r := range reactants {
		if trimmed := strings.TrimSpace(r); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

// keyPayload is hashed in canonical form. Fields are declared in
// alphabetical order so the serialized keys are sorted, matching a
// sort-keys JSON canonicalization.
type keyPayload struct {
	Catalyst    string   `json:"catalyst"`
	Chemicals   []string `json:"chemicals"`
	Environment string   `json:"environment"`
}

// ComputeKey derives the deterministic cache key for a reaction request.
// Reactant order never matters: the sorted multiset of identifiers, the
// normalized environment, and the catalyst fully determine the key.
func ComputeKey(reactants []string, environment, catalyst string) string {
	sorted := append([]string(nil), NormalizeReactants(reactants)...)
	sort.Strings(sorted)

	payload := keyPayload{
		Catalyst:    strings.TrimSpace(catalyst),
		Chemicals:   sorted,
		Environment: NormalizeEnvironment(environment),
	}
	// Marshal cannot fail for this shape
	raw, _ := json.Marshal(payload)
	digest := sha256.Sum256(raw)
	return hex.EncodeToString(digest[:])
}
