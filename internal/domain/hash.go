package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// StableHash serializes v as canonical JSON (sorted map keys, no
// whitespace) and returns a truncated, prefixed SHA-256 digest. Every stage
// boundary uses this so identical inputs produce byte-identical hashes.
func StableHash(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Marshaling a plain map/slice/struct of primitives never fails;
		// a failure here means a caller passed something the hash
		// contract forbids (channels, funcs).
		panic("domain: StableHash: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])[:16]
}

// SortedSet dedupes and sorts a slice of strings, returning a fresh slice.
func SortedSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// SetUnion returns the sorted union of zero or more string slices.
func SetUnion(sets ...[]string) []string {
	var all []string
	for _, s := range sets {
		all = append(all, s...)
	}
	return SortedSet(all)
}

// SetIntersect returns the sorted intersection of a and b, case-sensitive.
func SetIntersect(a, b []string) []string {
	bSet := make(map[string]struct{}, len(b))
	for _, item := range b {
		bSet[item] = struct{}{}
	}
	var out []string
	for _, item := range a {
		if _, ok := bSet[item]; ok {
			out = append(out, item)
		}
	}
	return SortedSet(out)
}

// SetSubtract returns the sorted set a \ b.
func SetSubtract(a, b []string) []string {
	bSet := make(map[string]struct{}, len(b))
	for _, item := range b {
		bSet[item] = struct{}{}
	}
	var out []string
	for _, item := range a {
		if _, ok := bSet[item]; !ok {
			out = append(out, item)
		}
	}
	return SortedSet(out)
}

// ToLowerSet lowercases every element and returns a sorted, deduped set.
func ToLowerSet(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, toLower(item))
	}
	return SortedSet(out)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
