package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	sentenceEndRe  = regexp.MustCompile(`[.!?]+[\s"')\]]*`)
	nonWordRe      = regexp.MustCompile(`[^a-z0-9\s-]`)
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
)

// cleanText normalizes whitespace and strips control characters before text
// is sent to a provider or hashed for the embedding cache.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(b.String(), " "))
}

func truncateText(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	// Back up to a word boundary when one is close enough.
	if idx := strings.LastIndexByte(cut, ' '); idx > maxChars-200 {
		cut = cut[:idx]
	}
	return cut
}

func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// splitSentences is intentionally simple: terminal punctuation followed by
// whitespace. Abbreviation handling is not worth the complexity for scoring
// heuristics.
func splitSentences(text string) []string {
	parts := sentenceEndRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitParagraphs(text string) []string {
	parts := paragraphSplit.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "her": true, "his": true,
	"i": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "our": true, "she": true, "that": true,
	"the": true, "their": true, "they": true, "this": true, "to": true,
	"was": true, "we": true, "were": true, "will": true, "with": true,
	"you": true, "your": true, "not": true, "been": true, "had": true,
	"more": true, "also": true, "can": true, "which": true, "who": true,
	"what": true, "when": true, "how": true, "all": true, "would": true,
	"there": true, "about": true, "after": true, "said": true, "than": true,
	"them": true, "into": true, "over": true, "other": true, "new": true,
}

// tokenize lowercases, strips punctuation and drops stopwords.
func tokenize(text string) []string {
	lowered := nonWordRe.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(lowered)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

// topKeywords returns the most frequent non-stopword tokens, frequency
// descending, alphabetical on ties so output is deterministic.
func topKeywords(text string, limit int) []string {
	freq := map[string]int{}
	for _, tok := range tokenize(text) {
		freq[tok]++
	}
	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

// normalizeTopic lowercases and strips punctuation so the same topic merges
// across detection windows.
func normalizeTopic(name string) string {
	lowered := nonWordRe.ReplaceAllString(strings.ToLower(name), " ")
	return strings.Join(strings.Fields(lowered), " ")
}

func countSyllables(word string) int {
	word = strings.ToLower(word)
	if word == "" {
		return 0
	}
	vowels := "aeiouy"
	count := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune(vowels, r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func averageVectors(vectors [][]float32, weights []float64) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	total := 0.0
	for i, v := range vectors {
		if len(v) != dim {
			continue
		}
		w := 1.0
		if len(weights) == len(vectors) {
			w = weights[i]
		}
		total += w
		for j, x := range v {
			sum[j] += float64(x) * w
		}
	}
	if total == 0 {
		return nil
	}
	out := make([]float32, dim)
	for j := range sum {
		out[j] = float32(sum[j] / total)
	}
	return out
}

// jaccard computes overlap between two string sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := map[string]bool{}
	for _, s := range a {
		set[s] = true
	}
	inter := 0
	union := len(set)
	seen := map[string]bool{}
	for _, s := range b {
		if seen[s] {
			continue
		}
		seen[s] = true
		if set[s] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// jsonStrings decodes a jsonb []string column, tolerating null/empty.
func jsonStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
