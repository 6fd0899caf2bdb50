package services

import (
	"strings"
	"unicode"
)

// Quality sub-scores. Each returns a value in [0,100] plus whatever detail
// its section of the AnalysisResult reports. All of these are heuristics:
// good enough to rank content, cheap enough to run on every item.

type ReadabilityResult struct {
	Score      float64 `json:"score"`
	GradeLevel float64 `json:"grade_level"`
	Level      string  `json:"level"`
}

// readability maps a Flesch-Kincaid style grade estimate onto [0,100],
// rewarding the 8th-11th grade band that typical news writing targets.
func readability(text string) ReadabilityResult {
	sentences := splitSentences(text)
	words := strings.Fields(text)
	if len(sentences) == 0 || len(words) == 0 {
		return ReadabilityResult{Score: 50, GradeLevel: 0, Level: "unknown"}
	}
	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}
	wordsPerSentence := float64(len(words)) / float64(len(sentences))
	syllablesPerWord := float64(syllables) / float64(len(words))
	grade := 0.39*wordsPerSentence + 11.8*syllablesPerWord - 15.59
	if grade < 0 {
		grade = 0
	}

	var score float64
	var level string
	switch {
	case grade <= 5:
		score = 70
		level = "elementary"
	case grade <= 8:
		score = 90
		level = "accessible"
	case grade <= 11:
		score = 100
		level = "standard"
	case grade <= 14:
		score = 80
		level = "advanced"
	default:
		score = 60
		level = "academic"
	}
	return ReadabilityResult{Score: score, GradeLevel: grade, Level: level}
}

type GrammarResult struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// grammarScore runs shallow checks: sentence capitalization, terminal
// punctuation on paragraphs, and overlong sentences.
func grammarScore(text string) GrammarResult {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return GrammarResult{Score: 50}
	}
	var issues []string
	uncapitalized := 0
	overlong := 0
	for _, s := range sentences {
		runes := []rune(s)
		if len(runes) > 0 && unicode.IsLetter(runes[0]) && !unicode.IsUpper(runes[0]) {
			uncapitalized++
		}
		if wordCount(s) > 45 {
			overlong++
		}
	}
	score := 100.0
	if uncapitalized > 0 {
		score -= 30 * float64(uncapitalized) / float64(len(sentences))
		issues = append(issues, "uncapitalized sentences")
	}
	if overlong > 0 {
		score -= 30 * float64(overlong) / float64(len(sentences))
		issues = append(issues, "overlong sentences")
	}
	for _, p := range splitParagraphs(text) {
		trimmed := strings.TrimRight(p, " \t")
		if trimmed == "" {
			continue
		}
		last := trimmed[len(trimmed)-1]
		if last != '.' && last != '!' && last != '?' && last != '"' && last != ':' {
			score -= 5
			issues = append(issues, "paragraph missing terminal punctuation")
			break
		}
	}
	return GrammarResult{Score: clamp(score, 0, 100), Issues: issues}
}

var verifiabilityTerms = []string{
	"according to", "reported", "study", "survey", "data", "percent", "%",
	"research", "official", "statistics", "source", "published", "announced",
	"confirmed", "measured",
}

var referenceMarkers = []string{
	"http://", "https://", "doi.org", "et al", "journal", "university",
}

type FactualityResult struct {
	Score      float64 `json:"score"`
	ClaimCount int     `json:"claim_count"`
}

// factualityScore extracts claim-like sentences (contain a number or a
// reporting verb) and scores verifiability-keyword density, with a boost
// when references are present.
func factualityScore(text string) FactualityResult {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return FactualityResult{Score: 50}
	}
	lowered := strings.ToLower(text)
	claims := 0
	for _, s := range sentences {
		ls := strings.ToLower(s)
		hasDigit := strings.IndexFunc(s, unicode.IsDigit) >= 0
		if hasDigit || strings.Contains(ls, "said") || strings.Contains(ls, "reported") || strings.Contains(ls, "according to") {
			claims++
		}
	}
	verifiable := 0
	for _, term := range verifiabilityTerms {
		verifiable += strings.Count(lowered, term)
	}
	density := float64(verifiable) / float64(len(sentences))
	score := clamp(40+density*40, 0, 85)
	for _, marker := range referenceMarkers {
		if strings.Contains(lowered, marker) {
			score = clamp(score+15, 0, 100)
			break
		}
	}
	return FactualityResult{Score: score, ClaimCount: claims}
}

var biasCategories = map[string][]string{
	"political":  {"left-wing", "right-wing", "radical", "socialist", "fascist", "liberal agenda", "conservative agenda", "extremist"},
	"commercial": {"buy now", "limited offer", "sponsored", "best deal", "exclusive offer", "discount", "must-have"},
	"emotional":  {"shocking", "unbelievable", "outrageous", "devastating", "incredible", "stunning", "horrifying"},
	"absolute":   {"always", "never", "everyone", "nobody", "undoubtedly", "certainly", "completely", "totally", "obviously"},
}

type BiasResult struct {
	Score      float64            `json:"score"`
	Categories map[string]float64 `json:"categories"`
}

// biasScore is inverted density: 100 means no loaded language detected.
func biasScore(text string) BiasResult {
	lowered := strings.ToLower(text)
	words := wordCount(text)
	if words == 0 {
		return BiasResult{Score: 50}
	}
	perCategory := map[string]float64{}
	totalHits := 0
	for category, markers := range biasCategories {
		hits := 0
		for _, m := range markers {
			hits += strings.Count(lowered, m)
		}
		perCategory[category] = float64(hits) / float64(words) * 100
		totalHits += hits
	}
	density := float64(totalHits) / float64(words)
	return BiasResult{
		Score:      clamp(100-density*800, 0, 100),
		Categories: perCategory,
	}
}

var transitionWords = []string{
	"however", "therefore", "moreover", "furthermore", "meanwhile",
	"consequently", "additionally", "nevertheless", "instead", "similarly",
	"in contrast", "as a result", "for example", "in addition",
}

type CoherenceResult struct {
	Score       float64 `json:"score"`
	Structure   float64 `json:"structure"`
	Flow        float64 `json:"flow"`
	Consistency float64 `json:"consistency"`
}

// coherenceScore blends structure (sentences per paragraph near an ideal),
// flow (transition-word density) and consistency (repeated-term ratio
// between halves of the text).
func coherenceScore(text string) CoherenceResult {
	paragraphs := splitParagraphs(text)
	sentences := splitSentences(text)
	if len(paragraphs) == 0 || len(sentences) == 0 {
		return CoherenceResult{Score: 50, Structure: 50, Flow: 50, Consistency: 50}
	}

	perParagraph := float64(len(sentences)) / float64(len(paragraphs))
	structure := 100 - clamp((perParagraph-4)*(perParagraph-4)*4, 0, 60)

	lowered := strings.ToLower(text)
	transitions := 0
	for _, w := range transitionWords {
		transitions += strings.Count(lowered, w)
	}
	flow := clamp(40+float64(transitions)/float64(len(sentences))*240, 0, 100)

	tokens := tokenize(text)
	consistency := 50.0
	if len(tokens) >= 20 {
		half := len(tokens) / 2
		consistency = clamp(jaccard(tokens[:half], tokens[half:])*250, 0, 100)
	}

	return CoherenceResult{
		Score:       clamp(structure*0.4+flow*0.3+consistency*0.3, 0, 100),
		Structure:   clamp(structure, 0, 100),
		Flow:        flow,
		Consistency: consistency,
	}
}
