package services

import "strings"

// Lexical sentiment scoring. Polarity words carry a weight in [-1,1];
// sentence scores are the mean weight of matched words normalized to
// [-1,1]. This is deliberately cheap; the model-assisted path is reserved
// for summaries.

var positiveWords = map[string]float64{
	"good": 0.5, "great": 0.8, "excellent": 1.0, "positive": 0.6,
	"success": 0.7, "successful": 0.7, "win": 0.6, "won": 0.6,
	"breakthrough": 0.9, "improve": 0.6, "improved": 0.6, "improvement": 0.6,
	"growth": 0.5, "gain": 0.5, "strong": 0.4, "best": 0.8, "better": 0.5,
	"progress": 0.6, "benefit": 0.6, "promising": 0.7, "record": 0.4,
	"innovative": 0.7, "thriving": 0.8, "boost": 0.6, "advance": 0.6,
	"hope": 0.5, "hopeful": 0.6, "optimistic": 0.7, "celebrate": 0.8,
	"achievement": 0.8, "remarkable": 0.7, "outstanding": 0.9,
}

var negativeWords = map[string]float64{
	"bad": -0.5, "terrible": -0.9, "awful": -0.9, "negative": -0.6,
	"failure": -0.8, "fail": -0.7, "failed": -0.7, "loss": -0.6,
	"crisis": -0.8, "decline": -0.6, "worse": -0.6, "worst": -0.9,
	"threat": -0.6, "risk": -0.4, "danger": -0.7, "dangerous": -0.7,
	"collapse": -0.9, "crash": -0.8, "drop": -0.4, "concern": -0.4,
	"fear": -0.6, "warning": -0.5, "damage": -0.6, "dead": -0.8,
	"death": -0.8, "killed": -0.9, "disaster": -0.9, "scandal": -0.8,
	"fraud": -0.8, "lawsuit": -0.5, "layoff": -0.7, "recession": -0.8,
	"weak": -0.4, "struggle": -0.5, "problem": -0.4,
}

// emotionCategories back the 8-dimension emotion vector emitted at
// comprehensive depth. Counts per category are normalized to [0,1] against
// the text's emotional-word total.
var emotionCategories = map[string][]string{
	"joy":          {"happy", "joy", "celebrate", "delight", "excited", "thrilled", "cheerful", "pleased"},
	"trust":        {"trust", "reliable", "confidence", "credible", "dependable", "proven", "assure"},
	"fear":         {"fear", "afraid", "terror", "panic", "dread", "scared", "alarming", "threat"},
	"surprise":     {"surprise", "unexpected", "sudden", "shocking", "astonishing", "stunning"},
	"sadness":      {"sad", "grief", "mourning", "tragic", "sorrow", "heartbreaking", "devastating"},
	"disgust":      {"disgust", "revolting", "appalling", "outrageous", "repulsive", "shameful"},
	"anger":        {"anger", "angry", "furious", "outrage", "rage", "hostile", "protest"},
	"anticipation": {"anticipate", "expect", "upcoming", "await", "forthcoming", "imminent", "soon"},
}

func sentimentOfTokens(tokens []string) (polarity float64, matched int) {
	sum := 0.0
	for _, t := range tokens {
		if w, ok := positiveWords[t]; ok {
			sum += w
			matched++
		} else if w, ok := negativeWords[t]; ok {
			sum += w
			matched++
		}
	}
	if matched == 0 {
		return 0, 0
	}
	return clamp(sum/float64(matched), -1, 1), matched
}

// emotionalWordDensity estimates subjectivity as the share of tokens that
// carry any polarity or emotion weight.
func emotionalWordDensity(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	emotional := 0
	for _, t := range tokens {
		if _, ok := positiveWords[t]; ok {
			emotional++
			continue
		}
		if _, ok := negativeWords[t]; ok {
			emotional++
			continue
		}
	}
	return clamp(float64(emotional)/float64(len(tokens))*4, 0, 1)
}

func emotionVector(text string) map[string]float64 {
	lowered := strings.ToLower(text)
	counts := map[string]int{}
	total := 0
	for category, words := range emotionCategories {
		for _, w := range words {
			n := strings.Count(lowered, w)
			counts[category] += n
			total += n
		}
	}
	out := make(map[string]float64, len(emotionCategories))
	for category := range emotionCategories {
		if total == 0 {
			out[category] = 0
			continue
		}
		out[category] = clamp(float64(counts[category])/float64(total), 0, 1)
	}
	return out
}
