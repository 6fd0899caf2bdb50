package services

// CategoryVocabulary is the fixed label set. Every categorization result,
// whichever method produced it, maps into this vocabulary; "general" is the
// low-confidence fallback.
var CategoryVocabulary = []string{
	"technology",
	"business",
	"science",
	"health",
	"politics",
	"sports",
	"entertainment",
	"environment",
	"education",
	"world",
	"general",
}

const CategoryGeneral = "general"

// fallbackConfidence is assigned when no method clears the configured
// minimum and we fall back to the existing or general category.
const fallbackConfidence = 0.5

func isKnownCategory(c string) bool {
	for _, v := range CategoryVocabulary {
		if v == c {
			return true
		}
	}
	return false
}

type keywordRule struct {
	keyword string
	weight  float64
}

// categoryRules drive the keyword method: score(category) = sum of matched
// rule weights. Multi-word keywords match as substrings of the lowercased
// text; single words match whole tokens.
var categoryRules = map[string][]keywordRule{
	"technology": {
		{"software", 2}, {"hardware", 2}, {"startup", 2}, {"artificial intelligence", 3},
		{"machine learning", 3}, {"algorithm", 2}, {"programming", 2}, {"cybersecurity", 3},
		{"blockchain", 3}, {"cloud computing", 3}, {"semiconductor", 3}, {"smartphone", 2},
		{"internet", 1}, {"robot", 2}, {"data center", 2}, {"open source", 2}, {"app", 1},
		{"chip", 1}, {"tech", 1}, {"digital", 1}, {"quantum computing", 3},
	},
	"business": {
		{"market", 1}, {"stock", 2}, {"revenue", 2}, {"earnings", 2}, {"investor", 2},
		{"merger", 3}, {"acquisition", 3}, {"ipo", 3}, {"startup funding", 3},
		{"quarterly", 2}, {"profit", 2}, {"economy", 2}, {"inflation", 2},
		{"interest rate", 3}, {"ceo", 1}, {"shareholder", 2}, {"venture capital", 3},
		{"trade", 1}, {"banking", 2}, {"cryptocurrency", 2},
	},
	"science": {
		{"research", 1}, {"study finds", 2}, {"experiment", 2}, {"physics", 3},
		{"chemistry", 3}, {"biology", 3}, {"astronomy", 3}, {"telescope", 3},
		{"genome", 3}, {"particle", 2}, {"laboratory", 2}, {"peer-reviewed", 3},
		{"hypothesis", 2}, {"nasa", 2}, {"spacecraft", 3}, {"quantum", 2},
		{"fossil", 2}, {"evolution", 2}, {"neuroscience", 3},
	},
	"health": {
		{"patient", 2}, {"vaccine", 3}, {"clinical trial", 3}, {"disease", 2},
		{"treatment", 2}, {"hospital", 2}, {"medical", 2}, {"cancer", 2},
		{"drug", 1}, {"fda", 2}, {"mental health", 3}, {"epidemic", 3},
		{"diagnosis", 2}, {"surgery", 2}, {"nutrition", 2}, {"therapy", 2},
		{"public health", 3}, {"virus", 2},
	},
	"politics": {
		{"election", 3}, {"senate", 3}, {"congress", 3}, {"parliament", 3},
		{"legislation", 3}, {"president", 2}, {"policy", 1}, {"campaign", 2},
		{"vote", 2}, {"government", 1}, {"democrat", 3}, {"republican", 3},
		{"minister", 2}, {"bill", 1}, {"supreme court", 3}, {"diplomacy", 2},
		{"sanctions", 2}, {"referendum", 3},
	},
	"sports": {
		{"championship", 3}, {"tournament", 3}, {"playoff", 3}, {"league", 2},
		{"season", 1}, {"coach", 2}, {"quarterback", 3}, {"goal", 1},
		{"olympic", 3}, {"world cup", 3}, {"stadium", 2}, {"athlete", 2},
		{"football", 2}, {"basketball", 3}, {"baseball", 3}, {"soccer", 2},
		{"tennis", 3}, {"match", 1}, {"score", 1},
	},
	"entertainment": {
		{"movie", 2}, {"film", 2}, {"album", 2}, {"box office", 3},
		{"celebrity", 3}, {"streaming", 2}, {"netflix", 2}, {"concert", 2},
		{"award", 1}, {"oscar", 3}, {"grammy", 3}, {"television", 2},
		{"actor", 2}, {"actress", 2}, {"director", 1}, {"premiere", 2},
		{"music", 1}, {"hollywood", 3},
	},
	"environment": {
		{"climate change", 3}, {"emissions", 3}, {"carbon", 2}, {"renewable", 3},
		{"solar", 2}, {"wind power", 3}, {"wildlife", 2}, {"conservation", 3},
		{"pollution", 3}, {"deforestation", 3}, {"sustainability", 3},
		{"global warming", 3}, {"ecosystem", 2}, {"biodiversity", 3},
		{"drought", 2}, {"wildfire", 2},
	},
	"education": {
		{"school", 2}, {"university", 2}, {"student", 2}, {"teacher", 2},
		{"curriculum", 3}, {"tuition", 3}, {"scholarship", 3}, {"classroom", 3},
		{"college", 2}, {"degree", 1}, {"literacy", 3}, {"enrollment", 3},
		{"academic", 2}, {"graduation", 2},
	},
	"world": {
		{"united nations", 3}, {"international", 1}, {"border", 2}, {"refugee", 3},
		{"treaty", 3}, {"embassy", 3}, {"foreign", 1}, {"conflict", 2},
		{"humanitarian", 3}, {"ceasefire", 3}, {"summit", 2}, {"nato", 3},
		{"migration", 2},
	},
}

// strongSignalTerms push auto-selection toward the keyword method: their
// presence means the rules will resolve the category cheaply and reliably.
var strongSignalTerms = []string{
	"election", "vaccine", "championship", "box office", "climate change",
	"earnings", "machine learning", "clinical trial", "supreme court",
	"world cup", "cybersecurity", "quarterly",
}
