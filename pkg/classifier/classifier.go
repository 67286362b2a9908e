package classifier

import "strings"

// Type is an objection category detected in a caller utterance.
type Type string

const (
	Price         Type = "price"
	Timing        Type = "timing"
	Trust         Type = "trust"
	Need          Type = "need"
	Authority     Type = "authority"
	Competitor    Type = "competitor"
	Budget        Type = "budget"
	ThinkAboutIt  Type = "think_about_it"
	NotInterested Type = "not_interested"
)

// AllTypes lists every objection category in a stable order.
var AllTypes = []Type{
	Price, Timing, Trust, Need, Authority,
	Competitor, Budget, ThinkAboutIt, NotInterested,
}

// Language tags accepted on utterances. Mixed-language calls are matched
// against both vocabularies.
const (
	LangEnglish = "en"
	LangHindi   = "hi"
	LangMixed   = "mixed"
)

// Hindi keywords include Latin phonetic transliterations because ASR output
// for code-switched calls frequently romanizes Hindi speech.
var keywords = map[Type]map[string][]string{
	Price: {
		LangEnglish: {"too expensive", "expensive", "costly", "can't afford", "cannot afford", "price is high", "cheaper"},
		LangHindi:   {"महंगा", "बहुत महंगा", "कीमत ज्यादा", "mehenga", "mehnga", "bahut mehenga", "kimat zyada", "sasta"},
	},
	Timing: {
		LangEnglish: {"not now", "later", "next month", "next quarter", "bad time", "call me later", "not the right time"},
		LangHindi:   {"अभी नहीं", "बाद में", "अगले महीने", "abhi nahi", "abhi nahin", "baad mein", "agle mahine"},
	},
	Trust: {
		LangEnglish: {"don't trust", "scam", "fraud", "never heard of", "is this legit", "fake"},
		LangHindi:   {"भरोसा नहीं", "धोखा", "bharosa nahi", "bharosa nahin", "dhokha", "fraud hai"},
	},
	Need: {
		LangEnglish: {"don't need", "no need", "already have", "not necessary", "why do i need"},
		LangHindi:   {"जरूरत नहीं", "पहले से है", "zaroorat nahi", "jarurat nahi", "pehle se hai"},
	},
	Authority: {
		LangEnglish: {"ask my boss", "check with my", "not my decision", "my manager decides", "need approval"},
		LangHindi:   {"बॉस से पूछना", "boss se puchna", "ghar par puchna", "decision mera nahi"},
	},
	Competitor: {
		LangEnglish: {"already using", "competitor", "another vendor", "other company", "switched to"},
		LangHindi:   {"दूसरी कंपनी", "doosri company", "dusri company", "pehle se use kar"},
	},
	Budget: {
		LangEnglish: {"no budget", "budget is tight", "out of budget", "can't spend", "no money"},
		LangHindi:   {"बजट नहीं", "पैसे नहीं", "budget nahi", "paise nahi", "paisa nahi"},
	},
	ThinkAboutIt: {
		LangEnglish: {"think about it", "let me think", "need some time", "get back to you", "i'll consider"},
		LangHindi:   {"सोचना पड़ेगा", "सोच कर बताऊंगा", "sochna padega", "soch kar", "sochke batata"},
	},
	NotInterested: {
		LangEnglish: {"not interested", "no thanks", "stop calling", "don't call", "remove my number"},
		LangHindi:   {"रुचि नहीं", "मत करो कॉल", "interest nahi", "ruchi nahi", "call mat karo"},
	},
}

// Classify returns the set of objection categories whose keywords occur in
// the utterance. Matching is case-insensitive substring; an utterance may
// match zero, one, or several categories. No confidence score is attached.
func Classify(utterance, language string) []Type {
	text := strings.ToLower(utterance)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var matched []Type
	for _, t := range AllTypes {
		if matchesAny(text, keywordsFor(t, language)) {
			matched = append(matched, t)
		}
	}
	return matched
}

func keywordsFor(t Type, language string) []string {
	sets := keywords[t]
	switch language {
	case LangEnglish, LangHindi:
		return sets[language]
	default:
		// mixed or unrecognized tags are matched against both vocabularies
		return append(append([]string{}, sets[LangEnglish]...), sets[LangHindi]...)
	}
}

func matchesAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// Valid reports whether t is a known objection category.
func Valid(t Type) bool {
	_, ok := keywords[t]
	return ok
}
