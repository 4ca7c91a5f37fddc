package normalizer

import "strings"

// irregular holds noun forms the suffix rules would get wrong.
var irregular = map[string]string{
	"men": "man", "women": "woman", "children": "child", "people": "people",
	"feet": "foot", "teeth": "tooth", "mice": "mouse", "geese": "goose",
	"oxen": "ox", "data": "datum", "criteria": "criterion",
	"phenomena": "phenomenon", "wolves": "wolf", "knives": "knife",
	"lives": "life", "wives": "wife", "leaves": "leaf", "halves": "half",
	"shelves": "shelf", "thieves": "thief", "loaves": "loaf", "calves": "calf",
	"series": "series", "species": "species", "news": "news", "means": "means",
	"always": "always", "perhaps": "perhaps", "sometimes": "sometimes",
	"whereas": "whereas", "towards": "towards", "afterwards": "afterwards",
	"besides": "besides", "unless": "unless", "headaches": "headache",
	"niches": "niche", "caches": "cache",
}

// lemmaRules are tried in order; the first matching suffix whose result is
// at least minLen long wins. A rule whose replacement equals its suffix
// protects the word from the rules below it.
var lemmaRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ss", "ss", 0},
	{"us", "us", 0},
	{"is", "is", 0},
	{"sses", "ss", 3},
	{"ches", "ch", 3},
	{"shes", "sh", 3},
	{"xes", "x", 2},
	{"zes", "z", 3},
	{"ies", "y", 3},
	{"s", "", 3},
}

// Lemmatize reduces a lower-case plural noun to its singular form. Words that
// are not recognisably plural are returned unchanged.
func Lemmatize(word string) string {
	if lemma, ok := irregular[word]; ok {
		return lemma
	}
	if len(word) <= 3 {
		return word
	}
	for _, rule := range lemmaRules {
		if !strings.HasSuffix(word, rule.suffix) {
			continue
		}
		if rule.suffix == rule.replacement {
			return word
		}
		lemma := word[:len(word)-len(rule.suffix)] + rule.replacement
		if len(lemma) >= rule.minLen {
			return lemma
		}
	}
	return word
}
