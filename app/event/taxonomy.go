package event

import (
	"sort"
	"strings"

	"github.com/lysyi3m/event-comb/app/textutil"
)

const (
	CategoryConcert    = "concert"
	CategoryConference = "conference"
	CategoryFestival   = "festival"
	CategoryTheatre    = "theatre"
	CategorySports     = "sports"
	CategoryExhibition = "exhibition"
	CategoryOther      = "other"
)

var canonical = map[string]struct{}{
	CategoryConcert: {}, CategoryConference: {}, CategoryFestival: {}, CategoryTheatre: {},
	CategorySports: {}, CategoryExhibition: {}, CategoryOther: {},
}

// Taxonomy maps localized keywords to canonical categories.
type Taxonomy struct {
	keywords []keyword
}

type keyword struct {
	text     string
	category string
	locale   string
}

// NewTaxonomy builds a taxonomy from locale -> keyword -> category. Longer
// keywords are tried first.
func NewTaxonomy(table map[string]map[string]string) *Taxonomy {
	t := &Taxonomy{}
	for locale, words := range table {
		for word, category := range words {
			folded := textutil.Squash(replaceNonLetters(textutil.Fold(word)))
			if folded == "" {
				continue
			}
			t.keywords = append(t.keywords, keyword{text: folded, category: category, locale: locale})
		}
	}
	sort.Slice(t.keywords, func(i, j int) bool {
		a, b := t.keywords[i], t.keywords[j]
		if len(a.text) != len(b.text) {
			return len(a.text) > len(b.text)
		}
		if a.text != b.text {
			return a.text < b.text
		}
		return a.locale < b.locale
	})
	return t
}

// Category resolves a canonical category. A hint that maps wins; otherwise
// the text decides; otherwise "other".
func (t *Taxonomy) Category(hint string, text ...string) string {
	if c := t.lookup(hint); c != "" {
		return c
	}
	for _, s := range text {
		if c := t.lookup(s); c != "" {
			return c
		}
	}
	return CategoryOther
}

func (t *Taxonomy) lookup(s string) string {
	folded := textutil.Fold(s)
	if folded == "" {
		return ""
	}
	if _, ok := canonical[folded]; ok {
		return folded
	}
	padded := " " + replaceNonLetters(folded) + " "
	for _, kw := range t.keywords {
		if strings.Contains(padded, " "+kw.text) {
			return kw.category
		}
	}
	return ""
}

func replaceNonLetters(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '/' || r == ',' || r == '.' || r == '|' || r == ':' || r == '(' || r == ')' {
			return ' '
		}
		return r
	}, s)
}

// DefaultTaxonomy covers English, Czech and German keywords.
func DefaultTaxonomy() *Taxonomy {
	return NewTaxonomy(map[string]map[string]string{
		"en": {
			"concert": CategoryConcert, "gig": CategoryConcert, "live music": CategoryConcert, "recital": CategoryConcert, "tour": CategoryConcert,
			"conference": CategoryConference, "summit": CategoryConference, "meetup": CategoryConference, "workshop": CategoryConference, "symposium": CategoryConference,
			"festival": CategoryFestival, "fest": CategoryFestival,
			"theatre": CategoryTheatre, "theater": CategoryTheatre, "musical": CategoryTheatre, "opera": CategoryTheatre, "ballet": CategoryTheatre, "stand-up": CategoryTheatre, "comedy": CategoryTheatre,
			"match": CategorySports, "race": CategorySports, "marathon": CategorySports, "tournament": CategorySports, "hockey": CategorySports, "football": CategorySports,
			"exhibition": CategoryExhibition, "expo": CategoryExhibition, "gallery": CategoryExhibition, "fair": CategoryExhibition,
		},
		"cs": {
			"koncert": CategoryConcert, "hudba": CategoryConcert,
			"konference": CategoryConference, "seminar": CategoryConference, "prednaska": CategoryConference,
			"festival": CategoryFestival, "slavnosti": CategoryFestival,
			"divadlo": CategoryTheatre, "predstaveni": CategoryTheatre, "muzikal": CategoryTheatre, "opera": CategoryTheatre, "balet": CategoryTheatre,
			"zapas": CategorySports, "zavod": CategorySports, "turnaj": CategorySports, "hokej": CategorySports, "fotbal": CategorySports,
			"vystava": CategoryExhibition, "veletrh": CategoryExhibition, "galerie": CategoryExhibition,
		},
		"de": {
			"konzert": CategoryConcert,
			"konferenz": CategoryConference, "tagung": CategoryConference, "vortrag": CategoryConference,
			"theater": CategoryTheatre, "auffuhrung": CategoryTheatre,
			"spiel": CategorySports, "rennen": CategorySports, "turnier": CategorySports,
			"ausstellung": CategoryExhibition, "messe": CategoryExhibition,
		},
	})
}
