package dates

import "time"

// MonthTable maps month names of one locale, including abbreviated and
// inflected forms, to calendar months. Names are folded before lookup.
type MonthTable struct {
	Locale string
	Names  map[string]time.Month
}

// DefaultTables returns the bundled English, Czech and German tables.
func DefaultTables() []MonthTable {
	return []MonthTable{English, Czech, German}
}

var English = MonthTable{
	Locale: "en",
	Names: map[string]time.Month{
		"january": time.January, "jan": time.January,
		"february": time.February, "feb": time.February,
		"march": time.March, "mar": time.March,
		"april": time.April, "apr": time.April,
		"may":  time.May,
		"june": time.June, "jun": time.June,
		"july": time.July, "jul": time.July,
		"august": time.August, "aug": time.August,
		"september": time.September, "sep": time.September, "sept": time.September,
		"october": time.October, "oct": time.October,
		"november": time.November, "nov": time.November,
		"december": time.December, "dec": time.December,
	},
}

var Czech = MonthTable{
	Locale: "cs",
	Names: map[string]time.Month{
		"leden": time.January, "ledna": time.January, "led": time.January,
		"unor": time.February, "unora": time.February, "uno": time.February,
		"brezen": time.March, "brezna": time.March, "bre": time.March,
		"duben": time.April, "dubna": time.April, "dub": time.April,
		"kveten": time.May, "kvetna": time.May, "kve": time.May,
		"cerven": time.June, "cervna": time.June, "cvn": time.June,
		"cervenec": time.July, "cervence": time.July, "cvc": time.July,
		"srpen": time.August, "srpna": time.August, "srp": time.August,
		"zari": time.September, "zar": time.September,
		"rijen": time.October, "rijna": time.October, "rij": time.October,
		"listopad": time.November, "listopadu": time.November, "lis": time.November,
		"prosinec": time.December, "prosince": time.December, "pro": time.December,
	},
}

var German = MonthTable{
	Locale: "de",
	Names: map[string]time.Month{
		"januar": time.January, "janner": time.January,
		"februar": time.February,
		"marz": time.March, "maerz": time.March,
		"mai":  time.May,
		"juni": time.June,
		"juli": time.July,
		"oktober": time.October, "okt": time.October,
		"dezember": time.December, "dez": time.December,
	},
}
