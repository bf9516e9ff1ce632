package structurer

import (
	"strings"

	"github.com/hrdataworks/talentdb/pkg/textx"
)

// Canonical proficiency levels.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelExpert       = "expert"
	LevelMaster       = "master"
)

// levelAliases maps folded Greek and English level terms onto the canonical
// five-point scale.
var levelAliases = map[string]string{
	"beginner": LevelBeginner, "basic": LevelBeginner, "novice": LevelBeginner,
	"elementary": LevelBeginner, "βασικο": LevelBeginner, "βασικες γνωσεις": LevelBeginner,
	"αρχαριος": LevelBeginner, "στοιχειωδες": LevelBeginner,

	"intermediate": LevelIntermediate, "medium": LevelIntermediate, "moderate": LevelIntermediate,
	"good": LevelIntermediate, "μετριο": LevelIntermediate, "καλο": LevelIntermediate,
	"μεσαιο": LevelIntermediate,

	"advanced": LevelAdvanced, "very good": LevelAdvanced, "proficient": LevelAdvanced,
	"πολυ καλο": LevelAdvanced, "προχωρημενο": LevelAdvanced, "προχωρημενος": LevelAdvanced,

	"expert": LevelExpert, "excellent": LevelExpert, "αριστο": LevelExpert,
	"αριστη": LevelExpert, "εξπερ": LevelExpert,

	"master": LevelMaster, "guru": LevelMaster,
}

// NormalizeLevel maps a free-text proficiency onto the canonical scale.
// Unknown levels fall back to intermediate rather than dropping the item.
func NormalizeLevel(raw string) string {
	key := textx.NormalizeKey(raw)
	if key == "" {
		return ""
	}
	if lvl, ok := levelAliases[key]; ok {
		return lvl
	}
	return LevelIntermediate
}

// cefrAliases maps non-CEFR language descriptions onto CEFR codes.
var cefrAliases = map[string]string{
	"native": "native", "mother tongue": "native", "μητρικη": "native",
	"μητρικη γλωσσα": "native", "native speaker": "native",

	"fluent": "C2", "αψογα": "C2", "απταιστα": "C2", "proficiency": "C2",
	"αριστα": "C2",

	"advanced": "C1", "πολυ καλα": "C1",

	"upper intermediate": "B2", "good": "B2", "καλα": "B2", "lower": "B1",
	"intermediate": "B1", "μετρια": "B1",

	"elementary": "A2", "basic": "A2", "βασικα": "A2", "βασικες γνωσεις": "A2",
	"beginner": "A1",
}

// NormalizeCEFR maps a language level onto A1..C2 or "native".
func NormalizeCEFR(raw string) string {
	key := textx.NormalizeKey(raw)
	if key == "" {
		return ""
	}
	up := strings.ToUpper(key)
	switch up {
	case "A1", "A2", "B1", "B2", "C1", "C2":
		return up
	}
	if lvl, ok := cefrAliases[key]; ok {
		return lvl
	}
	// Certificates commonly stand in for levels on Greek CVs.
	switch {
	case strings.Contains(key, "proficiency"), strings.Contains(key, "c2"):
		return "C2"
	case strings.Contains(key, "advanced"), strings.Contains(key, "c1"):
		return "C1"
	case strings.Contains(key, "lower"), strings.Contains(key, "b2"), strings.Contains(key, "first certificate"):
		return "B2"
	}
	return "B1"
}

// Canonical education levels, matching the vocabulary the SQL generator
// resolves education filters against.
const (
	EducationSecondary  = "secondary"
	EducationVocational = "vocational"
	EducationBachelor   = "bachelor"
	EducationMaster     = "master"
	EducationDoctorate  = "doctorate"
)

// educationKeywords pairs folded Greek and English degree vocabulary with
// canonical levels. Ordered highest level first so that compound degree
// titles ("Μεταπτυχιακό ... Πτυχίο ...") resolve to the strongest match.
var educationKeywords = []struct {
	keyword string
	level   string
}{
	{"διδακτορικ", EducationDoctorate},
	{"doctorate", EducationDoctorate},
	{"doctoral", EducationDoctorate},
	{"phd", EducationDoctorate},
	{"μεταπτυχιακ", EducationMaster},
	{"master", EducationMaster},
	{"postgraduate", EducationMaster},
	{"msc", EducationMaster},
	{"mba", EducationMaster},
	{"πτυχι", EducationBachelor},
	{"bachelor", EducationBachelor},
	{"bsc", EducationBachelor},
	{"beng", EducationBachelor},
	{"πανεπιστημι", EducationBachelor},
	{"τει", EducationBachelor},
	{"αει", EducationBachelor},
	{"university", EducationBachelor},
	{"ιεκ", EducationVocational},
	{"επαλ", EducationVocational},
	{"τεχνικ", EducationVocational},
	{"επαγγελματικ", EducationVocational},
	{"vocational", EducationVocational},
	{"λυκει", EducationSecondary},
	{"γυμνασι", EducationSecondary},
	{"απολυτηρι", EducationSecondary},
	{"secondary", EducationSecondary},
	{"high school", EducationSecondary},
}

// normalizeEducationLevel maps a reported level onto the canonical ladder,
// consulting the degree title when the level field is empty or unrecognized.
// Unmapped entries keep an empty level.
func normalizeEducationLevel(level, degree string) string {
	for _, raw := range []string{level, degree} {
		key := textx.NormalizeKey(raw)
		if key == "" {
			continue
		}
		for _, kw := range educationKeywords {
			if strings.Contains(key, kw.keyword) {
				return kw.level
			}
		}
	}
	return ""
}

// languageISO maps folded language names (Greek and English spellings) onto
// ISO 639-1 codes.
var languageISO = map[string]string{
	"greek": "el", "ελληνικα": "el", "ελληνικη": "el",
	"english": "en", "αγγλικα": "en", "αγγλικη": "en",
	"german": "de", "γερμανικα": "de",
	"french": "fr", "γαλλικα": "fr",
	"italian": "it", "ιταλικα": "it",
	"spanish": "es", "ισπανικα": "es",
	"russian": "ru", "ρωσικα": "ru", "ρωσσικα": "ru",
	"albanian": "sq", "αλβανικα": "sq",
	"bulgarian": "bg", "βουλγαρικα": "bg",
	"romanian": "ro", "ρουμανικα": "ro",
	"turkish": "tr", "τουρκικα": "tr",
	"arabic": "ar", "αραβικα": "ar",
	"chinese": "zh", "κινεζικα": "zh",
	"dutch": "nl", "ολλανδικα": "nl",
	"portuguese": "pt", "πορτογαλικα": "pt",
	"polish": "pl", "πολωνικα": "pl",
	"serbian": "sr", "σερβικα": "sr",
	"ukrainian": "uk", "ουκρανικα": "uk",
}

// LanguageISO returns the ISO 639-1 code for a language name, or "" when the
// language is not in the table.
func LanguageISO(name string) string {
	return languageISO[textx.NormalizeKey(name)]
}
