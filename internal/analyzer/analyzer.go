// Package analyzer parses free-form marketplace product titles and order
// comments into the structured attribute bundle production planning needs.
// Titles mix Polish and English tokens; every signal has a documented
// default, so analysis never fails and is fully deterministic.
package analyzer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/panelworks/production-engine/internal/domain"
)

// speciesSynonyms maps each species to its token prefixes, in match
// priority order. First match wins.
var speciesSynonyms = []struct {
	species  domain.WoodSpecies
	prefixes []string
}{
	{domain.SpeciesOak, []string{"oak", "dąb", "dęb", "dab", "deb"}},
	{domain.SpeciesAsh, []string{"ash", "jesion"}},
	{domain.SpeciesBeech, []string{"beech", "buk"}},
	{domain.SpeciesPine, []string{"pine", "sosn"}},
}

var (
	solidTokens = map[string]bool{"solid": true, "lity": true, "lita": true, "lite": true}
	fjTokens    = map[string]bool{"finger-jointed": true, "fingerjoint": true, "mikrowczep": true, "fj": true}
)

var productTypePrefixes = []struct {
	name     string
	prefixes []string
}{
	{"worktop", []string{"blat", "worktop"}},
	{"sill", []string{"parapet", "sill"}},
	{"step", []string{"stopień", "stopien", "spocznik", "step"}},
	{"board", []string{"deska", "desk", "board"}},
	{"panel", []string{"klejonka", "panel"}},
}

var coatingPrefixes = []struct {
	coating  string
	prefixes []string
}{
	{"lacquer", []string{"lakier", "lacquer"}},
	{"oil", []string{"olej", "oil"}},
	{"wax", []string{"wosk", "wax"}},
}

var rawPrefixes = []string{"surow", "raw", "unfinished"}

var colorKeywords = []struct {
	color    string
	prefixes []string
}{
	{"clear", []string{"bezbarwn", "clear", "transparent"}},
	{"white", []string{"biał", "bial", "white"}},
	{"black", []string{"czarn", "black"}},
	{"gray", []string{"szar", "gray", "grey"}},
	{"brown", []string{"brąz", "braz", "brown"}},
	{"natural", []string{"natural"}},
}

var (
	decimalRe    = regexp.MustCompile(`(\d),(\d)`)
	normalizeRe  = regexp.MustCompile(`[^\p{L}\p{N}×x*/.\-\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	classRe      = regexp.MustCompile(`(?i)\b([ab])\s*[/-]\s*([ab])\b`)
	dimsRe       = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*[×x*]\s*(\d+(?:[.,]\d+)?)\s*[×x*]\s*(\d+(?:[.,]\d+)?)\s*(cm|mm)?`)
	labelledRe   = regexp.MustCompile(`(length|długość|dlugosc|width|szerokość|szerokosc|thickness|grubość|grubosc)\s+(\d+(?:[.,]\d+)?)\s*(cm|mm)?`)
	colorAfterRe = regexp.MustCompile(`(?:kolor|color)\s+([\p{L}\d-]+)`)
	codeNoteRe   = regexp.MustCompile(`\b([a-z]{1,4}-\d+(?:/\d+)?)\b`)
	parenNoteRe  = regexp.MustCompile(`\(([^)]+)\)`)
)

// Analyze parses a product title and optional order comments into the
// analysed attribute bundle. Absent signals map to defaults: species other,
// technology finger-jointed, class A/B, no coating.
func Analyze(title, comments string) domain.Attributes {
	rawText := strings.TrimSpace(title + " " + comments)
	text := normalize(rawText)
	tokens := strings.Fields(text)

	attrs := domain.Attributes{
		ProductName: strings.TrimSpace(title),
		ProductType: "panel",
		WoodSpecies: domain.SpeciesOther,
		Technology:  domain.TechnologyFingerJoined,
		WoodClass:   domain.ClassAB,
	}

	attrs.WoodSpecies = detectSpecies(tokens)
	attrs.Technology = detectTechnology(tokens)
	attrs.WoodClass = detectClass(text, tokens)
	attrs.ProductType = detectProductType(tokens)
	attrs.Dimensions, attrs.DimensionsText = detectDimensions(text)
	applyCoating(&attrs, rawText, text, tokens)

	return attrs
}

// normalize lowercases, strips punctuation except ×x*/.- and collapses
// whitespace. Parenthetical notes are extracted before this runs.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = decimalRe.ReplaceAllString(s, "$1.$2")
	s = normalizeRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func detectSpecies(tokens []string) domain.WoodSpecies {
	for _, entry := range speciesSynonyms {
		for _, tok := range tokens {
			for _, prefix := range entry.prefixes {
				if strings.HasPrefix(tok, prefix) {
					return entry.species
				}
			}
		}
	}
	return domain.SpeciesOther
}

// detectTechnology defaults to finger-jointed, the empirically dominant
// technology, when neither synonym set matches.
func detectTechnology(tokens []string) domain.Technology {
	for _, tok := range tokens {
		if solidTokens[tok] {
			return domain.TechnologySolid
		}
	}
	for _, tok := range tokens {
		if fjTokens[tok] || strings.HasPrefix(tok, "mikrowczep") {
			return domain.TechnologyFingerJoined
		}
	}
	return domain.TechnologyFingerJoined
}

func detectClass(text string, tokens []string) domain.WoodClass {
	if m := classRe.FindStringSubmatch(text); m != nil {
		a := strings.ToUpper(m[1])
		b := strings.ToUpper(m[2])
		if a > b {
			a, b = b, a
		}
		switch a + "/" + b {
		case "A/A":
			return domain.ClassAA
		case "A/B":
			return domain.ClassAB
		case "B/B":
			return domain.ClassBB
		}
	}
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "rustic") || strings.HasPrefix(tok, "rustik") || strings.HasPrefix(tok, "rustyk") {
			return domain.ClassRustic
		}
	}
	return domain.ClassAB
}

func detectProductType(tokens []string) string {
	for _, entry := range productTypePrefixes {
		for _, tok := range tokens {
			for _, prefix := range entry.prefixes {
				if strings.HasPrefix(tok, prefix) {
					return entry.name
				}
			}
		}
	}
	return "panel"
}

// detectDimensions tries the L×W×T pattern first (with optional unit),
// then the labelled fallback. Millimetre values are coerced to centimetres.
func detectDimensions(text string) (domain.Dimensions, string) {
	if m := dimsRe.FindStringSubmatch(text); m != nil {
		dims := domain.Dimensions{
			LengthCM:    parseDecimal(m[1]),
			WidthCM:     parseDecimal(m[2]),
			ThicknessCM: parseDecimal(m[3]),
		}
		if m[4] == "mm" {
			dims.LengthCM /= 10
			dims.WidthCM /= 10
			dims.ThicknessCM /= 10
		}
		if dims.LengthCM > 0 && dims.WidthCM > 0 && dims.ThicknessCM > 0 {
			return dims, strings.TrimSpace(m[0])
		}
	}

	var dims domain.Dimensions
	var matched []string
	for _, m := range labelledRe.FindAllStringSubmatch(text, -1) {
		value := parseDecimal(m[2])
		if m[3] == "mm" {
			value /= 10
		}
		switch {
		case strings.HasPrefix(m[1], "length") || strings.HasPrefix(m[1], "dł") || strings.HasPrefix(m[1], "dlug"):
			dims.LengthCM = value
		case strings.HasPrefix(m[1], "width") || strings.HasPrefix(m[1], "szer"):
			dims.WidthCM = value
		default:
			dims.ThicknessCM = value
		}
		matched = append(matched, strings.TrimSpace(m[0]))
	}
	if !dims.IsZero() {
		return dims, strings.Join(matched, " ")
	}

	return domain.Dimensions{}, ""
}

// applyCoating resolves the finishing signals. An explicit raw marker wins
// over everything; otherwise the first coating keyword sets needs_coating.
func applyCoating(attrs *domain.Attributes, rawText, text string, tokens []string) {
	for _, tok := range tokens {
		for _, prefix := range rawPrefixes {
			if strings.HasPrefix(tok, prefix) {
				attrs.NeedsCoating = false
				return
			}
		}
	}

	for _, entry := range coatingPrefixes {
		for _, tok := range tokens {
			for _, prefix := range entry.prefixes {
				if strings.HasPrefix(tok, prefix) {
					attrs.NeedsCoating = true
					attrs.CoatingType = entry.coating
				}
			}
			if attrs.CoatingType != "" {
				break
			}
		}
		if attrs.CoatingType != "" {
			break
		}
	}

	if !attrs.NeedsCoating {
		return
	}

	attrs.CoatingColor = detectColor(text, tokens)
	attrs.CoatingGloss = detectGloss(tokens)
	attrs.CoatingNotes = detectNotes(rawText, text)
}

func detectColor(text string, tokens []string) string {
	for _, entry := range colorKeywords {
		for _, tok := range tokens {
			for _, prefix := range entry.prefixes {
				if strings.HasPrefix(tok, prefix) {
					return entry.color
				}
			}
		}
	}
	if m := colorAfterRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func detectGloss(tokens []string) string {
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "półmat") || strings.HasPrefix(tok, "polmat") || strings.HasPrefix(tok, "semi-mat") || tok == "semimat" {
			return domain.GlossSemiMatt
		}
	}
	for _, tok := range tokens {
		if tok == "mat" || tok == "matt" || strings.HasPrefix(tok, "matow") {
			return domain.GlossMatt
		}
	}
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "połysk") || strings.HasPrefix(tok, "polysk") || tok == "gloss" || strings.HasPrefix(tok, "glossy") {
			return domain.GlossGloss
		}
	}
	return domain.GlossSemiMatt
}

// detectNotes collects parenthetical remarks and coded references like
// BN-125/09 from the original (pre-normalization) text.
func detectNotes(rawText, text string) string {
	var notes []string
	for _, m := range parenNoteRe.FindAllStringSubmatch(rawText, -1) {
		notes = append(notes, strings.TrimSpace(m[1]))
	}
	for _, m := range codeNoteRe.FindAllStringSubmatch(text, -1) {
		notes = append(notes, strings.ToUpper(m[1]))
	}
	return strings.Join(notes, "; ")
}

func parseDecimal(s string) float64 {
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}
