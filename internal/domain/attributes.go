package domain

// WoodSpecies is the closed set of supported wood species
type WoodSpecies string

const (
	SpeciesOak   WoodSpecies = "oak"
	SpeciesAsh   WoodSpecies = "ash"
	SpeciesBeech WoodSpecies = "beech"
	SpeciesPine  WoodSpecies = "pine"
	SpeciesOther WoodSpecies = "other"
)

// IsValid checks if the species is valid
func (s WoodSpecies) IsValid() bool {
	switch s {
	case SpeciesOak, SpeciesAsh, SpeciesBeech, SpeciesPine, SpeciesOther:
		return true
	default:
		return false
	}
}

// Technology is the panel construction technology
type Technology string

const (
	TechnologySolid        Technology = "solid"
	TechnologyFingerJoined Technology = "finger-jointed"
)

// IsValid checks if the technology is valid
func (t Technology) IsValid() bool {
	return t == TechnologySolid || t == TechnologyFingerJoined
}

// WoodClass is the visual grading of the panel faces
type WoodClass string

const (
	ClassAA      WoodClass = "A/A"
	ClassAB      WoodClass = "A/B"
	ClassBB      WoodClass = "B/B"
	ClassRustic  WoodClass = "rustic"
	ClassUnknown WoodClass = "unknown"
)

// ClassRank orders wood classes for priority sorting: A/B before B/B
// before the rest, unknown last
func (c WoodClass) ClassRank() int {
	switch c {
	case ClassAB:
		return 0
	case ClassBB:
		return 1
	case ClassAA:
		return 2
	case ClassRustic:
		return 3
	default:
		return 4
	}
}

// CoatingGloss levels
const (
	GlossMatt     = "matt"
	GlossSemiMatt = "semi-matt"
	GlossGloss    = "gloss"
)

// Dimensions holds analysed panel dimensions in centimetres
type Dimensions struct {
	LengthCM    float64 `bson:"lengthCm" json:"lengthCm"`
	WidthCM     float64 `bson:"widthCm" json:"widthCm"`
	ThicknessCM float64 `bson:"thicknessCm" json:"thicknessCm"`
}

// IsZero reports whether no dimensions were recognised
func (d Dimensions) IsZero() bool {
	return d.LengthCM == 0 && d.WidthCM == 0 && d.ThicknessCM == 0
}

// Attributes is the analysed attribute bundle for one product line
type Attributes struct {
	ProductName    string      `bson:"productName" json:"productName"`
	ProductType    string      `bson:"productType" json:"productType"`
	DimensionsText string      `bson:"dimensionsText" json:"dimensionsText"`
	Dimensions     Dimensions  `bson:"dimensions" json:"dimensions"`
	WoodSpecies    WoodSpecies `bson:"woodSpecies" json:"woodSpecies"`
	Technology     Technology  `bson:"technology" json:"technology"`
	WoodClass      WoodClass   `bson:"woodClass" json:"woodClass"`
	NeedsCoating   bool        `bson:"needsCoating" json:"needsCoating"`
	CoatingType    string      `bson:"coatingType,omitempty" json:"coatingType,omitempty"`
	CoatingColor   string      `bson:"coatingColor,omitempty" json:"coatingColor,omitempty"`
	CoatingGloss   string      `bson:"coatingGloss,omitempty" json:"coatingGloss,omitempty"`
	CoatingNotes   string      `bson:"coatingNotes,omitempty" json:"coatingNotes,omitempty"`
}
