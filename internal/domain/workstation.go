package domain

// Canonical workstation ids. These are catalogue data seeded at install;
// nothing mutates workstations at runtime.
const (
	StationCut    = "cut"
	StationGlue   = "glue"
	StationTrim   = "trim"
	StationFinish = "finish"
	StationCoat   = "coat"
	StationPack   = "pack"
)

// Workstation is an immutable catalogue entry. Deactivation hides the
// station from new workflows but preserves historical stage records.
type Workstation struct {
	StationID     string `bson:"stationId" json:"stationId"`
	Name          string `bson:"name" json:"name"`
	SequenceOrder int    `bson:"sequenceOrder" json:"sequenceOrder"`
	TabletID      string `bson:"tabletId,omitempty" json:"tabletId,omitempty"`
	Active        bool   `bson:"active" json:"active"`
}

// CanonicalWorkstations returns the install-time workstation catalogue
func CanonicalWorkstations() []Workstation {
	return []Workstation{
		{StationID: StationCut, Name: "Cut", SequenceOrder: 1, Active: true},
		{StationID: StationGlue, Name: "Glue", SequenceOrder: 2, Active: true},
		{StationID: StationTrim, Name: "Trim", SequenceOrder: 3, Active: true},
		{StationID: StationFinish, Name: "Finish", SequenceOrder: 4, Active: true},
		{StationID: StationCoat, Name: "Coat", SequenceOrder: 5, Active: true},
		{StationID: StationPack, Name: "Pack", SequenceOrder: 6, Active: true},
	}
}
