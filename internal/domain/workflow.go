package domain

import "time"

// WorkflowStep is one planned workstation visit with its estimate
type WorkflowStep struct {
	WorkstationID    string `bson:"workstationId" json:"workstationId"`
	EstimatedMinutes int    `bson:"estimatedMinutes" json:"estimatedMinutes"`
}

// WorkflowOverride is a persisted workflow that replaces the computed stage
// sequence for a (species, technology, needsCoating) combination.
type WorkflowOverride struct {
	WoodSpecies  WoodSpecies    `bson:"woodSpecies" json:"woodSpecies"`
	Technology   Technology     `bson:"technology" json:"technology"`
	NeedsCoating bool           `bson:"needsCoating" json:"needsCoating"`
	Steps        []WorkflowStep `bson:"steps" json:"steps"`
	UpdatedAt    time.Time      `bson:"updatedAt" json:"updatedAt"`
}
