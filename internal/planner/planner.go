// Package planner derives the ordered workstation sequence and per-stage
// time estimates for an analysed product.
package planner

import (
	"context"
	"math"
	"time"

	"github.com/panelworks/production-engine/internal/domain"
)

// Base per-stage minutes for a standard panel
const (
	BaseCutMinutes    = 45
	BaseGlueMinutes   = 90
	BaseTrimMinutes   = 30
	BaseFinishMinutes = 60
	BaseCoatMinutes   = 120
	BasePackMinutes   = 15
)

// WorkdayMinutes is one working day of shop-floor capacity
const WorkdayMinutes = 480

// StageFactors are the species multipliers for the time-dominant stages
type StageFactors struct {
	Cut    float64 `yaml:"cut"`
	Glue   float64 `yaml:"glue"`
	Finish float64 `yaml:"finish"`
}

// Multipliers configures species and technology workload factors
type Multipliers struct {
	Species         map[domain.WoodSpecies]StageFactors `yaml:"species"`
	SolidGlueFactor float64                             `yaml:"solidGlueFactor"`
}

// DefaultMultipliers returns the standard factors. Oak cuts and glues a
// third slower and finishes half slower; beech runs two thirds slower on
// all three; solid construction adds 30% to gluing.
func DefaultMultipliers() Multipliers {
	return Multipliers{
		Species: map[domain.WoodSpecies]StageFactors{
			domain.SpeciesOak:   {Cut: 4.0 / 3.0, Glue: 4.0 / 3.0, Finish: 1.5},
			domain.SpeciesBeech: {Cut: 5.0 / 3.0, Glue: 5.0 / 3.0, Finish: 5.0 / 3.0},
		},
		SolidGlueFactor: 1.3,
	}
}

// Planner computes production workflows. A persisted workflow override for
// (species, technology, needsCoating) replaces the computed plan entirely.
type Planner struct {
	overrides   domain.WorkflowOverrideRepository
	multipliers Multipliers
}

// New creates a Planner. overrides may be nil when no override store is wired.
func New(overrides domain.WorkflowOverrideRepository, multipliers Multipliers) *Planner {
	if multipliers.SolidGlueFactor == 0 {
		multipliers.SolidGlueFactor = 1.3
	}
	return &Planner{
		overrides:   overrides,
		multipliers: multipliers,
	}
}

// Plan returns the ordered workflow steps for the analysed attributes.
// Pack is always last; Coat is present only when the product needs coating.
func (p *Planner) Plan(ctx context.Context, attrs domain.Attributes) ([]domain.WorkflowStep, error) {
	if p.overrides != nil {
		override, err := p.overrides.Find(ctx, attrs.WoodSpecies, attrs.Technology, attrs.NeedsCoating)
		if err != nil {
			return nil, err
		}
		if override != nil && len(override.Steps) > 0 {
			steps := make([]domain.WorkflowStep, len(override.Steps))
			copy(steps, override.Steps)
			return steps, nil
		}
	}

	return p.compute(attrs), nil
}

func (p *Planner) compute(attrs domain.Attributes) []domain.WorkflowStep {
	factors := p.multipliers.Species[attrs.WoodSpecies]
	if factors.Cut == 0 {
		factors.Cut = 1
	}
	if factors.Glue == 0 {
		factors.Glue = 1
	}
	if factors.Finish == 0 {
		factors.Finish = 1
	}

	glueFactor := factors.Glue
	if attrs.Technology == domain.TechnologySolid {
		glueFactor *= p.multipliers.SolidGlueFactor
	}

	steps := []domain.WorkflowStep{
		{WorkstationID: domain.StationCut, EstimatedMinutes: scale(BaseCutMinutes, factors.Cut)},
		{WorkstationID: domain.StationGlue, EstimatedMinutes: scale(BaseGlueMinutes, glueFactor)},
		{WorkstationID: domain.StationTrim, EstimatedMinutes: BaseTrimMinutes},
		{WorkstationID: domain.StationFinish, EstimatedMinutes: scale(BaseFinishMinutes, factors.Finish)},
	}
	if attrs.NeedsCoating {
		steps = append(steps, domain.WorkflowStep{WorkstationID: domain.StationCoat, EstimatedMinutes: BaseCoatMinutes})
	}
	steps = append(steps, domain.WorkflowStep{WorkstationID: domain.StationPack, EstimatedMinutes: BasePackMinutes})

	return steps
}

// TotalMinutes sums the per-stage estimates
func TotalMinutes(steps []domain.WorkflowStep) int {
	total := 0
	for _, s := range steps {
		total += s.EstimatedMinutes
	}
	return total
}

// EstimateCompletion returns from's date plus one working day per started
// 480 minutes of workload, skipping Saturdays and Sundays.
func EstimateCompletion(steps []domain.WorkflowStep, from time.Time) time.Time {
	days := (TotalMinutes(steps) + WorkdayMinutes - 1) / WorkdayMinutes
	if days < 1 {
		days = 1
	}

	date := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		date = date.AddDate(0, 0, 1)
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}
	}
	return date
}

func scale(base int, factor float64) int {
	return int(math.Round(float64(base) * factor))
}
