package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelworks/production-engine/internal/domain"
)

type stubOverrideRepo struct {
	override *domain.WorkflowOverride
	err      error
}

func (s *stubOverrideRepo) Find(ctx context.Context, species domain.WoodSpecies, technology domain.Technology, needsCoating bool) (*domain.WorkflowOverride, error) {
	return s.override, s.err
}

func stationIDs(steps []domain.WorkflowStep) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.WorkstationID
	}
	return ids
}

func minutes(steps []domain.WorkflowStep) []int {
	out := make([]int, len(steps))
	for i, s := range steps {
		out[i] = s.EstimatedMinutes
	}
	return out
}

func TestPlan_OakSolidRaw(t *testing.T) {
	p := New(nil, DefaultMultipliers())

	steps, err := p.Plan(context.Background(), domain.Attributes{
		WoodSpecies: domain.SpeciesOak,
		Technology:  domain.TechnologySolid,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		domain.StationCut,
		domain.StationGlue,
		domain.StationTrim,
		domain.StationFinish,
		domain.StationPack,
	}, stationIDs(steps))
	assert.Equal(t, []int{60, 156, 30, 90, 15}, minutes(steps))
	assert.Equal(t, 351, TotalMinutes(steps))
}

func TestPlan_AshFingerJointedCoated(t *testing.T) {
	p := New(nil, DefaultMultipliers())

	steps, err := p.Plan(context.Background(), domain.Attributes{
		WoodSpecies:  domain.SpeciesAsh,
		Technology:   domain.TechnologyFingerJoined,
		NeedsCoating: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		domain.StationCut,
		domain.StationGlue,
		domain.StationTrim,
		domain.StationFinish,
		domain.StationCoat,
		domain.StationPack,
	}, stationIDs(steps))
	assert.Equal(t, []int{45, 90, 30, 60, 120, 15}, minutes(steps))
}

func TestPlan_BeechFactors(t *testing.T) {
	p := New(nil, DefaultMultipliers())

	steps, err := p.Plan(context.Background(), domain.Attributes{
		WoodSpecies: domain.SpeciesBeech,
		Technology:  domain.TechnologyFingerJoined,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{75, 150, 30, 100, 15}, minutes(steps))
}

func TestPlan_UnknownSpeciesUsesBaseTimes(t *testing.T) {
	p := New(nil, DefaultMultipliers())

	steps, err := p.Plan(context.Background(), domain.Attributes{
		WoodSpecies: domain.SpeciesOther,
		Technology:  domain.TechnologyFingerJoined,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{45, 90, 30, 60, 15}, minutes(steps))
}

func TestPlan_OverrideReplacesComputedPlan(t *testing.T) {
	override := &domain.WorkflowOverride{
		WoodSpecies: domain.SpeciesOak,
		Technology:  domain.TechnologySolid,
		Steps: []domain.WorkflowStep{
			{WorkstationID: domain.StationCut, EstimatedMinutes: 10},
			{WorkstationID: domain.StationPack, EstimatedMinutes: 5},
		},
	}
	p := New(&stubOverrideRepo{override: override}, DefaultMultipliers())

	steps, err := p.Plan(context.Background(), domain.Attributes{
		WoodSpecies: domain.SpeciesOak,
		Technology:  domain.TechnologySolid,
	})
	require.NoError(t, err)

	assert.Equal(t, override.Steps, steps)
}

func TestPlan_EmptyOverrideFallsBack(t *testing.T) {
	p := New(&stubOverrideRepo{override: &domain.WorkflowOverride{}}, DefaultMultipliers())

	steps, err := p.Plan(context.Background(), domain.Attributes{
		WoodSpecies: domain.SpeciesOak,
		Technology:  domain.TechnologySolid,
	})
	require.NoError(t, err)
	assert.Equal(t, 351, TotalMinutes(steps))
}

func TestEstimateCompletion_SingleDay(t *testing.T) {
	steps := []domain.WorkflowStep{{WorkstationID: domain.StationCut, EstimatedMinutes: 351}}
	// Wednesday
	from := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

	due := EstimateCompletion(steps, from)

	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), due)
}

func TestEstimateCompletion_SkipsWeekend(t *testing.T) {
	steps := []domain.WorkflowStep{{WorkstationID: domain.StationCut, EstimatedMinutes: 100}}
	// Friday
	from := time.Date(2026, 1, 9, 15, 0, 0, 0, time.UTC)

	due := EstimateCompletion(steps, from)

	assert.Equal(t, time.Weekday(time.Monday), due.Weekday())
	assert.Equal(t, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), due)
}

func TestEstimateCompletion_MultiDay(t *testing.T) {
	// 990 minutes is three working days
	steps := []domain.WorkflowStep{{WorkstationID: domain.StationCut, EstimatedMinutes: 990}}
	// Thursday: Fri + Mon + Tue
	from := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)

	due := EstimateCompletion(steps, from)

	assert.Equal(t, time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC), due)
}

func TestEstimateCompletion_MinimumOneDay(t *testing.T) {
	due := EstimateCompletion(nil, time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), due)
}
