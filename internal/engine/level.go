package engine

import "fmt"

// Level is one opponent strength setting.
type Level struct {
	Number         int
	SkillLevel     int
	MoveTimeMillis int
	DepthCap       int
	MultiPV        int
	// PrimaryChoices is how many top engine lines the humanizer picks from.
	PrimaryChoices   int
	CandidateWeights []float64
	EvalNoise        int
}

var levels = []Level{
	{Number: 1, SkillLevel: 0, MoveTimeMillis: 150, DepthCap: 4, MultiPV: 4, PrimaryChoices: 4, CandidateWeights: []float64{0.4, 0.25, 0.2, 0.15}, EvalNoise: 120},
	{Number: 2, SkillLevel: 2, MoveTimeMillis: 250, DepthCap: 6, MultiPV: 4, PrimaryChoices: 4, CandidateWeights: []float64{0.5, 0.25, 0.15, 0.1}, EvalNoise: 90},
	{Number: 3, SkillLevel: 5, MoveTimeMillis: 500, MultiPV: 3, PrimaryChoices: 3, CandidateWeights: []float64{0.6, 0.25, 0.15}, EvalNoise: 60},
	{Number: 4, SkillLevel: 8, MoveTimeMillis: 800, MultiPV: 3, PrimaryChoices: 3, CandidateWeights: []float64{0.7, 0.2, 0.1}, EvalNoise: 40},
	{Number: 5, SkillLevel: 11, MoveTimeMillis: 1200, MultiPV: 2, PrimaryChoices: 2, CandidateWeights: []float64{0.8, 0.2}, EvalNoise: 25},
	{Number: 6, SkillLevel: 14, MoveTimeMillis: 1600, MultiPV: 2, PrimaryChoices: 2, CandidateWeights: []float64{0.9, 0.1}, EvalNoise: 10},
	{Number: 7, SkillLevel: 17, MoveTimeMillis: 2000, MultiPV: 1, PrimaryChoices: 1, CandidateWeights: []float64{1}},
	{Number: 8, SkillLevel: 20, MoveTimeMillis: 3000, MultiPV: 1, PrimaryChoices: 1, CandidateWeights: []float64{1}},
}

// LevelFor returns the level numbered n (1..8).
func LevelFor(n int) (Level, error) {
	if n < 1 || n > len(levels) {
		return Level{}, fmt.Errorf("engine level %d out of range 1-%d", n, len(levels))
	}
	return levels[n-1], nil
}

// Validate mirrors the constraints the UCI session and the humanizer rely on.
func (l Level) Validate() error {
	switch {
	case l.SkillLevel < 0 || l.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", l.SkillLevel)
	case l.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", l.MultiPV)
	case l.PrimaryChoices <= 0 || l.PrimaryChoices > l.MultiPV:
		return fmt.Errorf("primary choices %d must be within 1-%d", l.PrimaryChoices, l.MultiPV)
	case len(l.CandidateWeights) < l.PrimaryChoices:
		return fmt.Errorf("candidate weights (%d) must cover primary choices (%d)", len(l.CandidateWeights), l.PrimaryChoices)
	case l.MoveTimeMillis <= 0 && l.DepthCap <= 0:
		return fmt.Errorf("level %d defines no search limit", l.Number)
	case l.EvalNoise < 0:
		return fmt.Errorf("eval noise must be >= 0: %d", l.EvalNoise)
	}
	sum := 0.0
	for i := 0; i < l.PrimaryChoices; i++ {
		if l.CandidateWeights[i] < 0 {
			return fmt.Errorf("candidate weight at index %d is negative", i)
		}
		sum += l.CandidateWeights[i]
	}
	if sum == 0 {
		return fmt.Errorf("candidate weights sum to zero")
	}
	return nil
}
