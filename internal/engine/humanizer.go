package engine

import (
	"errors"
	"math"
	"math/rand"
)

type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

// SelectCandidate picks one of the top engine lines by the level's weights so
// weaker levels do not always play the best move.
func SelectCandidate(l Level, candidates []Candidate, r *rand.Rand) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, errors.New("no candidates to choose from")
	}
	if err := l.Validate(); err != nil {
		return Candidate{}, err
	}

	limit := min(l.PrimaryChoices, len(candidates))
	total := 0.0
	for i := 0; i < limit; i++ {
		total += l.CandidateWeights[i]
	}
	if total == 0 {
		return Candidate{}, errors.New("candidate weights sum to zero")
	}

	threshold := r.Float64() * total
	index := 0
	for i := 0; i < limit; i++ {
		threshold -= l.CandidateWeights[i]
		if threshold <= 0 {
			index = i
			break
		}
	}

	choice := candidates[index]
	if l.EvalNoise > 0 {
		offset := r.Intn(2*l.EvalNoise+1) - l.EvalNoise
		choice.EvalCP = saturatingAdd(choice.EvalCP, offset)
	}
	return choice, nil
}

func saturatingAdd(a, b int) int {
	sum := int64(a) + int64(b)
	if sum > math.MaxInt {
		return math.MaxInt
	}
	if sum < math.MinInt {
		return math.MinInt
	}
	return int(sum)
}
