package ensemble

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pu"
)

const (
	// MinImbalanceRatio is the exclusive lower bound of the target ratio.
	MinImbalanceRatio = 0.1
	// MaxImbalanceRatio is the inclusive upper bound of the target ratio.
	MaxImbalanceRatio = 1.0
)

// ValidateRatio rejects ratios outside (0.1, 1.0].
func ValidateRatio(ratio float64) error {
	if math.IsNaN(ratio) || ratio <= MinImbalanceRatio || ratio > MaxImbalanceRatio {
		return errors.NewValidationError("target_imbalance_ratio", "must satisfy 0.1 < ratio <= 1.0", ratio)
	}
	return nil
}

// TreeSource returns the random stream of one ensemble member. Each tree
// index gets its own PCG state, so trees never share or collide on a stream
// and the mapping does not depend on scheduling order.
func TreeSource(seed uint64, treeIndex int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(treeIndex)))
}

// SamplePlan is the bootstrap of one tree: the minority group in full plus a
// draw without replacement from the majority group form a pool, and the
// pool is resampled with replacement to its own size.
type SamplePlan struct {
	Minority pu.Label
	Majority pu.Label

	MinorityCount     int
	MajorityAvailable int
	MajorityRequested int // floor(MinorityCount / Ratio)
	MajorityDrawn     int // min(MajorityRequested, MajorityAvailable)
	Ratio             float64

	pool    []int
	indices []int
}

// Plan builds a SamplePlan for labels with the given target ratio, consuming
// randomness only from rng.
//
// Groups are visited in pu.GroupOrder. The minority is the first group with
// the fewest rows and the majority the first of the remaining groups with
// the most rows; when only one label is present the majority draw is empty. A ratio that asks for more
// majority rows than exist is capped at the available count.
func Plan(labels pu.Labels, ratio float64, rng *rand.Rand) (*SamplePlan, error) {
	if err := ValidateRatio(ratio); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	if rng == nil {
		return nil, errors.NewValueError("ensemble.Plan", "nil random source")
	}

	groups := labels.Groups()
	minority, majority, ok := pickGroups(groups)
	if !ok {
		return nil, errors.NewValidationError("labels", "must contain only 1, 0 or -1", labels)
	}

	p := &SamplePlan{
		Minority:      minority,
		Majority:      majority,
		MinorityCount: len(groups[minority]),
		Ratio:         ratio,
	}
	p.MajorityRequested = int(math.Floor(float64(p.MinorityCount) / ratio))

	var drawn []int
	if majority != minority {
		available := groups[majority]
		p.MajorityAvailable = len(available)
		p.MajorityDrawn = min(p.MajorityRequested, p.MajorityAvailable)
		drawn = sampleWithoutReplacement(available, p.MajorityDrawn, rng)
	}

	p.pool = make([]int, 0, p.MinorityCount+len(drawn))
	p.pool = append(p.pool, groups[minority]...)
	p.pool = append(p.pool, drawn...)

	p.indices = make([]int, len(p.pool))
	for i := range p.indices {
		p.indices[i] = p.pool[rng.IntN(len(p.pool))]
	}
	return p, nil
}

// PlanSeeded is Plan using TreeSource(seed, treeIndex).
func PlanSeeded(labels pu.Labels, ratio float64, seed uint64, treeIndex int) (*SamplePlan, error) {
	return Plan(labels, ratio, TreeSource(seed, treeIndex))
}

func pickGroups(groups map[pu.Label][]int) (minority, majority pu.Label, ok bool) {
	seen := 0
	minCount := math.MaxInt
	for _, l := range pu.GroupOrder {
		rows, present := groups[l]
		if !present {
			continue
		}
		seen += len(rows)
		if len(rows) < minCount {
			minCount, minority = len(rows), l
		}
	}
	if seen == 0 || seen != totalRows(groups) {
		return 0, 0, false
	}

	majority = minority
	maxCount := -1
	for _, l := range pu.GroupOrder {
		rows, present := groups[l]
		if !present || l == minority {
			continue
		}
		if len(rows) > maxCount {
			maxCount, majority = len(rows), l
		}
	}
	return minority, majority, true
}

func totalRows(groups map[pu.Label][]int) int {
	total := 0
	for _, rows := range groups {
		total += len(rows)
	}
	return total
}

// sampleWithoutReplacement returns k distinct elements of src using a
// partial Fisher-Yates shuffle on a copy.
func sampleWithoutReplacement(src []int, k int, rng *rand.Rand) []int {
	buf := append([]int(nil), src...)
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(buf)-i)
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf[:k]
}

// Capped reports whether the majority draw fell short of the request.
func (p *SamplePlan) Capped() bool {
	return p.MajorityDrawn < p.MajorityRequested && p.Majority != p.Minority
}

// EffectiveRatio is MinorityCount / MajorityDrawn, or 0 when no majority
// rows were drawn.
func (p *SamplePlan) EffectiveRatio() float64 {
	if p.MajorityDrawn == 0 {
		return 0
	}
	return float64(p.MinorityCount) / float64(p.MajorityDrawn)
}

// PoolSize is the size of the reduced pool, which is also the number of
// bootstrap draws.
func (p *SamplePlan) PoolSize() int {
	return len(p.pool)
}

// Pool returns the reduced pool: minority rows followed by the drawn
// majority rows.
func (p *SamplePlan) Pool() []int {
	return append([]int(nil), p.pool...)
}

// Indices returns the bootstrap draws.
func (p *SamplePlan) Indices() []int {
	return append([]int(nil), p.indices...)
}

// Counts returns how many times each of the n rows was drawn.
func (p *SamplePlan) Counts(n int) []int {
	counts := make([]int, n)
	for _, i := range p.indices {
		counts[i]++
	}
	return counts
}

// Weights is Counts as float64, ready to be used as sample weights.
func (p *SamplePlan) Weights(n int) []float64 {
	w := make([]float64, n)
	for _, i := range p.indices {
		w[i]++
	}
	return w
}

// Summary returns the plan shape without the index data.
func (p *SamplePlan) Summary(treeIndex int) PlanSummary {
	return PlanSummary{
		TreeIndex:         treeIndex,
		Minority:          p.Minority,
		Majority:          p.Majority,
		MinorityCount:     p.MinorityCount,
		MajorityRequested: p.MajorityRequested,
		MajorityDrawn:     p.MajorityDrawn,
		PoolSize:          p.PoolSize(),
		Capped:            p.Capped(),
		EffectiveRatio:    p.EffectiveRatio(),
	}
}

// PlanSummary describes the plan used for one tree.
type PlanSummary struct {
	TreeIndex         int
	Minority          pu.Label
	Majority          pu.Label
	MinorityCount     int
	MajorityRequested int
	MajorityDrawn     int
	PoolSize          int
	Capped            bool
	EffectiveRatio    float64
}
