package hmm

import (
	"fmt"
	"math"
)

// State indexes into the two-state parameter arrays
type State int

const (
	Stable State = iota
	Unstable
)

// Labels for the two latent states
const (
	LabelStable   = "stable"
	LabelUnstable = "unstable"
)

// Gaussian emission densities are floored to avoid zeroing the forward
// variables on extreme observations
const emissionFloor = 1e-300

// Params holds the fixed, non-learned model parameters: Gaussian emission
// means/variances, the state transition matrix and the initial distribution
type Params struct {
	Means      [2]float64
	Variances  [2]float64
	Transition [2][2]float64
	Initial    [2]float64
}

// DefaultParams returns the production parameterization: the stable state
// emits low composite-volatility features, the unstable state high ones, and
// the chain is sticky in both states.
func DefaultParams() Params {
	return Params{
		Means:     [2]float64{0.20, 0.65},
		Variances: [2]float64{0.02, 0.04},
		Transition: [2][2]float64{
			{0.92, 0.08},
			{0.15, 0.85},
		},
		Initial: [2]float64{0.80, 0.20},
	}
}

// Model is a two-state Gaussian-emission HMM with fixed parameters.
// Stateless: Infer is a pure function of the observation sequence.
type Model struct {
	params Params
}

// New creates a model from the given parameters
func New(params Params) *Model {
	return &Model{params: params}
}

// Inference is the terminal posterior of a forward pass
type Inference struct {
	Label          string  `json:"label"`
	Probability    float64 `json:"probability"`
	TransitionRisk float64 `json:"transition_risk"`
	StabilityScore float64 `json:"stability_score"`
}

// Forward runs the forward algorithm over the observation sequence and
// returns the normalized posterior at every step. Each step is renormalized
// to avoid underflow on long sequences.
func (m *Model) Forward(observations []float64) ([][2]float64, error) {
	if len(observations) == 0 {
		return nil, fmt.Errorf("empty observation sequence")
	}

	posteriors := make([][2]float64, len(observations))

	var alpha [2]float64
	for s := 0; s < 2; s++ {
		alpha[s] = m.params.Initial[s] * m.emission(s, observations[0])
	}
	alpha = normalize(alpha)
	posteriors[0] = alpha

	for t := 1; t < len(observations); t++ {
		var next [2]float64
		for j := 0; j < 2; j++ {
			var sum float64
			for i := 0; i < 2; i++ {
				sum += alpha[i] * m.params.Transition[i][j]
			}
			next[j] = sum * m.emission(j, observations[t])
		}
		alpha = normalize(next)
		posteriors[t] = alpha
	}

	return posteriors, nil
}

// Infer classifies the observation sequence from the terminal posterior
func (m *Model) Infer(observations []float64) (*Inference, error) {
	posteriors, err := m.Forward(observations)
	if err != nil {
		return nil, err
	}

	terminal := posteriors[len(posteriors)-1]
	winner := Stable
	if terminal[Unstable] > terminal[Stable] {
		winner = Unstable
	}
	other := 1 - winner

	label := LabelStable
	if winner == Unstable {
		label = LabelUnstable
	}

	probability := terminal[winner]
	transitionRisk := m.params.Transition[winner][other]

	return &Inference{
		Label:          label,
		Probability:    probability,
		TransitionRisk: transitionRisk,
		StabilityScore: clamp01(probability * (1 - transitionRisk)),
	}, nil
}

// emission is the floored Gaussian density for state s at observation x
func (m *Model) emission(s int, x float64) float64 {
	variance := m.params.Variances[s]
	diff := x - m.params.Means[s]
	density := math.Exp(-diff*diff/(2*variance)) / math.Sqrt(2*math.Pi*variance)
	if density < emissionFloor {
		return emissionFloor
	}
	return density
}

func normalize(alpha [2]float64) [2]float64 {
	total := alpha[0] + alpha[1]
	if total <= 0 {
		return [2]float64{0.5, 0.5}
	}
	return [2]float64{alpha[0] / total, alpha[1] / total}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
