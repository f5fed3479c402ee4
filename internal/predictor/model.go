package predictor

import (
	"encoding/json"
	"errors"
	"math"
	"os"
)

// TrainOptions controls the gradient descent run.
type TrainOptions struct {
	LearningRate float64
	Epochs       int
	L2           float64
}

// DefaultTrainOptions returns settings that converge well on small
// outcome datasets.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearningRate: 0.05,
		Epochs:       600,
		L2:           0.0001,
	}
}

// Artifact is the serializable form of a trained fill model.
type Artifact struct {
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	Means        []float64 `json:"means"`
	Stds         []float64 `json:"stds"`
	L2           float64   `json:"l2"`
	LearningRate float64   `json:"learning_rate"`
	Epochs       int       `json:"epochs"`
	TrainedOn    int       `json:"trained_on"`
}

// Model is a logistic regression over z-score normalized gap features.
type Model struct {
	artifact Artifact
}

// Train fits a model on labeled outcomes. Labels are 1 for filled and
// 0 for unfilled patterns.
func Train(samples [][]float64, labels []float64, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, errors.New("invalid training dataset")
	}
	if len(samples[0]) != len(FeatureNames) {
		return nil, errors.New("feature vector width mismatch")
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultTrainOptions().LearningRate
	}
	if opts.Epochs <= 0 {
		opts.Epochs = DefaultTrainOptions().Epochs
	}
	if opts.L2 < 0 {
		opts.L2 = DefaultTrainOptions().L2
	}

	n := len(FeatureNames)
	means := make([]float64, n)
	stds := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := range samples {
			means[j] += samples[i][j]
		}
		means[j] /= float64(len(samples))
		for i := range samples {
			d := samples[i][j] - means[j]
			stds[j] += d * d
		}
		stds[j] = math.Sqrt(stds[j] / float64(len(samples)))
		if stds[j] == 0 {
			stds[j] = 1
		}
	}

	weights := make([]float64, n)
	bias := 0.0
	count := float64(len(samples))

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		grads := make([]float64, n)
		gradBias := 0.0
		for i := range samples {
			x := normalize(samples[i], means, stds)
			residual := sigmoid(dot(weights, x)+bias) - labels[i]
			for j := range grads {
				grads[j] += residual * x[j]
			}
			gradBias += residual
		}
		for j := range weights {
			grads[j] = grads[j]/count + opts.L2*weights[j]
			weights[j] -= opts.LearningRate * grads[j]
		}
		bias -= opts.LearningRate * (gradBias / count)
	}

	return &Model{artifact: Artifact{
		FeatureNames: append([]string(nil), FeatureNames...),
		Weights:      weights,
		Bias:         bias,
		Means:        means,
		Stds:         stds,
		L2:           opts.L2,
		LearningRate: opts.LearningRate,
		Epochs:       opts.Epochs,
		TrainedOn:    len(samples),
	}}, nil
}

// Probability returns P(fill) for a feature vector. A nil model or a
// malformed vector returns 0.5 so callers can detect the degenerate
// case without a second return value.
func (m *Model) Probability(sample []float64) float64 {
	if m == nil || len(sample) != len(m.artifact.Weights) {
		return 0.5
	}
	x := normalize(sample, m.artifact.Means, m.artifact.Stds)
	return sigmoid(dot(m.artifact.Weights, x) + m.artifact.Bias)
}

// MarshalBinary serializes the model artifact as JSON.
func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(m.artifact)
}

// UnmarshalBinary reconstructs a model from its JSON artifact.
func UnmarshalBinary(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	if len(a.Weights) == 0 || len(a.Weights) != len(a.Means) || len(a.Weights) != len(a.Stds) {
		return nil, errors.New("invalid artifact")
	}
	return &Model{artifact: a}, nil
}

// SaveFile writes the artifact to disk.
func (m *Model) SaveFile(path string) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadFile reads an artifact from disk.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalBinary(data)
}

// TrainedOn reports the sample count the model was fitted on.
func (m *Model) TrainedOn() int {
	if m == nil {
		return 0
	}
	return m.artifact.TrainedOn
}

func sigmoid(x float64) float64 {
	if x > 35 {
		return 1
	}
	if x < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

func dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normalize(in, means, stds []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		out[i] = (in[i] - means[i]) / stds[i]
	}
	return out
}
