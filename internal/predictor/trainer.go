package predictor

import (
	"errors"
	"math/rand"
)

// CVReport summarizes a k-fold cross validation run.
type CVReport struct {
	Folds      int       `json:"folds"`
	Accuracies []float64 `json:"accuracies"`
	Mean       float64   `json:"mean"`
}

// CrossValidate trains on k-1 folds and scores the held-out fold,
// cycling through all folds. The shuffle is seeded so reports are
// reproducible.
func CrossValidate(samples [][]float64, labels []float64, folds int, opts TrainOptions, seed int64) (CVReport, error) {
	if folds < 2 {
		return CVReport{}, errors.New("need at least 2 folds")
	}
	if len(samples) < folds {
		return CVReport{}, errors.New("fewer samples than folds")
	}
	if len(samples) != len(labels) {
		return CVReport{}, errors.New("samples and labels length mismatch")
	}

	idx := rand.New(rand.NewSource(seed)).Perm(len(samples))
	report := CVReport{Folds: folds}
	foldSize := len(samples) / folds

	for f := 0; f < folds; f++ {
		lo, hi := f*foldSize, (f+1)*foldSize
		if f == folds-1 {
			hi = len(samples)
		}
		var trainX [][]float64
		var trainY []float64
		var testX [][]float64
		var testY []float64
		for pos, i := range idx {
			if pos >= lo && pos < hi {
				testX = append(testX, samples[i])
				testY = append(testY, labels[i])
			} else {
				trainX = append(trainX, samples[i])
				trainY = append(trainY, labels[i])
			}
		}

		m, err := Train(trainX, trainY, opts)
		if err != nil {
			return CVReport{}, err
		}
		correct := 0
		for i := range testX {
			pred := 0.0
			if m.Probability(testX[i]) >= 0.5 {
				pred = 1.0
			}
			if pred == testY[i] {
				correct++
			}
		}
		acc := float64(correct) / float64(len(testX))
		report.Accuracies = append(report.Accuracies, acc)
		report.Mean += acc
	}
	report.Mean /= float64(folds)
	return report, nil
}
