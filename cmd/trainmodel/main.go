// Command trainmodel fits the gap fill model from recorded pattern
// outcomes and writes the artifact to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"mt5-fvg-bot/config"
	"mt5-fvg-bot/internal/predictor"
	"mt5-fvg-bot/internal/store"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	outPath := flag.String("out", "", "artifact output path (defaults to the configured model path)")
	limit := flag.Int("limit", 20000, "max outcomes to load")
	folds := flag.Int("folds", 5, "cross validation folds")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Config error")
	}
	if *outPath == "" {
		*outPath = cfg.ModelPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := store.NewDB(cfg.Database.Config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	outcomes, err := db.ListOutcomes(ctx, *limit)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load outcomes")
	}
	if len(outcomes) < 50 {
		logger.Fatal().Int("outcomes", len(outcomes)).
			Msg("Not enough outcomes to train, need at least 50")
	}

	samples := make([][]float64, 0, len(outcomes))
	labels := make([]float64, 0, len(outcomes))
	filled := 0
	for _, o := range outcomes {
		if len(o.Features) != len(predictor.FeatureNames) {
			continue
		}
		samples = append(samples, o.Features)
		if o.Filled {
			labels = append(labels, 1)
			filled++
		} else {
			labels = append(labels, 0)
		}
	}
	logger.Info().Int("samples", len(samples)).Int("filled", filled).Msg("Dataset loaded")

	report, err := predictor.CrossValidate(samples, labels, *folds, predictor.DefaultTrainOptions(), 1)
	if err != nil {
		logger.Fatal().Err(err).Msg("Cross validation failed")
	}
	logger.Info().Float64("mean_accuracy", report.Mean).
		Floats64("fold_accuracies", report.Accuracies).Msg("Cross validation done")

	model, err := predictor.Train(samples, labels, predictor.DefaultTrainOptions())
	if err != nil {
		logger.Fatal().Err(err).Msg("Training failed")
	}
	if err := model.SaveFile(*outPath); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write artifact")
	}

	fmt.Printf("model written to %s (trained on %d samples, CV accuracy %.3f)\n",
		*outPath, len(samples), report.Mean)
}
