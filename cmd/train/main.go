package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"academic-risk/internal/common"
	"academic-risk/internal/dataset"
	"academic-risk/internal/ml"
	"academic-risk/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type runReport struct {
	Model     string             `json:"model"`
	Version   string             `json:"version"`
	Source    string             `json:"source"`
	Metrics   ml.TrainingMetrics `json:"metrics"`
	Duration  string             `json:"duration"`
	Persisted bool               `json:"persisted"`
}

func main() {
	var (
		kinds      = flag.String("kind", "subject,semester", "Comma-separated kinds to train: subject, semester")
		csvPath    = flag.String("data", "", "Labelled CSV to train on; synthetic data when empty (single kind only)")
		samples    = flag.Int("samples", common.DefaultTrainingSamples, "Synthetic sample count")
		seed       = flag.Int64("seed", common.DefaultSeed, "Seed for synthetic data, split and bootstrap")
		dataDir    = flag.String("data-path", os.Getenv(common.EnvDataPath), "Directory of the model store; models are not saved when empty")
		outputPath = flag.String("output", "", "Directory for the JSON report and generated datasets")
		trees      = flag.Int("trees", common.DefaultForestTrees, "Random forest size")
		stages     = flag.Int("stages", common.DefaultBoostingStages, "Gradient boosting stages")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	selected, err := parseKinds(*kinds)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid kind")
	}
	if *csvPath != "" && len(selected) != 1 {
		log.Fatal().Msg("A CSV dataset trains exactly one kind")
	}

	tc := ml.DefaultTrainerConfig()
	tc.Seed = *seed
	tc.ForestTrees = *trees
	tc.BoostingStages = *stages
	trainer := ml.NewTrainer(tc)

	var store *storage.Store
	if *dataDir != "" {
		if err := os.MkdirAll(*dataDir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("Failed to create data directory")
		}
		store, err = storage.New(*dataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open model store")
		}
		defer store.Close()
	}

	fmt.Println("=== Training Configuration ===")
	fmt.Printf("Kinds: %s\n", *kinds)
	if *csvPath != "" {
		fmt.Printf("Data: %s\n", *csvPath)
	} else {
		fmt.Printf("Data: synthetic (%d samples, seed %d)\n", *samples, *seed)
	}
	fmt.Printf("Model Store: %s\n", valueOr(*dataDir, "(none)"))
	fmt.Printf("Forest Trees: %d, Boosting Stages: %d\n", tc.ForestTrees, tc.BoostingStages)
	fmt.Println("==============================")

	var reports []runReport
	for _, kind := range selected {
		ds, source, err := loadDataset(kind, *csvPath, *samples, *seed)
		if err != nil {
			log.Fatal().Err(err).Str("kind", string(kind)).Msg("Failed to load dataset")
		}
		if *outputPath != "" && *csvPath == "" {
			if err := os.MkdirAll(*outputPath, 0o755); err != nil {
				log.Fatal().Err(err).Msg("Failed to create output directory")
			}
			if err := dataset.WriteCSV(filepath.Join(*outputPath, string(kind)+"_dataset.csv"), ds); err != nil {
				log.Warn().Err(err).Msg("Failed to export generated dataset")
			}
		}

		started := time.Now()
		model, m, err := trainer.Train(kind, ds)
		if err != nil {
			log.Fatal().Err(err).Str("kind", string(kind)).Msg("Training failed")
		}

		r := runReport{
			Model:    kind.ModelName(),
			Version:  model.Version(),
			Source:   source,
			Metrics:  m,
			Duration: time.Since(started).Round(time.Millisecond).String(),
		}
		if store != nil {
			if err := store.SaveModel(kind.ModelName(), model.Trained()); err != nil {
				log.Error().Err(err).Str("model", r.Model).Msg("Failed to save model")
			} else {
				r.Persisted = true
			}
		}
		printReport(r)
		reports = append(reports, r)
	}

	if *outputPath != "" {
		if err := writeReport(*outputPath, reports); err != nil {
			log.Fatal().Err(err).Msg("Failed to write report")
		}
		fmt.Printf("\nReport saved to: %s\n", filepath.Join(*outputPath, "training_report.json"))
	}
}

func parseKinds(s string) ([]ml.Kind, error) {
	var out []ml.Kind
	seen := make(map[ml.Kind]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := ml.ParseKind(part)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no kind selected")
	}
	return out, nil
}

func loadDataset(kind ml.Kind, csvPath string, samples int, seed int64) (*ml.Dataset, string, error) {
	if csvPath != "" {
		ds, err := dataset.LoadCSV(csvPath)
		return ds, csvPath, err
	}
	ds, err := dataset.Synthetic(samples, seed)(kind)
	return ds, "synthetic", err
}

func printReport(r runReport) {
	fmt.Printf("\n%s (%s)\n", r.Model, r.Version)
	fmt.Printf("  Samples:   %d train / %d test\n", r.Metrics.TrainSamples, r.Metrics.TestSamples)
	fmt.Printf("  RMSE:      %.4f train / %.4f test\n", r.Metrics.TrainRMSE, r.Metrics.TestRMSE)
	fmt.Printf("  R2:        %.4f train / %.4f test\n", r.Metrics.TrainR2, r.Metrics.TestR2)
	fmt.Printf("  Duration:  %s\n", r.Duration)
	fmt.Printf("  Persisted: %t\n", r.Persisted)

	names := make([]string, 0, len(r.Metrics.FeatureImportance))
	for name := range r.Metrics.FeatureImportance {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.Metrics.FeatureImportance[names[i]] > r.Metrics.FeatureImportance[names[j]]
	})
	fmt.Println("  Feature importance:")
	for _, name := range names {
		fmt.Printf("    %-28s %.4f\n", name, r.Metrics.FeatureImportance[name])
	}
}

func writeReport(dir string, reports []runReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "training_report.json"), data, 0o644)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
