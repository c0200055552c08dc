package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"mlplayground/config"
	"mlplayground/db"
	"mlplayground/logging"
	"mlplayground/ml"
	"mlplayground/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file (optional)")
	dataPath := flag.String("data", "", "CSV with nome,idade,cor,localizacao[,rotulo]")
	encodingName := flag.String("encoding", "utf-8", "CSV text encoding: utf-8, latin1 or windows-1252")
	modelType := flag.String("model_type", "", "dense or decision_tree (default from config)")
	epochs := flag.Int("epochs", 0, "training epochs (default from config)")
	seed := flag.Int64("seed", 0, "random seed (default from config)")
	outPath := flag.String("out", "./models/model.json", "artifact output path")
	dbPath := flag.String("db", "", "record the run in this sqlite database")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("data is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, _, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	if *modelType != "" {
		cfg.ML.ModelType = *modelType
	}
	if *epochs > 0 {
		cfg.ML.Epochs = *epochs
	}
	if *seed != 0 {
		cfg.ML.Seed = *seed
	}

	summary, err := run(cfg.ML, *dataPath, *encodingName, *outPath, *dbPath, logger)
	if err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}
	fmt.Printf("model=%s loss=%.4f accuracy=%.2f records=%d saved to %s\n",
		summary.ModelType, summary.Loss, summary.Accuracy, summary.DataPoints, *outPath)
}

// loadConfig falls back to defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func run(cfg config.ML, dataPath, encodingName, outPath, dbPath string, logger *zap.Logger) (ml.TrainingSummary, error) {
	var summary ml.TrainingSummary
	if logger == nil {
		logger = zap.NewNop()
	}

	enc, err := ml.EncoderFor(cfg.Colors, cfg.Locations)
	if err != nil {
		return summary, err
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return summary, err
	}
	defer f.Close()
	records, labels, err := readDataset(f, encodingName)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", dataPath, err)
	}

	cleaner := pipeline.NewRecordCleaner(enc, logger)
	cleaned, issues := cleaner.Clean(records)
	if rejected := pipeline.Rejections(issues); len(rejected) > 0 {
		for _, issue := range rejected {
			logger.Error("record rejected",
				zap.String("record", issue.RecordID),
				zap.Int("index", issue.Index),
				zap.String("type", issue.Type),
				zap.String("message", issue.Message))
		}
		return summary, fmt.Errorf("%d of %d records rejected", len(rejected), len(records))
	}

	artifacts, summary, err := ml.Train(enc, ml.TrainRequest{
		Records:   cleaned,
		Labels:    labels,
		ModelType: cfg.ModelType,
		Options: ml.DenseOptions{
			HiddenUnits:  cfg.HiddenUnits,
			Epochs:       cfg.Epochs,
			LearningRate: cfg.LearningRate,
			Seed:         cfg.Seed,
			MaxDepth:     cfg.MaxDepth,
		},
	})
	if err != nil {
		return summary, err
	}

	if err := writeArtifacts(outPath, artifacts); err != nil {
		return summary, err
	}

	if dbPath != "" {
		if err := db.InitDB(dbPath); err != nil {
			return summary, err
		}
		defer db.Close()
		err := db.SaveTrainingRun(db.TrainingLog{
			ModelName:  summary.ModelType,
			Loss:       summary.Loss,
			Accuracy:   summary.Accuracy,
			DataPoints: summary.DataPoints,
		})
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func writeArtifacts(path string, artifacts *ml.Artifacts) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.MarshalIndent(artifacts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
