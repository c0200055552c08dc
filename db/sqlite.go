package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

var ErrNotInitialized = errors.New("database not initialized")

// InitDB opens the SQLite database and creates the tables
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50) NOT NULL,
        loss REAL,
        accuracy REAL,
        data_points INTEGER,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        subject TEXT,
        label VARCHAR(20) NOT NULL,
        confidence REAL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
    `

	if _, err = database.Exec(query); err != nil {
		database.Close()
		database = nil
		return err
	}
	return nil
}

// Close releases the connection; InitDB must be called again before reuse.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Loss       float64   `json:"loss"`
	Accuracy   float64   `json:"accuracy"`
	DataPoints int       `json:"data_points"`
	TrainedAt  time.Time `json:"trained_at"`
}

func SaveTrainingRun(run TrainingLog) error {
	if database == nil {
		return ErrNotInitialized
	}
	if run.ModelName == "" {
		return errors.New("model name required")
	}
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now().UTC()
	}
	_, err := database.Exec(`
        INSERT INTO training_log (model_name, loss, accuracy, data_points, trained_at)
        VALUES (?, ?, ?, ?, ?)`,
		run.ModelName, run.Loss, run.Accuracy, run.DataPoints, run.TrainedAt)
	return err
}

// LoadTrainingLog returns all runs, newest first.
func LoadTrainingLog() ([]TrainingLog, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT model_name, loss, accuracy, data_points, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var entry TrainingLog
		if err := rows.Scan(&entry.ModelName, &entry.Loss, &entry.Accuracy, &entry.DataPoints, &entry.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

type Prediction struct {
	Subject    string    `json:"subject"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

func SavePrediction(p Prediction) error {
	if database == nil {
		return ErrNotInitialized
	}
	if p.Label == "" {
		return errors.New("label required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := database.Exec(`
        INSERT INTO predictions (subject, label, confidence, created_at)
        VALUES (?, ?, ?, ?)`,
		p.Subject, p.Label, p.Confidence, p.CreatedAt)
	return err
}

// LoadPredictions returns up to limit predictions, newest first. A limit of
// zero or less returns all of them.
func LoadPredictions(limit int) ([]Prediction, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := database.Query(`
        SELECT subject, label, confidence, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.Subject, &p.Label, &p.Confidence, &p.CreatedAt); err != nil {
			return nil, err
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}
