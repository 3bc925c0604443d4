package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONText is a JSON document stored in a JSONB (postgres) or TEXT
// (sqlite) column
type JSONText json.RawMessage

// Value implements driver.Valuer interface
func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner interface
func (j *JSONText) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = JSONText("null")
	case []byte:
		*j = append(JSONText(nil), v...)
	case string:
		*j = JSONText(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONText", value)
	}
	return nil
}

// StringList is a []string stored as a JSON array
type StringList []string

// Value implements driver.Valuer interface
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface
func (s *StringList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = StringList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	if len(raw) == 0 {
		*s = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

// RunRecord is one row of cv_runs
type RunRecord struct {
	ID          string    `db:"id"`
	CreatedAt   time.Time `db:"created_at"`
	DatasetName string    `db:"dataset_name"`
	Subjects    int       `db:"subjects"`
	Events      int       `db:"events"`
	Folds       int       `db:"folds"`
	Seed        int64     `db:"seed"`
	Fingerprint string    `db:"fingerprint"`
	MeanCIndex  float64   `db:"mean_c_index"`
	StdCIndex   float64   `db:"std_c_index"`
	ElapsedMS   int64     `db:"elapsed_ms"`
	Config      JSONText  `db:"config"`
	Manifest    JSONText  `db:"manifest"`
}

// FoldRecord is one row of cv_fold_results
type FoldRecord struct {
	RunID          string     `db:"run_id"`
	Fold           int        `db:"fold"`
	TrainSize      int        `db:"train_size"`
	TestSize       int        `db:"test_size"`
	TrainEvents    int        `db:"train_events"`
	TestEvents     int        `db:"test_events"`
	DesignColumns  int        `db:"design_columns"`
	L1Iterations   int        `db:"l1_iterations"`
	L2Iterations   int        `db:"l2_iterations"`
	Retries        int        `db:"retries"`
	CIndex         float64    `db:"c_index"`
	ElapsedMS      int64      `db:"elapsed_ms"`
	Dropped        StringList `db:"dropped"`
	LogTransformed StringList `db:"log_transformed"`
	SplineTargets  StringList `db:"spline_targets"`
	Selected       StringList `db:"selected"`
}
