// Package codec turns the app state into a portable JSON blob and back.
// Import never trusts the supplied stats block: it is re-derived from plan
// and motivation before the state is handed to the caller.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"shad-prep/metrics"
	"shad-prep/model"
)

// ErrImportParse marks a payload that could not be decoded. The caller's
// state must stay untouched when it is returned.
var ErrImportParse = errors.New("import payload is not a valid snapshot")

// Marshal serializes the state to the portable blob.
func Marshal(state model.AppState) ([]byte, error) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a user-supplied blob. A malformed payload returns
// ErrImportParse; a well-formed one is normalized and its stats re-derived.
func Unmarshal(data []byte) (model.AppState, error) {
	var state model.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.AppState{}, fmt.Errorf("%w: %v", ErrImportParse, err)
	}
	state = model.Normalize(state)
	state.Stats = metrics.Recompute(state.Plan, state.Motivation, time.Now())
	return state, nil
}

// ExportFile writes the dated backup file into dir and returns its path.
func ExportFile(state model.AppState, dir string, now time.Time) (string, error) {
	data, err := Marshal(state)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("shad-backup-%s.json", now.Format("2006-01-02"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ImportFile reads and parses a snapshot file.
func ImportFile(path string) (model.AppState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.AppState{}, err
	}
	return Unmarshal(data)
}
