package store

import (
	"encoding/json"
	"fmt"
	"os"
)

// ExportData is the JSON summary of a finished run.
type ExportData struct {
	Model     string               `json:"model"`
	Theta     float64              `json:"theta"`
	Dt        float64              `json:"dt"`
	Steps     int                  `json:"steps"`
	Cycles    int                  `json:"cycles"`
	Periodic  bool                 `json:"periodic"`
	CycleErrs []float64            `json:"cycle_errors"`
	Times     []float64            `json:"times"`
	Series    map[string][]float64 `json:"series"`
}

// ExportJSON writes the run summary, indented so it stays diffable.
func ExportJSON(path string, data *ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// ReadExport loads a run summary back.
func ReadExport(path string) (*ExportData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	data := &ExportData{}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return data, nil
}
