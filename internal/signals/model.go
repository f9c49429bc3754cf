package signals

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/halcyon-desk/trading-engine/internal/features"
)

// Model is a linear softmax classifier exported from offline training.
// Weights are per-class rows over the fixed feature order.
type Model struct {
	Version    string      `json:"version"`
	Classes    []string    `json:"classes"`
	Weights    [][]float64 `json:"weights"`
	Intercepts []float64   `json:"intercepts"`
}

// LoadModel reads latest.json from dir. A missing file is not an error;
// it returns (nil, nil) and the caller falls back to the heuristic.
func LoadModel(dir string) (*Model, error) {
	path := filepath.Join(dir, "latest.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("signals: read model %s: %w", path, err)
	}

	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("signals: parse model %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("signals: model %s: %w", path, err)
	}
	if m.Version == "" {
		m.Version = "v0.0.0"
	}
	m.Version = strings.TrimSpace(m.Version)
	return &m, nil
}

func (m *Model) validate() error {
	if len(m.Classes) != len(m.Weights) || len(m.Classes) != len(m.Intercepts) {
		return fmt.Errorf("class count mismatch: %d classes, %d weight rows, %d intercepts",
			len(m.Classes), len(m.Weights), len(m.Intercepts))
	}
	for i, row := range m.Weights {
		if len(row) != len(features.Names) {
			return fmt.Errorf("class %s has %d weights, want %d", m.Classes[i], len(row), len(features.Names))
		}
	}
	return nil
}

// Probabilities returns the softmax class probabilities keyed by class name.
func (m *Model) Probabilities(vector []float64) map[string]float64 {
	logits := make([]float64, len(m.Classes))
	maxLogit := math.Inf(-1)
	for i, row := range m.Weights {
		z := m.Intercepts[i]
		for j, w := range row {
			z += w * vector[j]
		}
		logits[i] = z
		if z > maxLogit {
			maxLogit = z
		}
	}

	var sum float64
	exps := make([]float64, len(logits))
	for i, z := range logits {
		exps[i] = math.Exp(z - maxLogit)
		sum += exps[i]
	}

	out := make(map[string]float64, len(m.Classes))
	for i, class := range m.Classes {
		out[class] = exps[i] / sum
	}
	return out
}
