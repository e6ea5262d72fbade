package strategy

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// CurrentSchemaVersion is written into exported strategy files.
const CurrentSchemaVersion = "1.0.0"

// schemaConstraint gates which file versions this build accepts.
const schemaConstraint = ">= 1.0.0, < 2.0.0"

// File is the on-disk strategy bundle format.
type File struct {
	SchemaVersion string `yaml:"schema_version"`
	Strategies    []Spec `yaml:"strategies"`
}

// LoadFile parses and registers every strategy in a YAML bundle.
// The schema version is gated by semver; specs that fail validation are
// skipped with a logged error rather than aborting the whole file.
func (r *Registry) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read strategy file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse strategy file: %w", err)
	}

	if err := checkSchemaVersion(file.SchemaVersion); err != nil {
		return 0, err
	}

	registered := 0
	for i, sp := range file.Strategies {
		if _, err := r.Register(sp); err != nil {
			r.logger.Error().
				Err(err).
				Int("index", i).
				Str("strategy_id", sp.ID).
				Msg("Skipping invalid strategy spec")
			continue
		}
		registered++
	}

	r.logger.Info().
		Str("path", path).
		Int("registered", registered).
		Int("total", len(file.Strategies)).
		Msg("Strategy file loaded")
	return registered, nil
}

// ExportFile writes every registered strategy to a YAML bundle.
func (r *Registry) ExportFile(path string) error {
	r.mu.RLock()
	specs := make([]Spec, 0, len(r.byID))
	for _, inst := range r.byID {
		specs = append(specs, instanceSpec(inst))
	}
	r.mu.RUnlock()

	file := File{SchemaVersion: CurrentSchemaVersion, Strategies: specs}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write strategy file: %w", err)
	}
	return nil
}

func instanceSpec(inst *Instance) Spec {
	active := inst.Active
	sp := Spec{
		ID:      inst.ID,
		Name:    inst.Name,
		Kind:    inst.Kind,
		Symbols: append([]string(nil), inst.Symbols...),
		Active:  &active,
	}
	switch p := inst.Params.(type) {
	case RSIPullbackParams:
		sp.RSIPullback = &p
	case QuantumOscillatorParams:
		sp.QuantumOscillator = &p
	case NeuralConfidenceParams:
		sp.NeuralConfidence = &p
	case BollingerBreakoutParams:
		sp.BollingerBreakout = &p
	}
	return sp
}

func checkSchemaVersion(version string) error {
	if version == "" {
		return fmt.Errorf("strategy file missing schema_version")
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid schema_version %q: %w", version, err)
	}
	constraint, err := semver.NewConstraint(schemaConstraint)
	if err != nil {
		return fmt.Errorf("invalid schema constraint: %w", err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("unsupported schema_version %s, this build accepts %s", version, schemaConstraint)
	}
	return nil
}
