package progress

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PhaseCue fires Label after the ramp has been running for After.
type PhaseCue struct {
	After time.Duration
	Label string
}

// UnmarshalYAML decodes a cue whose `after` field is a duration string
// such as "1500ms" or "3s".
func (c *PhaseCue) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		After string `yaml:"after"`
		Label string `yaml:"label"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	d, err := time.ParseDuration(raw.After)
	if err != nil {
		return fmt.Errorf("phase cue %q: %w", raw.Label, err)
	}
	c.After = d
	c.Label = raw.Label
	return nil
}

// Operation names used as script keys.
const (
	OpAnalyze    = "analyze"
	OpSuggest    = "suggestions"
	OpSynthesize = "synthesize"
)

// DefaultScripts returns the built-in phase scripts per operation.
func DefaultScripts() map[string][]PhaseCue {
	return map[string][]PhaseCue{
		OpAnalyze: {
			{After: 1 * time.Second, Label: "Analyzing image composition..."},
			{After: 3 * time.Second, Label: "Identifying key ingredients..."},
			{After: 5 * time.Second, Label: "Matching product attributes..."},
		},
		OpSuggest: {
			{After: 1 * time.Second, Label: "Reviewing analysis..."},
			{After: 3 * time.Second, Label: "Exploring formulation directions..."},
			{After: 5 * time.Second, Label: "Ranking candidates..."},
		},
		OpSynthesize: {
			{After: 1 * time.Second, Label: "Drafting formulation..."},
			{After: 3 * time.Second, Label: "Balancing ingredient ratios..."},
			{After: 5 * time.Second, Label: "Finalizing formula..."},
		},
	}
}

// scriptsFile is the on-disk shape of a phase-script override file.
type scriptsFile struct {
	Operations map[string][]PhaseCue `yaml:"operations"`
}

// LoadScripts reads phase-script overrides from a YAML file and merges
// them over the defaults. Operations absent from the file keep their
// built-in script.
func LoadScripts(path string) (map[string][]PhaseCue, error) {
	scripts := DefaultScripts()
	if path == "" {
		return scripts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phase scripts: %w", err)
	}

	var parsed scriptsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse phase scripts: %w", err)
	}

	for op, cues := range parsed.Operations {
		scripts[op] = cues
	}
	return scripts, nil
}
