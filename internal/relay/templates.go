package relay

import (
	_ "embed"
	"fmt"
	"os"

	"signalrelay/internal/domain"

	"gopkg.in/yaml.v3"
)

const (
	VariantClassic  = "classic"
	VariantExtended = "extended"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// Templates is the fixed text asset the renderer fills in.
type Templates struct {
	Signal    map[string]string  `yaml:"signal"`
	Footer    string             `yaml:"footer"`
	Direction DirectionTemplates `yaml:"direction"`
	Extras    ExtraTemplates     `yaml:"extras"`
	LossLabel string             `yaml:"lossLabel"`
	Results   map[string]string  `yaml:"results"`
}

type DirectionTemplates struct {
	Up   string `yaml:"up"`
	Down string `yaml:"down"`
}

type ExtraTemplates struct {
	Trend    string `yaml:"trend"`
	Forecast string `yaml:"forecast"`
	Payout   string `yaml:"payout"`
}

var allResultCategories = []domain.ResultCategory{
	domain.ResultMTGWin,
	domain.ResultWin,
	domain.ResultLoss,
	domain.ResultLossConsecutive,
	domain.ResultDoji,
}

// DefaultTemplates parses the embedded template asset.
func DefaultTemplates() (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(defaultTemplatesYAML, &t); err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadTemplates returns the embedded templates with the keys present in
// path layered on top. An empty path returns the defaults.
func LoadTemplates(path string) (*Templates, error) {
	t, err := DefaultTemplates()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse templates file %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("templates file %s: %w", path, err)
	}
	return t, nil
}

// Validate checks that every variant and result category has a body.
func (t *Templates) Validate() error {
	for _, v := range []string{VariantClassic, VariantExtended} {
		if t.Signal[v] == "" {
			return fmt.Errorf("missing signal template %q", v)
		}
	}
	for _, c := range allResultCategories {
		if t.Results[string(c)] == "" {
			return fmt.Errorf("missing result template %q", c)
		}
	}
	if t.Direction.Up == "" || t.Direction.Down == "" {
		return fmt.Errorf("missing direction templates")
	}
	return nil
}
