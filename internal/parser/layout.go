package parser

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sheriff-sales/internal/config"
)

// Checkbox advance modes.
const (
	// AdvanceFixed consumes the label and every checkbox column.
	AdvanceFixed = "fixed"
	// AdvanceMarked consumes the label and only the columns printed as "Y".
	AdvanceMarked = "marked"
)

// Layout holds the positional constants of one bid-list document version.
type Layout struct {
	CheckboxXMin    float64   `yaml:"checkbox_x_min"`
	CheckboxXMax    float64   `yaml:"checkbox_x_max"`
	CheckboxSpan    int       `yaml:"checkbox_span"`
	CheckboxAdvance string    `yaml:"checkbox_advance"`
	HeaderSkip      int       `yaml:"header_skip"`
	MinFullSlots    int       `yaml:"min_full_slots"`
	IgnoredY        []float64 `yaml:"ignored_y"`
	HeaderPhrases   []string  `yaml:"header_phrases"`
	ReportMarker    string    `yaml:"report_marker"`
}

// DefaultLayout returns the layout of the current Allegheny County bid list.
func DefaultLayout() Layout {
	return Layout{
		CheckboxXMin:    51,
		CheckboxXMax:    52,
		CheckboxSpan:    3,
		CheckboxAdvance: AdvanceFixed,
		HeaderSkip:      15,
		MinFullSlots:    17,
		IgnoredY:        []float64{35.691, 1.5219999999999998},
		HeaderPhrases:   []string{"Master Bid List", "Postponement List Sale"},
		ReportMarker:    "Report Date:",
	}
}

// LayoutFromConfig overlays the configured constants, then the optional
// YAML profile, onto the default layout.
func LayoutFromConfig(cfg config.LayoutConfig) (Layout, error) {
	l := DefaultLayout()
	if cfg.CheckboxXMin != 0 || cfg.CheckboxXMax != 0 {
		l.CheckboxXMin = cfg.CheckboxXMin
		l.CheckboxXMax = cfg.CheckboxXMax
	}
	if cfg.CheckboxSpan > 0 {
		l.CheckboxSpan = cfg.CheckboxSpan
	}
	if cfg.HeaderSkip > 0 {
		l.HeaderSkip = cfg.HeaderSkip
	}
	if cfg.MinFullSlots > 0 {
		l.MinFullSlots = cfg.MinFullSlots
	}
	if len(cfg.IgnoredY) > 0 {
		l.IgnoredY = cfg.IgnoredY
	}
	if cfg.Profile != "" {
		return loadOnto(l, cfg.Profile)
	}
	return l, l.Validate()
}

// LoadLayout reads a YAML layout profile. Keys absent from the file keep
// their default values.
func LoadLayout(path string) (Layout, error) {
	return loadOnto(DefaultLayout(), path)
}

func loadOnto(base Layout, path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, eris.Wrapf(err, "parser: read layout profile %s", path)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return Layout{}, eris.Wrapf(err, "parser: decode layout profile %s", path)
	}
	if err := base.Validate(); err != nil {
		return Layout{}, err
	}
	return base, nil
}

// Validate rejects profiles the parser cannot run against.
func (l Layout) Validate() error {
	if l.CheckboxXMin > l.CheckboxXMax {
		return eris.Errorf("parser: layout: checkbox band [%g,%g] is inverted", l.CheckboxXMin, l.CheckboxXMax)
	}
	if l.CheckboxSpan < 1 {
		return eris.New("parser: layout: checkbox_span must be positive")
	}
	if l.CheckboxAdvance != AdvanceFixed && l.CheckboxAdvance != AdvanceMarked {
		return eris.Errorf("parser: layout: unknown checkbox_advance %q", l.CheckboxAdvance)
	}
	if l.HeaderSkip < 0 {
		return eris.New("parser: layout: header_skip must not be negative")
	}
	if l.MinFullSlots < l.CheckboxSpan+2 {
		return eris.New("parser: layout: min_full_slots is too small to hold a checkbox group")
	}
	if len(l.HeaderPhrases) == 0 {
		return eris.New("parser: layout: at least one header phrase is required")
	}
	return nil
}

func (l Layout) inCheckboxBand(x float64) bool {
	return x >= l.CheckboxXMin && x <= l.CheckboxXMax
}

func (l Layout) ignored(y float64) bool {
	for _, iy := range l.IgnoredY {
		if math.Abs(y-iy) < 1e-9 {
			return true
		}
	}
	return false
}
