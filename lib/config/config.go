/*package config parses specter's YAML parameter files. The layout mirrors
the parameter files astronomers already feed their simulation codes: named
sections for the unit systems, the sightline parameters, and the snapshot
parameters, plus flat switch maps for turning individual output fields off.
*/
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/specter-sim/specter/lib/units"
)

// UnitSystem is the on-file form of a unit system: the CGS value of each
// base quantity.
type UnitSystem struct {
	UnitMassInCGS        float64 `yaml:"UnitMass_in_cgs"`
	UnitLengthInCGS      float64 `yaml:"UnitLength_in_cgs"`
	UnitTimeInCGS        float64 `yaml:"UnitTime_in_cgs"`
	UnitCurrentInCGS     float64 `yaml:"UnitCurrent_in_cgs"`
	UnitTemperatureInCGS float64 `yaml:"UnitTemp_in_cgs"`
}

// System converts the on-file form to a units.System.
func (u *UnitSystem) System() units.System {
	return units.System{
		Mass: u.UnitMassInCGS, Length: u.UnitLengthInCGS,
		Time: u.UnitTimeInCGS, Current: u.UnitCurrentInCGS,
		Temperature: u.UnitTemperatureInCGS,
	}
}

// LineOfSight configures sightline extraction.
type LineOfSight struct {
	NumAlongXY int `yaml:"num_along_xy"`
	NumAlongYZ int `yaml:"num_along_yz"`
	NumAlongXZ int `yaml:"num_along_xz"`

	// The allowed piercing-point coordinate ranges along each axis.
	RangeMin []float64 `yaml:"allowed_los_range_min"`
	RangeMax []float64 `yaml:"allowed_los_range_max"`

	Basename    string `yaml:"basename"`
	Compression int    `yaml:"compression"`
	ChunkRows   int64  `yaml:"chunk_rows"`
}

// Snapshots configures snapshot output.
type Snapshots struct {
	Basename string `yaml:"basename"`
}

// Config is the full parameter file.
type Config struct {
	Threads int    `yaml:"Threads"`
	Seed    uint64 `yaml:"Seed"`

	InternalUnitSystem UnitSystem  `yaml:"InternalUnitSystem"`
	SnapshotUnitSystem UnitSystem  `yaml:"SnapshotUnitSystem"`
	LOS                LineOfSight `yaml:"LineOfSight"`
	Snapshots          Snapshots   `yaml:"Snapshots"`

	// Per-field output switches, keyed by field name for sightlines and by
	// "Category:Field" for snapshots. Every field not named defaults to on.
	SelectOutputLOS map[string]bool `yaml:"SelectOutputLOS"`
	SelectOutput    map[string]bool `yaml:"SelectOutput"`
}

// cgsUnits is the default for both unit systems: plain CGS.
func cgsUnits() UnitSystem {
	return UnitSystem{1, 1, 1, 1, 1}
}

// Parse parses a parameter file's bytes, applying defaults for everything
// the file leaves out.
func Parse(b []byte) (*Config, error) {
	cfg := &Config{
		Threads:            -1,
		Seed:               1,
		InternalUnitSystem: cgsUnits(),
		SnapshotUnitSystem: cgsUnits(),
		LOS: LineOfSight{
			Basename:    "los",
			Compression: 1,
		},
		Snapshots: Snapshots{Basename: "snapshot"},
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("The parameter file isn't valid YAML: %s",
			err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFile is Parse on a named file.
func ParseFile(fname string) (*Config, error) {
	b, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("Could not read the parameter file %s: %s",
			fname, err.Error())
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("In the parameter file %s: %s",
			fname, err.Error())
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if err := cfg.InternalUnitSystem.System().Validate(); err != nil {
		return fmt.Errorf("In InternalUnitSystem: %s", err.Error())
	}
	if err := cfg.SnapshotUnitSystem.System().Validate(); err != nil {
		return fmt.Errorf("In SnapshotUnitSystem: %s", err.Error())
	}

	los := &cfg.LOS
	if los.NumAlongXY < 0 || los.NumAlongYZ < 0 || los.NumAlongXZ < 0 {
		return fmt.Errorf("The LineOfSight section asks for a negative "+
			"number of sightlines (%d, %d, %d).",
			los.NumAlongXY, los.NumAlongYZ, los.NumAlongXZ)
	}

	for _, r := range [][]float64{los.RangeMin, los.RangeMax} {
		if len(r) != 0 && len(r) != 3 {
			return fmt.Errorf("allowed_los_range_min and "+
				"allowed_los_range_max must each have exactly three "+
				"entries, but one has %d.", len(r))
		}
	}
	if len(los.RangeMin) == 3 && len(los.RangeMax) == 3 {
		for k := 0; k < 3; k++ {
			if los.RangeMin[k] > los.RangeMax[k] {
				return fmt.Errorf("The allowed sightline range along axis "+
					"%d is [%g, %g], which is empty.",
					k, los.RangeMin[k], los.RangeMax[k])
			}
		}
	}

	if los.Compression < 0 {
		return fmt.Errorf("The sightline compression level %d is negative.",
			los.Compression)
	}
	return nil
}

// Range returns the sightline piercing-point ranges, falling back to the
// full box for any axis the file doesn't constrain.
func (cfg *Config) Range(box [3]float64) (min, max [3]float64) {
	max = box
	if len(cfg.LOS.RangeMin) == 3 {
		copy(min[:], cfg.LOS.RangeMin)
	}
	if len(cfg.LOS.RangeMax) == 3 {
		copy(max[:], cfg.LOS.RangeMax)
	}
	return min, max
}

// SelectedLOS reports whether a field should appear in sightline output.
// Fields the file doesn't mention are on.
func (cfg *Config) SelectedLOS(name string) bool {
	on, ok := cfg.SelectOutputLOS[name]
	return !ok || on
}

// Selected reports whether a field should appear in snapshot output, keyed
// by "Category:Field". Fields the file doesn't mention are on.
func (cfg *Config) Selected(category, name string) bool {
	on, ok := cfg.SelectOutput[category+":"+name]
	return !ok || on
}
