package container

import (
	"github.com/specter-sim/specter/lib/units"
)

// WriteUnitSystem creates a group recording a unit system as the CGS value of
// each base quantity. Both the sightline and snapshot writers store two of
// these, one for the file's units and one for the code's internal units.
func WriteUnitSystem(f *File, group string, sys units.System) error {
	g, err := f.CreateGroup(group)
	if err != nil {
		return err
	}

	attrs := []struct {
		name  string
		value float64
	}{
		{"Unit mass in cgs (U_M)", sys.Mass},
		{"Unit length in cgs (U_L)", sys.Length},
		{"Unit time in cgs (U_t)", sys.Time},
		{"Unit current in cgs (U_I)", sys.Current},
		{"Unit temperature in cgs (U_T)", sys.Temperature},
	}
	for _, a := range attrs {
		if err := g.SetAttr(a.name, a.value); err != nil {
			return err
		}
	}
	return nil
}
