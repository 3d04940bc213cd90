/*package hydro contributes the gas particle fields: which quantities a gas
shard stores, what units they carry, and how the ones that aren't stored are
derived. Other physics modules contribute their own descriptor lists, and
field.Merge combines them into one output schema.
*/
package hydro

import (
	"fmt"

	"github.com/specter-sim/specter/lib/field"
	"github.com/specter-sim/specter/lib/part"
	"github.com/specter-sim/specter/lib/units"
)

// CategoryName is the group gas particles are stored under in snapshots.
const CategoryName = "PartType0"

// Gamma is the adiabatic index of the gas.
const Gamma = 5.0 / 3.0

// Gas returns the descriptors of every gas field, stored and derived.
func Gas() []field.Descriptor {
	return []field.Descriptor{
		{
			Name: part.CoordinatesField, Type: field.Vec64,
			Units: units.UnitLength, AExp: 1, Compulsory: true,
			Description: "Co-moving positions of the particles",
		},
		{
			Name: part.SmoothingLengthsField, Type: field.Float32,
			Units: units.UnitLength, AExp: 1, Compulsory: true,
			Description: "Co-moving smoothing lengths (FWHM of the kernel) " +
				"of the particles",
		},
		{
			Name: "Velocities", Type: field.Vec32,
			Units: units.Velocity, AExp: 0, Compulsory: true,
			Description: "Peculiar velocities of the particles. This is " +
				"(a * dx/dt) where x is the co-moving position.",
		},
		{
			Name: "Masses", Type: field.Float32,
			Units: units.UnitMass, AExp: 0, Compulsory: true,
			Description: "Masses of the particles",
		},
		{
			Name: "Densities", Type: field.Float32,
			Units: units.Density, AExp: -3, Compulsory: false,
			Description: "Co-moving mass densities of the particles",
		},
		{
			Name: "InternalEnergies", Type: field.Float32,
			Units: units.EnergyPerMass, AExp: -2, Compulsory: false,
			Description: "Co-moving thermal energies per unit mass of the " +
				"particles",
		},
		{
			Name: "ParticleIDs", Type: field.Uint64,
			Units: units.Dimensionless, AExp: 0, Compulsory: true,
			Description: "Unique IDs of the particles",
		},
		{
			Name: "Pressures", Type: field.Float32,
			Units: units.Unit{1, -1, -2, 0, 0}, AExp: -5, Compulsory: false,
			Description: "Co-moving gas pressures of the particles, " +
				"computed from their densities and internal energies",
			Derive: derivePressures,
		},
	}
}

// derivePressures computes gamma-law pressures, P = (Gamma - 1) * rho * u,
// for the selected particles.
func derivePressures(sh *part.Shard, sel []int) (interface{}, error) {
	rho, ok1 := sh.Fields["Densities"].([]float32)
	u, ok2 := sh.Fields["InternalEnergies"].([]float32)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("Pressures are derived from Densities and " +
			"InternalEnergies, but the shard doesn't store both as " +
			"[]float32 fields.")
	}

	if sel == nil {
		out := make([]float32, sh.Len())
		for i := range out {
			out[i] = (Gamma - 1) * rho[i] * u[i]
		}
		return out, nil
	}

	out := make([]float32, len(sel))
	for i, j := range sel {
		out[i] = (Gamma - 1) * rho[j] * u[j]
	}
	return out, nil
}
