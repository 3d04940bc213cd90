/*package units handles specter's unit systems and the conversion factors
between them.

A System is an immutable set of factors that convert each base quantity
(mass, length, time, current, temperature) to its CGS equivalent. A Unit is
the vector of exponents over those base quantities for one physical quantity,
e.g. a velocity is Unit{0, 1, -1, 0, 0}. The conversion factor for a field
between two systems is the product of the per-base-quantity factor ratios
raised to the field's exponents, optionally corrected by a power of the
cosmological expansion factor for comoving quantities.
*/
package units

import (
	"fmt"
	"math"
)

// Indices into a Unit's exponent vector and a System's factor vector.
const (
	Mass = iota
	Length
	Time
	Current
	Temperature
	NumBase
)

var baseNames = [NumBase]string{"U_M", "U_L", "U_t", "U_I", "U_T"}

// BaseName returns the conventional short name of a base quantity ("U_M",
// "U_L", ...). These are the names used for on-disk attributes.
func BaseName(q int) string { return baseNames[q] }

// Unit is the exponent vector of a physical quantity over the base
// quantities.
type Unit [NumBase]float32

// Common unit vectors.
var (
	Dimensionless = Unit{0, 0, 0, 0, 0}
	UnitMass      = Unit{1, 0, 0, 0, 0}
	UnitLength    = Unit{0, 1, 0, 0, 0}
	UnitTime      = Unit{0, 0, 1, 0, 0}
	Velocity      = Unit{0, 1, -1, 0, 0}
	Energy        = Unit{1, 2, -2, 0, 0}
	Density       = Unit{1, -3, 0, 0, 0}
	EnergyPerMass = Unit{0, 2, -2, 0, 0}
	Kelvin        = Unit{0, 0, 0, 0, 1}
)

// System is an immutable value type giving the conversion factor from each
// base quantity to CGS.
type System struct {
	Mass, Length, Time, Current, Temperature float64
}

// CGS returns the CGS unit system itself.
func CGS() System {
	return System{1, 1, 1, 1, 1}
}

// base returns the factor for base quantity q.
func (s System) base(q int) float64 {
	switch q {
	case Mass:
		return s.Mass
	case Length:
		return s.Length
	case Time:
		return s.Time
	case Current:
		return s.Current
	case Temperature:
		return s.Temperature
	}
	panic("'Impossible' base quantity index.")
}

// Validate returns an error if any base factor is zero or negative. Systems
// come straight out of configuration files, so this is checked once at load
// time; the conversion functions themselves assume valid systems.
func (s System) Validate() error {
	for q := 0; q < NumBase; q++ {
		if !(s.base(q) > 0) || math.IsInf(s.base(q), 0) {
			return fmt.Errorf("The unit system factor %s = %g is not a "+
				"positive, finite number. Every base-quantity factor must "+
				"be one.", baseNames[q], s.base(q))
		}
	}
	return nil
}

// Factor computes the scalar that converts a quantity with unit vector u from
// the 'from' system to the 'to' system. It is a pure function.
func Factor(from, to System, u Unit) float64 {
	f := 1.0
	for q := 0; q < NumBase; q++ {
		if u[q] == 0 {
			continue
		}
		f *= math.Pow(from.base(q)/to.base(q), float64(u[q]))
	}
	return f
}

// FactorA is Factor with the cosmological correction applied: the result is
// multiplied by a^aExp, where a is the current expansion factor. Pass aExp=0
// for quantities with no comoving scaling.
func FactorA(from, to System, u Unit, aExp float32, a float64) float64 {
	f := Factor(from, to, u)
	if aExp != 0 {
		f *= math.Pow(a, float64(aExp))
	}
	return f
}

// CGSFactor computes the factor that converts a quantity with unit vector u
// from the system s to CGS, without cosmological corrections.
func CGSFactor(s System, u Unit) float64 {
	return Factor(s, CGS(), u)
}

// CGSExpression renders a human-readable expression for the physical CGS
// units of a quantity, e.g. "3.085678e+21 cm * a^1".
func CGSExpression(s System, u Unit, aExp float32) string {
	expr := fmt.Sprintf("%e", CGSFactor(s, u))
	symbols := [NumBase]string{"g", "cm", "s", "A", "K"}
	for q := 0; q < NumBase; q++ {
		switch {
		case u[q] == 1:
			expr += " " + symbols[q]
		case u[q] != 0:
			expr += fmt.Sprintf(" %s^%g", symbols[q], u[q])
		}
	}
	if aExp != 0 {
		expr += fmt.Sprintf(" * a^%g", aExp)
	}
	return expr
}
