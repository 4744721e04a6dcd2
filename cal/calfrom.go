package cal

import "sort"

// CalType identifies the kind of calibration a table holds. The external
// application tool keys interpolation defaults and precedence off this.
type CalType string

const (
	CalTypeBandpass     CalType = "bandpass"
	CalTypeGaincal      CalType = "gaincal"
	CalTypeTsys         CalType = "tsys"
	CalTypeWVR          CalType = "wvr"
	CalTypeAntpos       CalType = "antpos"
	CalTypeDelay        CalType = "delay"
	CalTypePolarization CalType = "polarization"
	CalTypeAmplitude    CalType = "amplitude"
	CalTypeFlux         CalType = "flux"
	CalTypeUVCont       CalType = "uvcont"
)

// Interp selects how solutions are interpolated onto the data, split into a
// time rule and a frequency rule as the external tool expects.
type Interp struct {
	Time string `yaml:"tinterp"`
	Freq string `yaml:"finterp"`
}

// CalFrom describes one calibration table and how to apply it. It is an
// immutable value: built once by the stage that produced the table, compared
// structurally, and shared by pointer across every CalApplication that
// references it.
type CalFrom struct {
	Table     string      // calibration table path
	CalType   CalType     //
	Interp    Interp      //
	SpwMap    map[int]int // data spw -> calibration spw; absent keys map identically
	CalWt     bool        // apply calibration to data weights as well
	GainField string      // restrict solutions to this field when non-empty
}

// Equal reports structural equality, including the spw map.
func (f CalFrom) Equal(o CalFrom) bool {
	if f.Table != o.Table || f.CalType != o.CalType || f.Interp != o.Interp ||
		f.CalWt != o.CalWt || f.GainField != o.GainField {
		return false
	}
	if len(f.SpwMap) != len(o.SpwMap) {
		return false
	}
	for k, v := range f.SpwMap {
		if ov, ok := o.SpwMap[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// DenseSpwMap flattens the spw map into the external tool's positional list
// form: index i holds the calibration spw used for data spw i. Returns nil
// when the map is empty (identity mapping).
func (f CalFrom) DenseSpwMap() []int {
	if len(f.SpwMap) == 0 {
		return nil
	}
	maxSpw := 0
	keys := make([]int, 0, len(f.SpwMap))
	for k := range f.SpwMap {
		keys = append(keys, k)
		if k > maxSpw {
			maxSpw = k
		}
	}
	sort.Ints(keys)
	dense := make([]int, maxSpw+1)
	for i := range dense {
		dense[i] = i
	}
	for _, k := range keys {
		dense[k] = f.SpwMap[k]
	}
	return dense
}
