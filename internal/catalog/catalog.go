// Package catalog defines target compounds, their ions and the per-ion
// results attached by XIC construction, plus loaders for catalog files.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrMalformedLabel means an ion label is not a finite, non-negative number
	ErrMalformedLabel = errors.New("catalog: malformed ion mass label")
	// ErrDuplicateIon means a compound lists the same ion label twice
	ErrDuplicateIon = errors.New("catalog: duplicate ion label")
	// ErrUnknownList means the requested catalog name is not present in the source
	ErrUnknownList = errors.New("catalog: unknown ion list")
)

// ValidationError reports which compound/ion of a catalog is invalid
type ValidationError struct {
	Compound string
	Ion      string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Ion == "" {
		return fmt.Sprintf("compound %q: %v", e.Compound, e.Err)
	}
	return fmt.Sprintf("compound %q, ion %q: %v", e.Compound, e.Ion, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IonData holds the results computed for one ion.
// A nil field means the value is absent, which is different from zero.
type IonData struct {
	MatchedMz   *float64 // m/z of the most intense matched sample
	RT          *float64 // retention time (s) of the most intense matched sample
	MSIntensity *float64 // summed intensity of all matched samples
	LCIntensity *float64 // filled in by LC processing, never by XIC construction
}

// Ion is a target ion of a compound, identified by its mass label
type Ion struct {
	Label string
	Data  IonData
}

// Compound is a named target with its ions. Ion order is significant
// for output and is kept by every operation in this package.
type Compound struct {
	Name string
	Ions []Ion
	Info []string // descriptive text, carried through unchanged
}

// Catalog is an ordered list of compounds for one named ion list.
// A Catalog is not modified after it has been loaded; use Clone to
// obtain a private copy to attach results to.
type Catalog struct {
	Name      string
	Compounds []Compound
}

// ParseMass converts an ion label to its mass
func ParseMass(label string) (float64, error) {
	m, err := strconv.ParseFloat(label, 64)
	if err != nil || math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedLabel, label)
	}
	return m, nil
}

// Clone returns a deep copy of the compound
func (c *Compound) Clone() Compound {
	out := Compound{Name: c.Name}
	if c.Ions != nil {
		out.Ions = make([]Ion, len(c.Ions))
		for i, ion := range c.Ions {
			out.Ions[i] = Ion{Label: ion.Label, Data: ion.Data.clone()}
		}
	}
	if c.Info != nil {
		out.Info = append([]string(nil), c.Info...)
	}
	return out
}

// Masses parses all ion labels of the compound
func (c *Compound) Masses() ([]float64, error) {
	masses := make([]float64, len(c.Ions))
	for i, ion := range c.Ions {
		m, err := ParseMass(ion.Label)
		if err != nil {
			return nil, &ValidationError{Compound: c.Name, Ion: ion.Label, Err: err}
		}
		masses[i] = m
	}
	return masses, nil
}

// Validate checks that all ion labels parse and are unique within the compound
func (c *Compound) Validate() error {
	seen := make(map[string]bool, len(c.Ions))
	for _, ion := range c.Ions {
		if _, err := ParseMass(ion.Label); err != nil {
			return &ValidationError{Compound: c.Name, Ion: ion.Label, Err: err}
		}
		if seen[ion.Label] {
			return &ValidationError{Compound: c.Name, Ion: ion.Label, Err: ErrDuplicateIon}
		}
		seen[ion.Label] = true
	}
	return nil
}

// Clone returns a deep copy of the catalog
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{Name: c.Name, Compounds: make([]Compound, len(c.Compounds))}
	for i := range c.Compounds {
		out.Compounds[i] = c.Compounds[i].Clone()
	}
	return out
}

// Validate validates every compound of the catalog
func (c *Catalog) Validate() error {
	for i := range c.Compounds {
		if err := c.Compounds[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NumIons returns the total number of ions over all compounds
func (c *Catalog) NumIons() int {
	n := 0
	for _, comp := range c.Compounds {
		n += len(comp.Ions)
	}
	return n
}

func (d IonData) clone() IonData {
	return IonData{
		MatchedMz:   copyFloat(d.MatchedMz),
		RT:          copyFloat(d.RT),
		MSIntensity: copyFloat(d.MSIntensity),
		LCIntensity: copyFloat(d.LCIntensity),
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
