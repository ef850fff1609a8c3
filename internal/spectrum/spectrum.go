// Package spectrum holds decoded mass spectra and the read-only store of
// MS1 spectra that XIC construction works on.
package spectrum

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Spectrum is one acquired scan.
// Mz and Intens are index aligned. Both are nil when the scan carries
// no peak data.
type Spectrum struct {
	Index    int     // position in the source file
	ID       string  // native spectrum id
	Time     float64 // seconds, NaN when the scan has no start time
	MSLevel  int
	Centroid bool
	TIC      *float64 // total ion current as recorded in the file
	Mz       []float64
	Intens   []float64
}

var (
	// ErrArrayLength means the m/z and intensity arrays of a spectrum differ in length
	ErrArrayLength = errors.New("spectrum: m/z and intensity arrays differ in length")
)

// NumPeaks returns the number of m/z, intensity pairs
func (s *Spectrum) NumPeaks() int {
	return len(s.Mz)
}

// Validate checks that the peak arrays are aligned
func (s *Spectrum) Validate() error {
	if len(s.Mz) != len(s.Intens) {
		return fmt.Errorf("%w (spectrum %d: %d m/z, %d intensities)",
			ErrArrayLength, s.Index, len(s.Mz), len(s.Intens))
	}
	return nil
}

// Store is an immutable, time ordered collection of MS1 spectra of
// one acquisition. It is safe for concurrent use because nothing
// modifies it after NewStore returns.
type Store struct {
	specs []Spectrum
}

// NewStore builds a store from the MS1 spectra in specs. Spectra of
// other MS levels and spectra without a retention time are ignored.
// Spectra are ordered by time; spectra with equal time keep their
// acquisition order.
func NewStore(specs []Spectrum) (*Store, error) {
	ms1 := make([]Spectrum, 0, len(specs))
	for i := range specs {
		if specs[i].MSLevel != 1 || math.IsNaN(specs[i].Time) {
			continue
		}
		if err := specs[i].Validate(); err != nil {
			return nil, err
		}
		ms1 = append(ms1, specs[i])
	}
	sort.SliceStable(ms1, func(i, j int) bool { return ms1[i].Time < ms1[j].Time })
	return &Store{specs: ms1}, nil
}

// Len returns the number of spectra in the store
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.specs)
}

// At returns the i-th spectrum in time order. The returned value shares
// its peak arrays with the store and must not be modified.
func (s *Store) At(i int) *Spectrum {
	return &s.specs[i]
}

// Each calls fn for every spectrum in time order
func (s *Store) Each(fn func(i int, spec *Spectrum)) {
	for i := 0; i < s.Len(); i++ {
		fn(i, &s.specs[i])
	}
}

// Split separates spectra by MS level. Spectra with levels other than
// 1 and 2 are dropped.
func Split(specs []Spectrum) (ms1, ms2 []Spectrum) {
	for _, s := range specs {
		switch s.MSLevel {
		case 1:
			ms1 = append(ms1, s)
		case 2:
			ms2 = append(ms2, s)
		}
	}
	return ms1, ms2
}
