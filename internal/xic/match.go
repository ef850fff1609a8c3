// Package xic builds extracted ion chromatograms: it matches target ion
// masses against MS1 spectra and aggregates the matched intensity.
package xic

import (
	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzxic/internal/catalog"
	"github.com/524D/mzxic/internal/spectrum"
)

// WindowWidth is the half width of the acceptance window in units of mass accuracy
const WindowWidth = 3.0

// MinPeakSamples is the number of matched samples needed to assign a retention time
const MinPeakSamples = 2

// Window returns the acceptance window [mass-3a, mass+3a] for a target
// mass and accuracy a. Masses can't be negative, so lo is clamped at 0.
func Window(mass, accuracy float64) (lo, hi float64) {
	lo = mass - WindowWidth*accuracy
	hi = mass + WindowWidth*accuracy
	if lo < 0 {
		lo = 0
	}
	return lo, hi
}

// Chromatogram holds the matched samples of one ion in scan order
type Chromatogram struct {
	Time   []float64 // acquisition time of the spectrum owning the sample
	Mz     []float64
	Intens []float64
}

// Len returns the number of matched samples
func (c *Chromatogram) Len() int {
	return len(c.Intens)
}

// Extract collects every sample of every spectrum in store whose m/z lies
// in [lo, hi]. The spectra are scanned completely, so the result does not
// depend on m/z ordering within a spectrum.
func Extract(store *spectrum.Store, lo, hi float64) Chromatogram {
	var c Chromatogram
	store.Each(func(_ int, s *spectrum.Spectrum) {
		for j, mz := range s.Mz {
			if mz >= lo && mz <= hi {
				c.Time = append(c.Time, s.Time)
				c.Mz = append(c.Mz, mz)
				c.Intens = append(c.Intens, s.Intens[j])
			}
		}
	})
	return c
}

// Result is the outcome of matching one ion
type Result struct {
	Samples     int      // number of matched samples
	MSIntensity *float64 // sum of matched intensities, nil without samples
	RT          *float64 // time of the most intense sample, nil with fewer than MinPeakSamples samples
	MatchedMz   *float64 // m/z of the most intense sample, nil without samples
}

// Summarize aggregates a chromatogram. The most intense sample is the
// first one in scan order among equal maxima; NaN intensities never win.
func Summarize(c Chromatogram) Result {
	r := Result{Samples: c.Len()}
	if r.Samples == 0 {
		return r
	}
	total := floats.Sum(c.Intens)
	apex := floats.MaxIdx(c.Intens)
	mz := c.Mz[apex]
	r.MSIntensity = &total
	r.MatchedMz = &mz
	if r.Samples >= MinPeakSamples {
		rt := c.Time[apex]
		r.RT = &rt
	}
	return r
}

// Match extracts and aggregates the chromatogram of a target mass
func Match(store *spectrum.Store, mass, accuracy float64) Result {
	lo, hi := Window(mass, accuracy)
	return Summarize(Extract(store, lo, hi))
}

// IonData converts the result to the per-ion record of a catalog
func (r Result) IonData() catalog.IonData {
	return catalog.IonData{
		MatchedMz:   r.MatchedMz,
		RT:          r.RT,
		MSIntensity: r.MSIntensity,
	}
}
