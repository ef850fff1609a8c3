// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/524D/mzxic/internal/catalog"
	"github.com/524D/mzxic/internal/xic"
)

// debugTracer prints the chromatograms of all ions with a mass in
// [minMz, maxMz] and remembers which of them were ever matched
type debugTracer struct {
	w            io.Writer
	minMz, maxMz float64

	mux     sync.Mutex
	matched map[string]int // compound+ion -> number of files with samples
}

func newDebugTracer(w io.Writer, mzRange string) (*debugTracer, error) {
	minMz, maxMz, err := parseFloat64Range(mzRange, 0, math.MaxFloat64)
	if err != nil {
		return nil, fmt.Errorf("debug range %q: %w", mzRange, err)
	}
	return &debugTracer{w: w, minMz: minMz, maxMz: maxMz, matched: map[string]int{}}, nil
}

func (d *debugTracer) inRange(mass float64) bool {
	return mass >= d.minMz && mass <= d.maxMz
}

func (d *debugTracer) trace(path string, compound string, ion string, mass float64, c xic.Chromatogram) {
	if !d.inRange(mass) {
		return
	}
	// Lock for the whole output, so lines of different ions don't interleave
	d.mux.Lock()
	defer d.mux.Unlock()
	if c.Len() > 0 {
		d.matched[compound+"\x00"+ion]++
	}
	r := xic.Summarize(c)
	fmt.Fprintf(d.w, "File:%s compound:%s ion:%s mass:%f samples:%d", path, compound, ion, mass, r.Samples)
	if r.RT != nil {
		fmt.Fprintf(d.w, " rt:%f intens:%f", *r.RT, *r.MSIntensity)
	}
	fmt.Fprintf(d.w, "\n")
	for i := range c.Intens {
		fmt.Fprintf(d.w, "%d rt:%f mz:%f intens:%f\n", i, c.Time[i], c.Mz[i], c.Intens[i])
	}
}

// listUnmatched prints the ions in range that had no samples in any file
func (d *debugTracer) listUnmatched(cat *catalog.Catalog) {
	fmt.Fprintf(d.w, "Unmatched ions\n")
	d.mux.Lock()
	defer d.mux.Unlock()
	for i := range cat.Compounds {
		comp := &cat.Compounds[i]
		masses, err := comp.Masses()
		if err != nil {
			continue
		}
		for j, ion := range comp.Ions {
			if !d.inRange(masses[j]) {
				continue
			}
			if d.matched[comp.Name+"\x00"+ion.Label] == 0 {
				fmt.Fprintf(d.w, "%s ion:%s\n", comp.Name, ion.Label)
			}
		}
	}
}
