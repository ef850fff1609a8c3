package xic

import (
	"github.com/524D/mzxic/internal/catalog"
	"github.com/524D/mzxic/internal/spectrum"
	"github.com/524D/mzxic/internal/workpool"
)

// TraceFunc receives the chromatogram of every ion processed by an Engine.
// It is called concurrently from multiple goroutines.
type TraceFunc func(compound string, ion string, mass float64, c Chromatogram)

// Engine constructs XICs for all ions of a catalog
type Engine struct {
	Accuracy float64        // mass accuracy, the window is +/- WindowWidth*Accuracy
	Pool     *workpool.Pool // shared workers; nil runs everything on the caller
	Trace    TraceFunc      // optional
}

// ionTask is one (compound, ion) pair to match
type ionTask struct {
	comp, ion int
	mass      float64
}

// Construct matches every ion of cat against store and returns a copy of
// cat with the results attached. cat itself is not modified. All ion
// labels are parsed before any matching starts; a malformed label fails
// the whole call with an error wrapping catalog.ErrMalformedLabel.
func (e *Engine) Construct(store *spectrum.Store, cat *catalog.Catalog) (*catalog.Catalog, error) {
	tasks := make([]ionTask, 0, cat.NumIons())
	for ci := range cat.Compounds {
		masses, err := cat.Compounds[ci].Masses()
		if err != nil {
			return nil, err
		}
		for ii, m := range masses {
			tasks = append(tasks, ionTask{comp: ci, ion: ii, mass: m})
		}
	}

	out := cat.Clone()
	g := e.Pool.Group()
	for _, task := range tasks {
		task := task
		g.Go(func() {
			lo, hi := Window(task.mass, e.Accuracy)
			c := Extract(store, lo, hi)
			// Each task owns exactly one ion slot of out
			ion := &out.Compounds[task.comp].Ions[task.ion]
			data := Summarize(c).IonData()
			data.LCIntensity = ion.Data.LCIntensity
			ion.Data = data
			if e.Trace != nil {
				e.Trace(out.Compounds[task.comp].Name, ion.Label, task.mass, c)
			}
		})
	}
	g.Wait()
	return out, nil
}
