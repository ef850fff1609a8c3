// Package batch runs XIC construction over many acquisition files,
// sharing one catalog and one worker pool between all of them.
package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/524D/mzxic/internal/catalog"
	"github.com/524D/mzxic/internal/spectrum"
	"github.com/524D/mzxic/internal/workpool"
	"github.com/524D/mzxic/internal/xic"
)

const (
	// DefaultChunkThreshold is the number of files from which on files are processed in chunks
	DefaultChunkThreshold = 20
	// DefaultMinChunkSize is the smallest number of files in a chunk
	DefaultMinChunkSize = 5
)

var (
	// ErrLoad means an acquisition file could not be loaded
	ErrLoad = errors.New("batch: load failed")
	// ErrTaskFailed means processing of a file was aborted unexpectedly
	ErrTaskFailed = errors.New("batch: task failed")
)

// Loader reads the spectra of one acquisition file
type Loader interface {
	Load(ctx context.Context, path string) (ms1, ms2 []spectrum.Spectrum, err error)
}

// Measurement is the outcome of processing one acquisition file
type Measurement struct {
	Path      string
	MS1       []spectrum.Spectrum
	MS2       []spectrum.Spectrum
	Accuracy  float64
	Compounds *catalog.Catalog // private copy of the catalog with results attached
}

// Result is the tagged per-file outcome of a batch. Measurement is
// always set; Err is set when the file could not be processed normally.
type Result struct {
	Path        string
	Measurement *Measurement
	Err         error
}

// TraceFunc receives every chromatogram built, tagged with the file it came from
type TraceFunc func(path string, compound string, ion string, mass float64, c xic.Chromatogram)

// Orchestrator processes a list of files. The zero value of the numeric
// fields selects the defaults.
type Orchestrator struct {
	Loader         Loader
	Pool           *workpool.Pool // nil means a pool of GOMAXPROCS workers
	ChunkThreshold int
	MinChunkSize   int
	// Progress is called after each file has been processed, possibly
	// from several goroutines at once
	Progress func(done, total int, path string)
	Trace    TraceFunc
}

// ChunkSize returns the number of files per chunk for n files and the
// given number of workers
func ChunkSize(n, workers, minSize int) int {
	if workers < 1 {
		workers = 1
	}
	size := n / (2 * workers)
	if size < minSize {
		size = minSize
	}
	return size
}

type span struct {
	lo, hi int
}

// spans splits n files into contiguous ranges that are processed as one task
func (o *Orchestrator) spans(n, workers int) []span {
	threshold := o.ChunkThreshold
	if threshold <= 0 {
		threshold = DefaultChunkThreshold
	}
	size := 1
	if n >= threshold {
		minSize := o.MinChunkSize
		if minSize <= 0 {
			minSize = DefaultMinChunkSize
		}
		size = ChunkSize(n, workers, minSize)
	}
	spans := make([]span, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		spans = append(spans, span{lo, hi})
	}
	return spans
}

// Run processes all files in paths against cat. The returned results
// are indexed like paths. A file that fails to load gets an empty
// measurement and an error wrapping ErrLoad; the other files are still
// processed. An invalid catalog aborts the whole batch.
func (o *Orchestrator) Run(ctx context.Context, paths []string, cat *catalog.Catalog, accuracy float64) ([]Result, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	pool := o.Pool
	if pool == nil {
		pool = workpool.New(0)
	}

	results := make([]Result, len(paths))
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	var acqErr error
	for _, s := range o.spans(len(paths), pool.Size()) {
		s := s
		if acqErr = pool.Acquire(gctx); acqErr != nil {
			break
		}
		g.Go(func() error {
			defer pool.Release()
			// Files of one chunk are processed one after another
			for i := s.lo; i < s.hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				r, err := o.processFile(gctx, pool, paths[i], cat, accuracy)
				if err != nil {
					return err
				}
				results[i] = r
				n := done.Add(1)
				if o.Progress != nil {
					o.Progress(int(n), len(paths), paths[i])
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if acqErr != nil {
		return nil, acqErr
	}
	return results, nil
}

// processFile loads one file and constructs its XICs. Only errors that
// must abort the batch are returned as error, all others end up in
// the Result.
func (o *Orchestrator) processFile(ctx context.Context, pool *workpool.Pool, path string,
	cat *catalog.Catalog, accuracy float64) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Path:        path,
				Measurement: &Measurement{Path: path, Accuracy: accuracy},
				Err:         fmt.Errorf("%w: %s: %v", ErrTaskFailed, path, r),
			}
			err = nil
		}
	}()

	res = Result{Path: path, Measurement: &Measurement{Path: path, Accuracy: accuracy}}
	ms1, ms2, loadErr := o.Loader.Load(ctx, path)
	store, storeErr := spectrum.NewStore(ms1)
	if loadErr == nil && storeErr != nil {
		loadErr = storeErr
	}
	if loadErr != nil {
		// Go on with no spectra, so the file still gets a catalog with
		// all results absent
		res.Err = fmt.Errorf("%w: %s: %w", ErrLoad, path, loadErr)
		ms1, ms2 = nil, nil
		store, _ = spectrum.NewStore(nil)
	}
	res.Measurement.MS1 = ms1
	res.Measurement.MS2 = ms2

	e := xic.Engine{Accuracy: accuracy, Pool: pool}
	if o.Trace != nil {
		e.Trace = func(compound string, ion string, mass float64, c xic.Chromatogram) {
			o.Trace(path, compound, ion, mass, c)
		}
	}
	comps, err := e.Construct(store, cat)
	if err != nil {
		return res, err
	}
	res.Measurement.Compounds = comps
	return res, nil
}

// ReadFileList reads a list of file paths, one per line. Lines are
// trimmed and empty lines are skipped.
func ReadFileList(r io.Reader) ([]string, error) {
	var paths []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p := strings.TrimSpace(sc.Text())
		if p != "" {
			paths = append(paths, p)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}
