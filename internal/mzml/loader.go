package mzml

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"os"
	"strings"

	"github.com/524D/mzxic/internal/spectrum"
)

// FileLoader loads mzML files from disk. Files ending in ".gz" are
// decompressed on the fly.
type FileLoader struct{}

// Load reads the mzML file at path and returns its MS1 and MS2 spectra
func (FileLoader) Load(ctx context.Context, path string) (ms1, ms2 []spectrum.Spectrum, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		z, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		defer z.Close()
		r = z
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	mzML, err := Read(r)
	if err != nil {
		return nil, nil, err
	}
	specs, err := mzML.Spectra()
	if err != nil {
		return nil, nil, err
	}
	ms1, ms2 = spectrum.Split(specs)
	return ms1, ms2, nil
}
