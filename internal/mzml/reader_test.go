package mzml

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/524D/mzxic/internal/spectrum"
)

// Minimal indexed mzML with one MS1 (retention time in minutes) and
// one MS2 spectrum (no binary data)
const testIndexedMzML = `<?xml version="1.0" encoding="ISO-8859-1"?>
<indexedmzML xmlns="http://psi.hupo.org/ms/mzml">
 <mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
  <cvList count="1"><cv id="MS"/></cvList>
  <run id="r1">
   <spectrumList count="2">
    <spectrum index="0" id="scan=1" defaultArrayLength="2">
     <cvParam accession="MS:1000511" name="ms level" value="1"/>
     <cvParam accession="MS:1000127" name="centroid spectrum"/>
     <cvParam accession="MS:1000285" name="total ion current" value="300"/>
     <scanList count="1">
      <scan>
       <cvParam accession="MS:1000016" name="scan start time" value="0.5" unitAccession="UO:0000031"/>
      </scan>
     </scanList>
     <binaryDataArrayList count="2">
      <binaryDataArray encodedLength="24">
       <cvParam accession="MS:1000523"/>
       <cvParam accession="MS:1000576"/>
       <cvParam accession="MS:1000514"/>
       <binary>AAAAAAAAWUAAAAAAAMBpQA==</binary>
      </binaryDataArray>
      <binaryDataArray encodedLength="24">
       <cvParam accession="MS:1000523"/>
       <cvParam accession="MS:1000576"/>
       <cvParam accession="MS:1000515"/>
       <binary>AAAAAAAAWUAAAAAAAABpQA==</binary>
      </binaryDataArray>
     </binaryDataArrayList>
    </spectrum>
    <spectrum index="1" id="scan=2" defaultArrayLength="0">
     <cvParam accession="MS:1000511" name="ms level" value="2"/>
     <scanList count="1">
      <scan>
       <cvParam accession="MS:1000016" name="scan start time" value="31.5" unitAccession="UO:0000010"/>
      </scan>
     </scanList>
    </spectrum>
   </spectrumList>
  </run>
 </mzML>
 <indexList count="0"/>
</indexedmzML>
`

func TestReadIndexed(t *testing.T) {
	f, err := Read(strings.NewReader(testIndexedMzML))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	n := f.NumSpecs()
	if n != 2 {
		t.Fatalf("NumSpecs: %d, should be 2", n)
	}

	rt, err := f.RetentionTime(0)
	if err != nil {
		t.Errorf("RetentionTime: error return %v", err)
	}
	if rt != 30.0 {
		t.Errorf("RetentionTime: %f, should be 30.0", rt)
	}
	rt, _ = f.RetentionTime(1)
	if rt != 31.5 {
		t.Errorf("RetentionTime: %f, should be 31.5", rt)
	}
	_, err = f.RetentionTime(2)
	if err != ErrInvalidScanIndex {
		t.Errorf("RetentionTime: error return %v, should be ErrInvalidScanIndex", err)
	}

	centroid, err := f.Centroid(0)
	if err != nil {
		t.Errorf("Centroid: error return %v", err)
	}
	if !centroid {
		t.Errorf("Centroid: false, should be true")
	}
	centroid, _ = f.Centroid(1)
	if centroid {
		t.Errorf("Centroid: true, should be false")
	}

	tic, _ := f.TotalIonCurrent(0)
	if tic != 300 {
		t.Errorf("TotalIonCurrent: %f, should be 300", tic)
	}
	tic, _ = f.TotalIonCurrent(1)
	if !math.IsNaN(tic) {
		t.Errorf("TotalIonCurrent: %f, should be NaN", tic)
	}

	msLevel, err := f.MSLevel(1)
	if err != nil {
		t.Errorf("MSLevel: error return %v", err)
	}
	if msLevel != 2 {
		t.Errorf("MSLevel: %d, should be 2", msLevel)
	}
	_, err = f.MSLevel(-1)
	if err != ErrInvalidScanIndex {
		t.Errorf("MSLevel: error return %v, should be ErrInvalidScanIndex", err)
	}

	specs, err := f.Spectra()
	if err != nil {
		t.Fatalf("Spectra: error return %v", err)
	}
	if specs[1].Mz != nil || specs[1].Intens != nil {
		t.Errorf("Spectra: MS2 without binary data has peaks %+v", specs[1])
	}
	if specs[0].ID != `scan=1` || specs[0].MSLevel != 1 || specs[0].Time != 30.0 {
		t.Errorf("Spectra: %+v", specs[0])
	}
	m := specs[0]
	if len(m.Mz) != 2 || m.Mz[0] != 100.0 || m.Mz[1] != 206.0 || m.Intens[0] != 100.0 || m.Intens[1] != 200.0 {
		t.Errorf("Spectra: peaks %v %v", m.Mz, m.Intens)
	}
	if !m.Centroid || m.TIC == nil || *m.TIC != 300 {
		t.Errorf("Spectra: centroid %v, TIC %v, should be true, 300", m.Centroid, m.TIC)
	}
	if specs[1].Centroid || specs[1].TIC != nil {
		t.Errorf("Spectra: MS2 centroid %v, TIC %v, should be false, nil", specs[1].Centroid, specs[1].TIC)
	}
}

func TestReadNoRetentionTime(t *testing.T) {
	doc := strings.Replace(testIndexedMzML,
		`<cvParam accession="MS:1000016" name="scan start time" value="0.5" unitAccession="UO:0000031"/>`, ``, 1)
	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	rt, err := f.RetentionTime(0)
	if err != nil {
		t.Errorf("RetentionTime: error return %v", err)
	}
	if !math.IsNaN(rt) {
		t.Errorf("RetentionTime: %f, should be NaN", rt)
	}
	specs, err := f.Spectra()
	if err != nil {
		t.Fatalf("Spectra: error return %v", err)
	}
	store, err := spectrum.NewStore(specs)
	if err != nil {
		t.Fatalf("NewStore: error return %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("NewStore: %d spectra, should be 0", store.Len())
	}
}

func TestReadNoContent(t *testing.T) {
	_, err := Read(strings.NewReader(`<?xml version="1.0"?><other/>`))
	if err != ErrNoSpectra {
		t.Errorf("Read: error return %v, should be ErrNoSpectra", err)
	}
}

func TestReadNumpress(t *testing.T) {
	doc := strings.Replace(testIndexedMzML, `<cvParam accession="MS:1000576"/>`,
		`<cvParam accession="MS:1002312"/>`, 1)
	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	_, err = f.Spectrum(0)
	if !errors.Is(err, ErrUnsupportedCompression) {
		t.Errorf("Spectrum: error return %v, should be ErrUnsupportedCompression", err)
	}
}

func testSpectra() []spectrum.Spectrum {
	tic := 62.5
	return []spectrum.Spectrum{
		{ID: "s1", Time: 1.25, MSLevel: 1, Centroid: true, TIC: &tic, Mz: []float64{59.0139, 73.0295}, Intens: []float64{50, 12.5}},
		{ID: "s2", Time: 2.5, MSLevel: 2, Mz: []float64{31.9}, Intens: []float64{7}},
		{ID: "s3", Time: 3.75, MSLevel: 1},
	}
}

func TestWriteRead(t *testing.T) {
	for _, opts := range []WriteOptions{{}, {Zlib: true}, {Bits64: true}, {Zlib: true, Bits64: true}} {
		var buf bytes.Buffer
		in := testSpectra()
		if err := Write(&buf, in, opts); err != nil {
			t.Fatalf("Write %+v: error return %v", opts, err)
		}
		f, err := Read(&buf)
		if err != nil {
			t.Fatalf("Read %+v: error return %v", opts, err)
		}
		out, err := f.Spectra()
		if err != nil {
			t.Fatalf("Spectra %+v: error return %v", opts, err)
		}
		if len(out) != len(in) {
			t.Fatalf("Spectra %+v: %d spectra, should be %d", opts, len(out), len(in))
		}
		// 32-bit encoding loses precision
		tol := 1e-4
		if opts.Bits64 {
			tol = 0
		}
		for i := range in {
			if out[i].ID != in[i].ID || out[i].MSLevel != in[i].MSLevel || out[i].Time != in[i].Time ||
				out[i].Centroid != in[i].Centroid || (out[i].TIC == nil) != (in[i].TIC == nil) {
				t.Errorf("%+v spectrum %d: %+v, should be %+v", opts, i, out[i], in[i])
			}
			if in[i].TIC != nil && out[i].TIC != nil && *out[i].TIC != *in[i].TIC {
				t.Errorf("%+v spectrum %d: TIC %f, should be %f", opts, i, *out[i].TIC, *in[i].TIC)
			}
			if len(out[i].Mz) != len(in[i].Mz) {
				t.Errorf("%+v spectrum %d: %d peaks, should be %d", opts, i, len(out[i].Mz), len(in[i].Mz))
				continue
			}
			for j := range in[i].Mz {
				if math.Abs(out[i].Mz[j]-in[i].Mz[j]) > tol || math.Abs(out[i].Intens[j]-in[i].Intens[j]) > tol {
					t.Errorf("%+v spectrum %d peak %d: %f/%f, should be %f/%f", opts, i, j,
						out[i].Mz[j], out[i].Intens[j], in[i].Mz[j], in[i].Intens[j])
				}
			}
		}
	}
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "a.mzML")
	wf, err := os.Create(plain)
	if err != nil {
		t.Fatalf("Create %s error: %v", plain, err)
	}
	if err := Write(wf, testSpectra(), WriteOptions{Zlib: true, Bits64: true}); err != nil {
		t.Fatalf("Write: error return %v", err)
	}
	wf.Close()

	gz := filepath.Join(dir, "b.mzML.gz")
	wf, err = os.Create(gz)
	if err != nil {
		t.Fatalf("Create %s error: %v", gz, err)
	}
	zw := gzip.NewWriter(wf)
	if err := Write(zw, testSpectra(), WriteOptions{Bits64: true}); err != nil {
		t.Fatalf("Write: error return %v", err)
	}
	zw.Close()
	wf.Close()

	for _, fn := range []string{plain, gz} {
		ms1, ms2, err := FileLoader{}.Load(context.Background(), fn)
		if err != nil {
			t.Fatalf("Load %s: error return %v", fn, err)
		}
		if len(ms1) != 2 || len(ms2) != 1 {
			t.Errorf("Load %s: %d MS1 and %d MS2 spectra, should be 2 and 1", fn, len(ms1), len(ms2))
		}
	}

	_, _, err = FileLoader{}.Load(context.Background(), filepath.Join(dir, "missing.mzML"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load missing file: error return %v, should be os.ErrNotExist", err)
	}
}
