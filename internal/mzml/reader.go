package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/net/html/charset"

	"github.com/524D/mzxic/internal/spectrum"
)

// CV terms used when reading spectra
const (
	cvMSLevel           = `MS:1000511`
	cvCentroid          = `MS:1000127`
	cvTotalIonCurrent   = `MS:1000285`
	cvScanStartTime     = `MS:1000016`
	cvUnitMinute        = `UO:0000031`
	cvUnitMinuteLegacy  = `MS:1000038`
	cvZlibCompression   = `MS:1000574`
	cvMzArray           = `MS:1000514`
	cvIntensityArray    = `MS:1000515`
	cvFloat64           = `MS:1000523`
	cvNumpressLinear    = `MS:1002312`
	cvNumpressPic       = `MS:1002313`
	cvNumpressSlof      = `MS:1002314`
	cvNumpressLinearZ   = `MS:1002746`
	cvNumpressPicZ      = `MS:1002747`
	cvNumpressSlofZ     = `MS:1002748`
)

// Read reads mzML file from an io.Reader
func Read(reader io.Reader) (MzML, error) {
	var mzML MzML

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	// We are only interested in mzML content, so skip over indexedmzML
	// and everything else
	found := false
	for {
		t, tokenErr := d.Token()
		if tokenErr != nil {
			if tokenErr == io.EOF {
				break
			}
			return mzML, tokenErr
		}
		if se, ok := t.(xml.StartElement); ok && se.Name.Local == "mzML" {
			if err := d.DecodeElement(&mzML.content, &se); err != nil {
				return mzML, err
			}
			found = true
		}
	}
	if !found {
		return mzML, ErrNoSpectra
	}

	err := mzML.traverseScan()
	return mzML, err
}

// binaryDataPars decodes the CV terms in a mzML binarydata section
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312..MS:1002314, MS:1002746..MS:1002748 MS-Numpress variants
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
func binaryDataPars(binaryDataArray *binaryDataArray) (
	zlibCompression, bits64, mzArray, intensityArray bool, err error) {
	for _, cvParam := range binaryDataArray.CvPar {
		switch cvParam.Accession {
		case cvZlibCompression:
			zlibCompression = true
		case cvMzArray:
			mzArray = true
		case cvIntensityArray:
			intensityArray = true
		case cvFloat64:
			bits64 = true
		case cvNumpressLinear, cvNumpressPic, cvNumpressSlof,
			cvNumpressLinearZ, cvNumpressPicZ, cvNumpressSlofZ:
			err = fmt.Errorf("%w (CV term %s)", ErrUnsupportedCompression, cvParam.Accession)
		}
	}
	return zlibCompression, bits64, mzArray, intensityArray, err
}

// decodeBinary turns the base64 (and optionally zlib compressed) content
// of a binaryDataArray into float64 values
func decodeBinary(b64 string, zlibCompression, bits64 bool) ([]float64, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if zlibCompression {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		data, err = io.ReadAll(z)
		if err != nil {
			return nil, err
		}
	}
	// Some code duplication below in order to optimize loops
	var values []float64
	if bits64 {
		cnt := len(data) / 8
		values = make([]float64, cnt)
		for i := 0; i < cnt; i++ {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	} else {
		cnt := len(data) / 4
		values = make([]float64, cnt)
		for i := 0; i < cnt; i++ {
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
	}
	return values, nil
}

// readArrays returns the m/z and intensity arrays of a spectrum.
// Both are nil if the spectrum has no binary data.
func (f *MzML) readArrays(scanIndex int) (mz, intens []float64, err error) {
	for i := range f.content.Run.SpectrumList.Spectrum[scanIndex].BinaryDataArrayList.BinaryDataArray {
		b := &f.content.Run.SpectrumList.Spectrum[scanIndex].BinaryDataArrayList.BinaryDataArray[i]
		zlibCompression, bits64, mzArray, intensityArray, err := binaryDataPars(b)
		if err != nil {
			return nil, nil, err
		}
		// We are only interrested in mz and intensity
		if !mzArray && !intensityArray {
			continue
		}
		values, err := decodeBinary(b.Binary, zlibCompression, bits64)
		if err != nil {
			return nil, nil, err
		}
		if mzArray {
			mz = values
		} else {
			intens = values
		}
	}
	return mz, intens, nil
}

// NumSpecs returns the number of spectra
func (f *MzML) NumSpecs() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

// RetentionTime returns the retention time of a spectrum in seconds,
// or NaN if the spectrum has no scan start time
func (f *MzML) RetentionTime(scanIndex int) (float64, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0.0, ErrInvalidScanIndex
	}
	for _, scan := range f.content.Run.SpectrumList.Spectrum[scanIndex].ScanList.Scan {
		for _, cvParam := range scan.CvPar {
			if cvParam.Accession == cvScanStartTime {
				retentionTime, err := strconv.ParseFloat(cvParam.Value, 64)
				// Check if the retention time is in minutes, otherwise assume it's seconds
				if cvParam.UnitAccession == cvUnitMinute ||
					cvParam.UnitAccession == cvUnitMinuteLegacy {
					retentionTime *= 60
				}

				return retentionTime, err
			}
		}
	}
	return math.NaN(), nil
}

// Centroid returns true is the spectrum contains centroid peaks
func (f *MzML) Centroid(scanIndex int) (bool, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return false, ErrInvalidScanIndex
	}

	for _, cvParam := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cvParam.Accession == cvCentroid {
			return true, nil
		}
	}
	return false, nil
}

// TotalIonCurrent returns the total ion current, or NaN if not found
func (f *MzML) TotalIonCurrent(scanIndex int) (float64, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0.0, ErrInvalidScanIndex
	}

	for _, cvParam := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cvParam.Accession == cvTotalIonCurrent {
			return strconv.ParseFloat(cvParam.Value, 64)
		}
	}
	return math.NaN(), nil
}

// MSLevel returns the MS level of a scan
func (f *MzML) MSLevel(scanIndex int) (int, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0, ErrInvalidScanIndex
	}

	for _, cvParam := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cvParam.Accession == cvMSLevel {
			msLevel, err := strconv.ParseInt(cvParam.Value, 10, 64)
			return int(msLevel), err
		}
	}
	return 1, nil // If nothing else, guess it's MS1
}

// Spectrum converts a single scan into a spectrum.Spectrum
func (f *MzML) Spectrum(scanIndex int) (spectrum.Spectrum, error) {
	var s spectrum.Spectrum
	var err error

	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return s, ErrInvalidScanIndex
	}
	s.Index = scanIndex
	s.ID = f.index2id[scanIndex]
	if s.MSLevel, err = f.MSLevel(scanIndex); err != nil {
		return s, err
	}
	if s.Time, err = f.RetentionTime(scanIndex); err != nil {
		return s, err
	}
	if s.Centroid, err = f.Centroid(scanIndex); err != nil {
		return s, err
	}
	tic, err := f.TotalIonCurrent(scanIndex)
	if err != nil {
		return s, err
	}
	if !math.IsNaN(tic) {
		s.TIC = &tic
	}
	s.Mz, s.Intens, err = f.readArrays(scanIndex)
	if err != nil {
		return s, err
	}
	// A spectrum with only one of the two arrays has no usable peak data
	if s.Mz == nil || s.Intens == nil {
		s.Mz, s.Intens = nil, nil
	}
	return s, nil
}

// Spectra decodes all spectra in file order
func (f *MzML) Spectra() ([]spectrum.Spectrum, error) {
	specs := make([]spectrum.Spectrum, 0, f.NumSpecs())
	for i := 0; i < f.NumSpecs(); i++ {
		s, err := f.Spectrum(i)
		if err != nil {
			return nil, fmt.Errorf("spectrum %d: %w", i, err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// traverseScan checks the scan indices and fills f.index2id
func (f *MzML) traverseScan() error {
	f.index2id = make([]string, f.NumSpecs())

	for i := range f.content.Run.SpectrumList.Spectrum {
		if i != f.content.Run.SpectrumList.Spectrum[i].Index {
			return ErrInvalidScanIndex
		}
		f.index2id[i] = f.content.Run.SpectrumList.Spectrum[i].ID
	}
	return nil
}
