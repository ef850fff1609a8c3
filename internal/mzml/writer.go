package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"io"
	"math"
	"strconv"

	"github.com/524D/mzxic/internal/spectrum"
)

// WriteOptions selects the binary encoding used by Write
type WriteOptions struct {
	Zlib   bool // zlib compress binary arrays
	Bits64 bool // 64-bit floats instead of 32-bit
}

// We define a separte struct for writing XML because it is not possible
// to write namespace info otherwise
type mzMLContentWrite struct {
	XMLName xml.Name `xml:"http://psi.hupo.org/ms/mzml mzML"`
	Sl1     string   `xml:"xsi:schemaLocation,attr"`
	Version string   `xml:"version,attr"`
	Sl2     string   `xml:"xmlns:xsi,attr"`
	Run     run      `xml:"run"`
}

// Write writes spectra as a minimal mzML document. Only the information
// that Read uses is written: ms level, centroid flag, total ion current,
// scan start time (seconds) and the m/z and intensity arrays.
func Write(writer io.Writer, specs []spectrum.Spectrum, opts WriteOptions) error {
	if _, err := io.WriteString(writer, `<?xml version="1.0" encoding="utf-8"?>
`); err != nil {
		return err
	}
	enc := xml.NewEncoder(writer)
	enc.Indent(``, `  `)

	var content mzMLContentWrite
	content.Sl1 = "http://psi.hupo.org/ms/mzml http://psidev.info/files/ms/mzML/xsd/mzML1.1.0.xsd"
	content.Version = "1.1.0"
	content.Sl2 = "http://www.w3.org/2001/XMLSchema-instance"
	content.Run.ID = "run"
	content.Run.SpectrumList.Count = len(specs)
	content.Run.SpectrumList.Spectrum = make([]xmlSpectrum, len(specs))

	for i, s := range specs {
		out := &content.Run.SpectrumList.Spectrum[i]
		out.Index = i
		out.ID = s.ID
		if out.ID == `` {
			out.ID = "scan=" + strconv.Itoa(i+1)
		}
		out.DefaultArrayLength = int64(len(s.Mz))
		out.CvPar = []CVParam{
			{Accession: cvMSLevel, Name: "ms level", Value: strconv.Itoa(s.MSLevel)},
		}
		if s.Centroid {
			out.CvPar = append(out.CvPar, CVParam{Accession: cvCentroid, Name: "centroid spectrum"})
		}
		if s.TIC != nil {
			out.CvPar = append(out.CvPar, CVParam{Accession: cvTotalIonCurrent, Name: "total ion current",
				Value: strconv.FormatFloat(*s.TIC, 'f', -1, 64)})
		}
		if !math.IsNaN(s.Time) {
			out.ScanList.Count = 1
			out.ScanList.Scan = []scan{{CvPar: []CVParam{{
				Accession:     cvScanStartTime,
				Name:          "scan start time",
				Value:         strconv.FormatFloat(s.Time, 'f', -1, 64),
				UnitCvRef:     "UO",
				UnitAccession: "UO:0000010",
				UnitName:      "second",
			}}}}
		}
		if s.Mz == nil && s.Intens == nil {
			continue
		}
		mzArr, err := encodeArray(s.Mz, cvMzArray, opts)
		if err != nil {
			return err
		}
		intArr, err := encodeArray(s.Intens, cvIntensityArray, opts)
		if err != nil {
			return err
		}
		out.BinaryDataArrayList.Count = 2
		out.BinaryDataArrayList.BinaryDataArray = []binaryDataArray{mzArr, intArr}
	}

	return enc.Encode(&content)
}

func encodeArray(values []float64, arrayType string, opts WriteOptions) (binaryDataArray, error) {
	var b binaryDataArray
	b64, err := encodeBinary(values, opts.Zlib, opts.Bits64)
	if err != nil {
		return b, err
	}
	b.Binary = b64
	b.ArrayLength = len(values)
	b.EncodedLength = len(b64)
	b.CvPar = []CVParam{{Accession: arrayType}}
	if opts.Bits64 {
		b.CvPar = append(b.CvPar, CVParam{Accession: cvFloat64, Name: "64-bit float"})
	} else {
		b.CvPar = append(b.CvPar, CVParam{Accession: `MS:1000521`, Name: "32-bit float"})
	}
	if opts.Zlib {
		b.CvPar = append(b.CvPar, CVParam{Accession: cvZlibCompression, Name: "zlib compression"})
	} else {
		b.CvPar = append(b.CvPar, CVParam{Accession: `MS:1000576`, Name: "no compression"})
	}
	return b, nil
}

func encodeBinary(values []float64, zlibCompression bool, bits64 bool) (string, error) {
	var rawUncompressed []byte

	if bits64 {
		rawUncompressed = make([]byte, len(values)*8)
		for i, v := range values {
			binary.LittleEndian.PutUint64(rawUncompressed[(8*i):], math.Float64bits(v))
		}
	} else {
		rawUncompressed = make([]byte, len(values)*4)
		for i, v := range values {
			binary.LittleEndian.PutUint32(rawUncompressed[(4*i):], math.Float32bits(float32(v)))
		}
	}
	data := rawUncompressed
	if zlibCompression {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(rawUncompressed); err != nil {
			return "", err
		}
		// zlib writer must explicitly be closed here, otherwise result is invalid
		if err := z.Close(); err != nil {
			return "", err
		}
		data = b.Bytes()
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
