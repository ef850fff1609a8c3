package mzml

import (
	"encoding/xml"
	"errors"
)

// MzML wraps the spectrum content of an mzML file
type MzML struct {
	content  mzMLContent
	index2id []string
}

// The mzML content that we read. Only the parts needed to extract
// chromatograms are parsed, everything else is skipped by the decoder.
type mzMLContent struct {
	XMLName xml.Name `xml:"http://psi.hupo.org/ms/mzml mzML"`
	Run     run      `xml:"run"`
}

type run struct {
	ID             string       `xml:"id,attr,omitempty"`
	StartTimeStamp string       `xml:"startTimeStamp,attr,omitempty"`
	SpectrumList   spectrumList `xml:"spectrumList"`
}

type spectrumList struct {
	Count    int           `xml:"count,attr,omitempty"`
	Spectrum []xmlSpectrum `xml:"spectrum"`
}

type xmlSpectrum struct {
	Index               int                 `xml:"index,attr"`
	ID                  string              `xml:"id,attr"`
	DefaultArrayLength  int64               `xml:"defaultArrayLength,attr"`
	CvPar               []CVParam           `xml:"cvParam"`
	ScanList            scanList            `xml:"scanList"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type scanList struct {
	Count int    `xml:"count,attr,omitempty"`
	Scan  []scan `xml:"scan"`
}

type scan struct {
	CvPar []CVParam `xml:"cvParam"`
}

type binaryDataArrayList struct {
	Count           int               `xml:"count,attr,omitempty"`
	BinaryDataArray []binaryDataArray `xml:"binaryDataArray"`
}

type binaryDataArray struct {
	EncodedLength int       `xml:"encodedLength,attr,omitempty"`
	ArrayLength   int       `xml:"arrayLength,attr,omitempty"`
	CvPar         []CVParam `xml:"cvParam"`
	Binary        string    `xml:"binary"`
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	Accession     string `xml:"accession,attr,omitempty"`
	Name          string `xml:"name,attr,omitempty"`
	Value         string `xml:"value,attr,omitempty"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

var (
	// ErrInvalidScanIndex means an invalid scan index is supplied
	ErrInvalidScanIndex = errors.New("MzML: invalid scan index")
	// ErrUnsupportedCompression means the binary data uses a compression
	// scheme (MS-Numpress) that cannot be decoded
	ErrUnsupportedCompression = errors.New("MzML: compression type not supported")
	// ErrNoSpectra means the input did not contain an mzML element
	ErrNoSpectra = errors.New("MzML: no mzML content found")
)
