// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"io"

	"github.com/524D/mzxic/internal/batch"
	"github.com/524D/mzxic/internal/catalog"
	"github.com/524D/mzxic/internal/spectrum"
)

// xicReport is the JSON document written after processing.
// Absent values are written as null, which is different from 0.
type xicReport struct {
	// Version of the report format, so that output of old versions
	// can still be parsed
	MzXICVersion string
	IonList      string
	Accuracy     float64
	Files        []fileReport
}

type fileReport struct {
	Path          string
	Error         string `json:",omitempty"`
	MS1Scans      int
	MS2Scans      int
	CentroidScans int      // MS1 scans stored as centroid peaks
	TIC           *float64 // sum of the recorded MS1 total ion currents
	Compounds     []compoundReport
}

type compoundReport struct {
	Name string
	Info []string `json:",omitempty"`
	Ions []ionReport
}

type ionReport struct {
	Ion         string
	MatchedMz   *float64 `json:"Matched m/z"`
	RT          *float64
	MSIntensity *float64 `json:"MS Intensity"`
	LCIntensity *float64 `json:"LC Intensity"`
}

func makeReport(cat *catalog.Catalog, accuracy float64, results []batch.Result) xicReport {
	rep := xicReport{
		MzXICVersion: outputFormatVersion,
		IonList:      cat.Name,
		Accuracy:     accuracy,
		Files:        make([]fileReport, 0, len(results)),
	}
	for _, r := range results {
		fr := fileReport{Path: r.Path}
		if r.Err != nil {
			fr.Error = r.Err.Error()
		}
		m := r.Measurement
		if m != nil {
			fr.MS1Scans = len(m.MS1)
			fr.MS2Scans = len(m.MS2)
			fr.CentroidScans, fr.TIC = ms1Summary(m.MS1)
		}
		// A file without computed results still lists every target, so
		// all files in a report have the same shape
		comps := cat
		if m != nil && m.Compounds != nil {
			comps = m.Compounds
		}
		fr.Compounds = make([]compoundReport, 0, len(comps.Compounds))
		for _, c := range comps.Compounds {
			cr := compoundReport{Name: c.Name, Info: c.Info, Ions: make([]ionReport, 0, len(c.Ions))}
			for _, ion := range c.Ions {
				ir := ionReport{Ion: ion.Label}
				if comps != cat {
					ir.MatchedMz = ion.Data.MatchedMz
					ir.RT = ion.Data.RT
					ir.MSIntensity = ion.Data.MSIntensity
					ir.LCIntensity = ion.Data.LCIntensity
				}
				cr.Ions = append(cr.Ions, ir)
			}
			fr.Compounds = append(fr.Compounds, cr)
		}
		rep.Files = append(rep.Files, fr)
	}
	return rep
}

// ms1Summary counts centroid scans and adds up the total ion currents
// that the file records. The TIC is nil when no scan records one.
func ms1Summary(ms1 []spectrum.Spectrum) (centroid int, tic *float64) {
	var sum float64
	for _, s := range ms1 {
		if s.Centroid {
			centroid++
		}
		if s.TIC != nil {
			sum += *s.TIC
			tic = &sum
		}
	}
	return centroid, tic
}

func writeReport(w io.Writer, rep xicReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
