package spectrum

import (
	"errors"
	"math"
	"testing"
)

func TestNewStore(t *testing.T) {
	specs := []Spectrum{
		{Index: 0, Time: 2.0, MSLevel: 1, Mz: []float64{100}, Intens: []float64{1}},
		{Index: 1, Time: 2.5, MSLevel: 2, Mz: []float64{50}, Intens: []float64{1}},
		{Index: 2, Time: 1.0, MSLevel: 1},
		{Index: 3, Time: 2.0, MSLevel: 1, Mz: []float64{101}, Intens: []float64{2}},
	}
	s, err := NewStore(specs)
	if err != nil {
		t.Fatalf("NewStore: error return %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len: %d, should be 3", s.Len())
	}
	wantIdx := []int{2, 0, 3}
	for i, w := range wantIdx {
		if s.At(i).Index != w {
			t.Errorf("At(%d).Index: %d, should be %d", i, s.At(i).Index, w)
		}
	}
	var times []float64
	s.Each(func(i int, spec *Spectrum) {
		if spec != s.At(i) {
			t.Errorf("Each: spectrum %d is not At(%d)", i, i)
		}
		times = append(times, spec.Time)
	})
	if len(times) != 3 || times[0] != 1.0 || times[1] != 2.0 || times[2] != 2.0 {
		t.Errorf("Each: times %v, should be [1 2 2]", times)
	}
	if s.At(0).NumPeaks() != 0 {
		t.Errorf("NumPeaks: %d, should be 0", s.At(0).NumPeaks())
	}
}

func TestNewStoreArrayLength(t *testing.T) {
	specs := []Spectrum{
		{Index: 7, MSLevel: 1, Mz: []float64{100, 101}, Intens: []float64{1}},
	}
	_, err := NewStore(specs)
	if !errors.Is(err, ErrArrayLength) {
		t.Errorf("NewStore: error return %v, should be ErrArrayLength", err)
	}

	// Misaligned MS2 spectra are not stored, so they are not checked
	specs[0].MSLevel = 2
	if _, err := NewStore(specs); err != nil {
		t.Errorf("NewStore: error return %v", err)
	}
}

func TestNewStoreNoTime(t *testing.T) {
	specs := []Spectrum{
		{Index: 0, Time: math.NaN(), MSLevel: 1, Mz: []float64{59.0139}, Intens: []float64{1000}},
		{Index: 1, Time: 3.0, MSLevel: 1, Mz: []float64{59.0139}, Intens: []float64{1}},
		{Index: 2, Time: math.NaN(), MSLevel: 1},
	}
	s, err := NewStore(specs)
	if err != nil {
		t.Fatalf("NewStore: error return %v", err)
	}
	if s.Len() != 1 || s.At(0).Index != 1 {
		t.Errorf("NewStore: spectra without time are stored, Len %d", s.Len())
	}
}

func TestNilStore(t *testing.T) {
	var s *Store
	if s.Len() != 0 {
		t.Errorf("Len of nil store: %d, should be 0", s.Len())
	}
	s.Each(func(int, *Spectrum) { t.Errorf("Each called on nil store") })
}

func TestSplit(t *testing.T) {
	specs := []Spectrum{
		{Index: 0, MSLevel: 1},
		{Index: 1, MSLevel: 2},
		{Index: 2, MSLevel: 3},
		{Index: 3, MSLevel: 1},
	}
	ms1, ms2 := Split(specs)
	if len(ms1) != 2 || ms1[0].Index != 0 || ms1[1].Index != 3 {
		t.Errorf("Split ms1: %+v", ms1)
	}
	if len(ms2) != 1 || ms2[0].Index != 1 {
		t.Errorf("Split ms2: %+v", ms2)
	}
}
