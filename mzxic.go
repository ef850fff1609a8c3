// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/524D/mzxic/internal/batch"
	"github.com/524D/mzxic/internal/catalog"
	"github.com/524D/mzxic/internal/mzml"
	"github.com/524D/mzxic/internal/workpool"
)

// Program name and version
const progName = "mzXIC"

var progVersion = `Unknown`

// Format of output, if it ever changes we should still be able to parse
// output from old versions
const outputFormatVersion = "1.0"

const (
	defaultIonLists = "ion_lists.json"
	defaultListName = "scfas"
	defaultAccuracy = 0.0001
)

// Environment variables that override the defaults of the flags
const (
	envIonLists = "MZXIC_ION_LISTS"
	envAccuracy = "MZXIC_ACCURACY"
	envDebug    = "MZXIC_DEBUG"
)

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Command line parameters
type params struct {
	ionLists       string  // JSON or SQLite file with the ion lists
	listName       string  // ion list to use
	accuracy       float64 // mass accuracy, ions are matched within +/- 3*accuracy
	fileList       string  // file with mzML paths, one per line
	workers        int     // number of workers, 0 means number of CPUs
	chunkThreshold int     // number of files from which on files are processed in chunks
	outFilename    string  // JSON report, empty for stdout
	debugRange     string  // m/z range of ions to print debug info for
	verbose        bool
	quiet          bool
	verbosity      int      // Verbosity of progress messages (infoDefault...)
	args           []string // mzML files passed on the command line
}

var ErrRangeSpec = errors.New("invalid range specified")

var errNoInput = errors.New("no input files specified")

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	re := regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	// Anything but an empty string must contain the separator
	if m == nil && strings.TrimSpace(r) != "" {
		return min, max, ErrRangeSpec
	}
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// envFloat returns the value of environment variable key, or def if
// it is not set
func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return v, nil
}

func envString(key string, def string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return def
}

func newRootCmd() *cobra.Command {
	var par params

	accuracy, envErr := envFloat(envAccuracy, defaultAccuracy)
	cmd := &cobra.Command{
		Use:   "mzxic [flags] <mzMLfile>...",
		Short: "Extract ion chromatograms of target compounds from mzML files",
		Long: `mzxic matches the ions of a list of target compounds against the MS1
spectra of one or more mzML files. For each ion, the intensity of all peaks
within +/- 3 times the mass accuracy is summed, and the retention time of
the most intense peak is reported.

Ion lists are read from a JSON file of the form
  {"<list>": {"<compound>": {"ions": [59.0139, ...], "info": ["..."]}}}
or from a SQLite database created with "mzxic import-catalog".

Defaults of some flags can be set in the environment or in a .env file:
  ` + envIonLists + `   file with ion lists
  ` + envAccuracy + `    mass accuracy
  ` + envDebug + `       m/z range of ions to print debug output for

Examples:
  # Process two files, write the report to stdout
  mzxic --list scfas run1.mzML run2.mzML

  # Process all files listed in files.txt with 8 workers
  mzxic --files files.txt --workers 8 --out report.json`,
		Version:       progVersion,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			par.args = args
			if par.verbose {
				par.verbosity = infoVerbose
			}
			if par.quiet {
				par.verbosity = infoSilent
			}
			return runXIC(cmd.Context(), par, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&par.ionLists, "ion-lists", envString(envIonLists, defaultIonLists),
		"`file` with ion lists (JSON, or SQLite with extension .db/.sqlite)")
	f.StringVar(&par.listName, "list", defaultListName, "`name` of the ion list to use")
	f.Float64Var(&par.accuracy, "accuracy", accuracy,
		"mass `accuracy`, ions are matched within +/- 3 times this value")
	f.StringVar(&par.fileList, "files", "", "`file` with mzML file names, one per line")
	f.IntVar(&par.workers, "workers", 0, "number of workers (0 = number of CPUs)")
	f.IntVar(&par.chunkThreshold, "chunk-threshold", batch.DefaultChunkThreshold,
		"number of files from which on files are processed in chunks")
	f.StringVarP(&par.outFilename, "out", "o", "", "`filename` of JSON report (default stdout)")
	f.StringVar(&par.debugRange, "debug", os.Getenv(envDebug),
		"print debug output for ions in m/z `range`, e.g. 59:60")
	f.BoolVar(&par.verbose, "verbose", false, "print more verbose progress information")
	f.BoolVar(&par.quiet, "quiet", false, "don't print any output except for errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newImportCmd(), newExtractCmd())
	return cmd
}

func newImportCmd() *cobra.Command {
	var lists []string
	cmd := &cobra.Command{
		Use:   "import-catalog <ion_lists.json> <catalog.db>",
		Short: "Import ion lists from a JSON file into a SQLite catalog",
		Long: `Import ion lists from a JSON file into a SQLite catalog database.
All lists are imported unless --list is given. Lists that already exist in
the database are replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importCatalog(args[0], args[1], lists, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringSliceVar(&lists, "list", nil, "`names` of ion lists to import (default all)")
	return cmd
}

func importCatalog(jsonFile string, dbFile string, lists []string, stderr io.Writer) error {
	data, err := os.ReadFile(jsonFile)
	if err != nil {
		return fmt.Errorf("failed to read ion lists: %w", err)
	}
	if len(lists) == 0 {
		lists, err = catalog.ListNames(bytes.NewReader(data))
		if err != nil {
			return err
		}
	}

	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return fmt.Errorf("failed to open catalog database: %w", err)
	}
	defer db.Close()
	if err := catalog.CreateSQLiteSchema(db); err != nil {
		return err
	}
	for _, name := range lists {
		cat, err := catalog.LoadJSON(bytes.NewReader(data), name)
		if err != nil {
			return fmt.Errorf("%s: %w", jsonFile, err)
		}
		if err := catalog.SaveSQLite(db, cat); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Imported %s: %d compounds, %d ions\n", name, len(cat.Compounds), cat.NumIons())
	}
	return nil
}

func newExtractCmd() *cobra.Command {
	var mzRange string
	var opts mzml.WriteOptions
	cmd := &cobra.Command{
		Use:   "extract-ms1 <in.mzML> <out.mzML>",
		Short: "Write the MS1 spectra of an mzML file to a new, minimal mzML file",
		Long: `Write the MS1 spectra of an mzML file to a new, minimal mzML file.
With --mz, only peaks in the given m/z range are kept, which gives small
files with just the peaks of interest for a target.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return extractMS1(cmd.Context(), args[0], args[1], mzRange, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&mzRange, "mz", "", "keep only peaks in m/z `range`, e.g. 59:60")
	f.BoolVar(&opts.Zlib, "zlib", true, "zlib compress binary data")
	f.BoolVar(&opts.Bits64, "64bit", true, "write 64-bit floats")
	return cmd
}

func extractMS1(ctx context.Context, in string, out string, mzRange string, opts mzml.WriteOptions) error {
	minMz, maxMz, err := parseFloat64Range(mzRange, 0, math.MaxFloat64)
	if err != nil {
		return fmt.Errorf("m/z range %q: %w", mzRange, err)
	}
	ms1, _, err := mzml.FileLoader{}.Load(ctx, in)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	if mzRange != "" {
		for i := range ms1 {
			s := &ms1[i]
			if err := s.Validate(); err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}
			var mz, intens []float64
			for j := range s.Mz {
				if s.Mz[j] >= minMz && s.Mz[j] <= maxMz {
					mz = append(mz, s.Mz[j])
					intens = append(intens, s.Intens[j])
				}
			}
			s.Mz, s.Intens = mz, intens
			// The recorded TIC no longer matches the peaks
			s.TIC = nil
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := mzml.Write(f, ms1, opts); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return f.Close()
}

// inputFiles returns the mzML files from the command line followed by
// those in the file list
func inputFiles(par params) ([]string, error) {
	paths := append([]string(nil), par.args...)
	if par.fileList != "" {
		f, err := os.Open(par.fileList)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		listed, err := batch.ReadFileList(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", par.fileList, err)
		}
		paths = append(paths, listed...)
	}
	if len(paths) == 0 {
		return nil, errNoInput
	}
	return paths, nil
}

func runXIC(ctx context.Context, par params, stdout, stderr io.Writer) error {
	paths, err := inputFiles(par)
	if err != nil {
		return err
	}
	if par.accuracy < 0 || math.IsNaN(par.accuracy) || math.IsInf(par.accuracy, 0) {
		return fmt.Errorf("invalid mass accuracy %v", par.accuracy)
	}

	var tracer *debugTracer
	if par.debugRange != "" {
		tracer, err = newDebugTracer(stderr, par.debugRange)
		if err != nil {
			return err
		}
	}

	t := time.Now()
	if par.verbosity == infoVerbose {
		fmt.Fprintf(stderr, "%s version %s\n", progName, progVersion)
		fmt.Fprintf(stderr, "Reading ion list %s from %s: ", par.listName, par.ionLists)
	}
	cat, err := catalog.OpenFile(par.ionLists, par.listName)
	if err != nil {
		return err
	}
	if par.verbosity == infoVerbose {
		fmt.Fprintf(stderr, "%s\n", time.Since(t))
		fmt.Fprintf(stderr, "%d compounds, %d ions\n", len(cat.Compounds), cat.NumIons())
	}

	pool := workpool.New(par.workers)
	orch := batch.Orchestrator{
		Loader:         mzml.FileLoader{},
		Pool:           pool,
		ChunkThreshold: par.chunkThreshold,
	}
	if par.verbosity == infoVerbose {
		orch.Progress = func(done, total int, path string) {
			fmt.Fprintf(stderr, "[%d/%d] %s %s\n", done, total, path, time.Since(t))
		}
	}
	if tracer != nil {
		orch.Trace = tracer.trace
	}

	t = time.Now()
	if par.verbosity != infoSilent {
		fmt.Fprintf(stderr, "Processing %d files with %d workers\n", len(paths), pool.Size())
	}
	results, err := orch.Run(ctx, paths, cat, par.accuracy)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			if par.verbosity != infoSilent {
				log.Printf("WARNING: %v", r.Err)
			}
			continue
		}
		if par.verbosity == infoVerbose {
			fmt.Fprintf(stderr, "%s: %d MS1 scans, %d MS2 scans\n",
				r.Path, len(r.Measurement.MS1), len(r.Measurement.MS2))
		}
	}
	if par.verbosity != infoSilent {
		fmt.Fprintf(stderr, "Processed %d files (%d failed) in %s\n", len(results), failed, time.Since(t))
	}
	if tracer != nil {
		tracer.listUnmatched(cat)
	}

	rep := makeReport(cat, par.accuracy, results)
	if par.outFilename == "" {
		return writeReport(stdout, rep)
	}
	f, err := os.Create(par.outFilename)
	if err != nil {
		return err
	}
	if err := writeReport(f, rep); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	// A missing .env file is not an error
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
