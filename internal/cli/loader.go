package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/opcheck/internal/harness"
)

// LoadMode controls how errors are handled during suite loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadedSuite is a built suite and the file it came from.
type LoadedSuite struct {
	Suite *harness.Suite
	Path  string
}

// GoldenDir is where the snapshot of the suite lives: a golden directory
// next to its file.
func (l LoadedSuite) GoldenDir() string {
	return filepath.Join(filepath.Dir(l.Path), "golden")
}

// LoadError represents an error that occurred during suite loading.
type LoadError struct {
	Code    string
	Message string
	File    string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSuites loads every suite under paths. Directories are walked for
// .yaml, .yml and .cue files. Suites whose name does not match the filter
// glob are skipped. If mode is LoadModeFailFast, returns on first error.
func LoadSuites(paths []string, filter string, mode LoadMode) ([]LoadedSuite, []error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("invalid filter pattern: %v", err)}}
		}
	}

	var (
		files []string
		errs  []error
	)
	for _, p := range paths {
		found, err := findSuiteFiles(p)
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return nil, errs
			}
			continue
		}
		files = append(files, found...)
	}
	if len(files) == 0 && len(errs) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no suite files found in %s", strings.Join(paths, ", "))}}
	}

	var loaded []LoadedSuite
	seen := make(map[string]string)
	for _, file := range files {
		suites, fileErrs := loadFile(file)
		errs = append(errs, fileErrs...)
		if len(fileErrs) > 0 && mode == LoadModeFailFast {
			return loaded, errs
		}
		for _, s := range suites {
			if filter != "" {
				if ok, _ := filepath.Match(filter, s.Name()); !ok {
					continue
				}
			}
			if prev, dup := seen[s.Name()]; dup {
				errs = append(errs, &LoadError{
					Code:    ErrCodeDuplicateSuite,
					Message: fmt.Sprintf("suite %s already defined in %s", s.Name(), prev),
					File:    file,
				})
				if mode == LoadModeFailFast {
					return loaded, errs
				}
				continue
			}
			seen[s.Name()] = file
			loaded = append(loaded, LoadedSuite{Suite: s, Path: file})
		}
	}
	return loaded, errs
}

// FindSuiteFiles walks the directory and returns all suite file paths in
// lexical order.
func FindSuiteFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isSuiteFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func isSuiteFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".cue":
		return true
	}
	return false
}

func findSuiteFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}
	}
	if !info.IsDir() {
		if !isSuiteFile(path) {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: "unsupported suite file (want .yaml, .yml or .cue)", File: path}
		}
		return []string{path}, nil
	}
	files, err := FindSuiteFiles(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	return files, nil
}

func loadFile(path string) ([]*harness.Suite, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: err.Error(), File: path}}
	}
	if filepath.Ext(path) == ".cue" {
		return loadCUE(path, data)
	}

	def, err := harness.DecodeSuite(bytes.NewReader(data))
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeParseFailed, Message: err.Error(), File: path}}
	}
	s, err := def.Build()
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeInvalidSuite, Message: err.Error(), File: path}}
	}
	return []*harness.Suite{s}, nil
}

// loadCUE builds every suite declared under the top-level suite field. A
// suite without a name takes its field label.
func loadCUE(path string, data []byte) ([]*harness.Suite, []error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, []error{cueLoadError(ErrCodeParseFailed, path, err)}
	}

	suitesVal := value.LookupPath(cue.ParsePath("suite"))
	if !suitesVal.Exists() {
		return nil, []error{&LoadError{Code: ErrCodeInvalidSuite, Message: "no suite field found", File: path}}
	}
	iter, err := suitesVal.Fields()
	if err != nil {
		return nil, []error{cueLoadError(ErrCodeInvalidSuite, path, err)}
	}

	var (
		suites []*harness.Suite
		errs   []error
	)
	for iter.Next() {
		label := iter.Label()
		v := iter.Value()

		raw, err := v.MarshalJSON()
		if err != nil {
			errs = append(errs, cueLoadError(ErrCodeInvalidSuite, path, fmt.Errorf("suite.%s: %w", label, err)))
			continue
		}
		var def harness.SuiteDef
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeInvalidSuite, Message: fmt.Sprintf("suite.%s: %v", label, err), File: path, Pos: v.Pos()})
			continue
		}
		if def.Name == "" {
			def.Name = label
		}
		s, err := def.Build()
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeInvalidSuite, Message: fmt.Sprintf("suite.%s: %v", label, err), File: path, Pos: v.Pos()})
			continue
		}
		suites = append(suites, s)
	}
	return suites, errs
}

// cueLoadError converts a CUE error to a LoadError at its first position.
func cueLoadError(code, path string, err error) *LoadError {
	le := &LoadError{Code: code, Message: err.Error(), File: path}
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric        = "E001" // Generic/unknown error
	ErrCodeScanError      = "E002" // Directory scan error
	ErrCodeNoFiles        = "E003" // No suite files found
	ErrCodeParseFailed    = "E004" // YAML, CUE or expression syntax error
	ErrCodeNotFound       = "E005" // Path not found
	ErrCodeInvalidSuite   = "E006" // Suite failed validation
	ErrCodeWriteFailed    = "E007" // File write error
	ErrCodeEvalFailed     = "E008" // Evaluator error
	ErrCodeStoreFailed    = "E009" // History database error
	ErrCodeDuplicateSuite = "E010" // Two files define the same suite

	ErrCodeTestFailed = "E_TEST_FAILED"
)

// loadErrorCode returns the code of a LoadError, or the generic code.
func loadErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}
