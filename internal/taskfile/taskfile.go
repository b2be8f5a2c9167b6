// Package taskfile loads batch requests from YAML or JSON files.
package taskfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

// File is one batch on disk. The request fields sit at the top level next
// to the optional policy, sink and shuffle settings:
//
//	departure_code: LAX
//	departure_country: United States of America
//	arrival_codes: [JFK, LHR]
//	...
//	policy:
//	  n_jobs: 2
//	sink: out/fares.csv
type File struct {
	batch.Request `yaml:",inline"`

	Policy batch.PolicyOverrides `json:"policy" yaml:"policy"`
	Sink   string                `json:"sink,omitempty" yaml:"sink,omitempty"`
	// Shuffle overrides the configured default when set.
	Shuffle *bool `json:"shuffle,omitempty" yaml:"shuffle,omitempty"`
}

// ErrEmpty is returned for files without any document.
var ErrEmpty = errors.New("task file is empty")

// Load reads and decodes path. JSON files decode through the YAML parser,
// which accepts JSON as a subset.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read task file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes one task file document. Unknown keys are rejected so that
// typos do not silently drop a list.
func Parse(data []byte) (File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, ErrEmpty
		}
		return File{}, fmt.Errorf("decode task file: %w", err)
	}
	if err := f.Request.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// ShuffleOr returns the file's shuffle setting or def when unset.
func (f File) ShuffleOr(def bool) bool {
	if f.Shuffle == nil {
		return def
	}
	return *f.Shuffle
}
