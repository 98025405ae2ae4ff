// Package dataset loads the immutable string lists that iterations draw
// from: questions, mentor ids and ready-made request URLs.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrEmpty is returned for a dataset with no entries.
var ErrEmpty = errors.New("dataset is empty")

const stringArraySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "items": {"type": "string"}
}`

var schema = mustCompile(stringArraySchema)

func mustCompile(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("strings.json", strings.NewReader(src)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("strings.json")
}

// Dataset is an ordered, read-only list of strings. It is safe to share
// between goroutines.
type Dataset struct {
	name  string
	items []string
}

// New returns a dataset holding a copy of items.
func New(name string, items []string) (*Dataset, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	return &Dataset{name: name, items: append([]string(nil), items...)}, nil
}

// LoadStrings reads a JSON array of strings from path.
func LoadStrings(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return Parse(filepath.Base(path), data)
}

// Parse decodes a JSON array of strings.
func Parse(name string, data []byte) (*Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: invalid JSON: %w", name, err)
	}
	if arr, ok := doc.([]interface{}); ok && len(arr) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("%s: want a JSON array of strings: %s", name, leafMessage(verr))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	raw := doc.([]interface{})
	items := make([]string, len(raw))
	for i, v := range raw {
		items[i] = v.(string)
	}
	return New(name, items)
}

// leafMessage returns the first innermost cause, which names the
// offending element.
func leafMessage(err *jsonschema.ValidationError) string {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	if err.InstanceLocation == "" {
		return err.Message
	}
	return fmt.Sprintf("%s: %s", err.InstanceLocation, err.Message)
}

// Name returns the name the dataset was loaded under.
func (d *Dataset) Name() string {
	return d.name
}

// Len returns the number of entries.
func (d *Dataset) Len() int {
	return len(d.items)
}

// At returns entry i.
func (d *Dataset) At(i int) string {
	return d.items[i]
}

// Items returns a copy of all entries.
func (d *Dataset) Items() []string {
	return append([]string(nil), d.items...)
}

// Pick returns a uniformly random entry. r is the caller's private source;
// nil uses the global one.
func (d *Dataset) Pick(r *rand.Rand) string {
	return d.items[d.PickIndex(r)]
}

// PickIndex returns a uniformly random index in [0, Len()).
func (d *Dataset) PickIndex(r *rand.Rand) int {
	if r == nil {
		return rand.IntN(len(d.items))
	}
	return r.IntN(len(d.items))
}

// WriteStrings writes items as an indented JSON array, the format
// LoadStrings reads.
func WriteStrings(w io.Writer, items []string) error {
	if items == nil {
		items = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(items)
}
