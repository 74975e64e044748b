package parser

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ArgPartNumber is the converter argument holding the part number stamped on
// every report.
const ArgPartNumber = "partNumber"

// Arguments are the string options a converter instance is created with.
type Arguments map[string]string

// DefaultArguments returns the arguments every converter starts from.
func DefaultArguments() Arguments {
	return Arguments{ArgPartNumber: "PN1"}
}

// PartNumber returns the configured part number, falling back to the default.
func (a Arguments) PartNumber() string {
	if pn := a[ArgPartNumber]; pn != "" {
		return pn
	}
	return DefaultArguments()[ArgPartNumber]
}

// Merge returns a copy of a with the non-empty values of other applied on top.
func (a Arguments) Merge(other Arguments) Arguments {
	merged := make(Arguments, len(a)+len(other))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range other {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

// LoadArguments reads converter arguments from a YAML mapping file, e.g.
//
//	partNumber: "4711-0815"
//
// and merges them over DefaultArguments.
func LoadArguments(filePath string) (Arguments, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadArgumentsFromReader(file)
}

// LoadArgumentsFromReader parses converter arguments from an io.Reader.
func LoadArgumentsFromReader(r io.Reader) (Arguments, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var args Arguments
	if err := yaml.Unmarshal(data, &args); err != nil {
		return nil, err
	}

	return DefaultArguments().Merge(args), nil
}
