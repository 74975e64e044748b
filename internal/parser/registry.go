package parser

import "fmt"

// Registry holds all available converters and provides auto-detection.
type Registry struct {
	converters []Converter
}

// NewRegistry creates a registry with the built-in converters.
func NewRegistry(args Arguments, options ...Option) *Registry {
	return &Registry{
		converters: []Converter{
			NewICT3030Converter(args, options...),
		},
	}
}

// FindConverter detects the correct converter for a file.
func (r *Registry) FindConverter(filePath string) (Converter, error) {
	var lastErr error
	for _, c := range r.converters {
		can, err := c.CanParse(filePath)
		if err != nil {
			lastErr = err
			continue
		}
		if can {
			return c, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("no suitable converter found for file %s: %w", filePath, lastErr)
	}
	return nil, fmt.Errorf("no suitable converter found for file: %s", filePath)
}
