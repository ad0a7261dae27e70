package kpi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

// Save validates p and writes it as indented JSON.
func Save(path string, p *Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b, err := Marshal(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("kpi: write %s: %w", path, err)
	}
	return nil
}

// Marshal renders p as indented JSON.
func Marshal(p *Payload) ([]byte, error) {
	b, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("kpi: marshal: %w", err)
	}
	return b, nil
}

// Load reads a payload file. A missing or malformed file yields
// mcperr.ErrMissingData.
func Load(path string) (*Payload, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("kpi: %s: %w", path, mcperr.ErrMissingData)
		}
		return nil, fmt.Errorf("kpi: read %s: %w", path, err)
	}
	return Unmarshal(b)
}

// Unmarshal decodes a payload. Invalid JSON yields mcperr.ErrMissingData.
func Unmarshal(b []byte) (*Payload, error) {
	p := New()
	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("kpi: decode payload: %v: %w", err, mcperr.ErrMissingData)
	}
	return p, nil
}
