package input

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RequestsFile is the document read by `retrofix batch`.
type RequestsFile struct {
	Requests []Request `yaml:"requests"`
}

// EntitiesFile is the document read through --entities.
type EntitiesFile struct {
	Entities map[string]Entity `yaml:"entities"`
}

// LoadRequest reads a single request document.
func LoadRequest(path string) (Request, error) {
	var r Request
	if err := decodeFile(path, &r); err != nil {
		return r, err
	}
	if r.EntityID == "" {
		return r, fmt.Errorf("%s: entity_id is required", path)
	}
	return r, nil
}

// LoadRequests reads a batch document.
func LoadRequests(path string) ([]Request, error) {
	var f RequestsFile
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	if len(f.Requests) == 0 {
		return nil, fmt.Errorf("%s: requests list is required and must be non-empty", path)
	}
	return f.Requests, nil
}

// LoadEntities reads an entities document and decodes it against s.
func LoadEntities(path string, s Schema) (*Snapshots, error) {
	var f EntitiesFile
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	snaps, err := DecodeEntities(f.Entities, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snaps, nil
}

// decodeFile parses YAML with strict field checking so that typos such as
// "expected_verison" fail instead of silently defaulting.
func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
