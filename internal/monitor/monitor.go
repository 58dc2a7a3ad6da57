// Package monitor checks provider responses against the JSON contracts the
// lifecycle depends on, so that a shape change at the provider surfaces as a
// clear error instead of an empty transaction id or reg key.
package monitor

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/yourorg/linepay-preapproval/internal/adapter"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ContractMonitor validates documents against a JSON schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

// NewContractMonitor creates a ContractMonitor from a schema file.
// The schemaPath should be an absolute path or relative to the execution directory.
func NewContractMonitor(schemaPath string) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + schemaPath))
	if err != nil {
		return nil, fmt.Errorf("error loading or compiling schema %s: %w", schemaPath, err)
	}
	return &ContractMonitor{schema: schema}, nil
}

func newContractMonitorFromBytes(name string, raw []byte) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("error loading or compiling schema %s: %w", name, err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// Validate validates document against the loaded JSON schema.
// It returns true if valid, or false and a list of validation errors if invalid.
func (cm *ContractMonitor) Validate(document []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}

	if result.Valid() {
		return true, nil, nil
	}

	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, desc.String())
	}
	return false, errors, nil
}

// FormatErrors formats a slice of validation error strings into a single string.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}

// ViolationError reports a provider response that broke its contract.
type ViolationError struct {
	Operation string
	Errors    []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s response violates contract: %s", e.Operation, FormatErrors(e.Errors))
}

// ResponseContracts holds one ContractMonitor per provider operation.
type ResponseContracts struct {
	monitors map[string]*ContractMonitor
}

// NewResponseContracts loads the built-in response schemas. Schema files are
// named after the operation they cover.
func NewResponseContracts() (*ResponseContracts, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	rc := &ResponseContracts{monitors: make(map[string]*ContractMonitor, len(entries))}
	for _, entry := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, err
		}
		cm, err := newContractMonitorFromBytes(entry.Name(), raw)
		if err != nil {
			return nil, err
		}
		rc.monitors[strings.TrimSuffix(entry.Name(), ".json")] = cm
	}
	return rc, nil
}

// LoadResponseContracts loads the built-in schemas and then any *.json file
// in dir, which replaces the built-in contract of the same operation or adds
// a new one. An empty dir loads only the built-in schemas.
func LoadResponseContracts(dir string) (*ResponseContracts, error) {
	rc, err := NewResponseContracts()
	if err != nil || dir == "" {
		return rc, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read contract dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		cm, err := NewContractMonitor(filepath.Join(abs, entry.Name()))
		if err != nil {
			return nil, err
		}
		rc.monitors[strings.TrimSuffix(entry.Name(), ".json")] = cm
	}
	return rc, nil
}

// Covers reports whether a contract exists for operation.
func (rc *ResponseContracts) Covers(operation string) bool {
	_, ok := rc.monitors[operation]
	return ok
}

// Check validates payload against the contract for operation. Operations
// without a contract always pass. A violation is returned as *ViolationError.
func (rc *ResponseContracts) Check(operation string, payload adapter.Payload) error {
	cm, ok := rc.monitors[operation]
	if !ok {
		return nil
	}
	doc, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s response: %w", operation, err)
	}
	valid, errs, err := cm.Validate(doc)
	if err != nil {
		return err
	}
	if !valid {
		return &ViolationError{Operation: operation, Errors: errs}
	}
	return nil
}
