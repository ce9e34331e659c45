// Package planfile reads plan documents: a parent plan plus the agents available to run it.
package planfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/fanout/pkg/models"
)

// Format names a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ErrInvalid wraps every validation problem returned by Validate.
var ErrInvalid = errors.New("invalid plan document")

// Document is a plan file: the plan to split and the agents to split it over.
type Document struct {
	Plan   models.Plan              `json:"plan" yaml:"plan"`
	Agents []models.AgentCapability `json:"agents" yaml:"agents"`
}

// FormatFromPath picks the encoding from the file extension. Anything other
// than .json is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads, defaults and validates the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	doc, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := Validate(doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes data and fills in defaults: a missing plan ID becomes a new
// UUID, a missing plan status becomes approved and a missing step status
// becomes pending. Unknown fields are rejected.
func Parse(data []byte, format Format) (*Document, error) {
	var doc Document

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	applyDefaults(&doc)
	return &doc, nil
}

func applyDefaults(doc *Document) {
	if doc.Plan.ID == "" {
		doc.Plan.ID = uuid.NewString()
	}
	if doc.Plan.Status == "" {
		doc.Plan.Status = models.PlanApproved
	}
	for i := range doc.Plan.Steps {
		if doc.Plan.Steps[i].Status == "" {
			doc.Plan.Steps[i].Status = models.StepPending
		}
	}
}

// Validate reports every problem in the document, joined into one error
// that matches ErrInvalid. Structural checks on the step graph are left to
// the partitioner.
func Validate(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrInvalid)
	}

	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	p := &doc.Plan
	if !p.Status.Valid() {
		add("plan status %q", p.Status)
	}
	if !p.SecurityTier.Valid() {
		add("plan security tier %q", p.SecurityTier)
	}
	if p.RiskLevel != "" && !p.RiskLevel.Valid() {
		add("plan risk level %q", p.RiskLevel)
	}
	for _, s := range p.Steps {
		if !s.Action.Valid() {
			add("step %d: action %q", s.Number, s.Action)
		}
		if !s.Status.Valid() {
			add("step %d: status %q", s.Number, s.Status)
		}
	}

	seen := make(map[string]bool, len(doc.Agents))
	for i, a := range doc.Agents {
		if a.ID == "" {
			add("agent %d: missing id", i)
			continue
		}
		if seen[a.ID] {
			add("agent %s: duplicate id", a.ID)
		}
		seen[a.ID] = true
		if !a.SecurityTier.Valid() {
			add("agent %s: security tier %q", a.ID, a.SecurityTier)
		}
		if a.CurrentLoad < 0 {
			add("agent %s: negative load %v", a.ID, a.CurrentLoad)
		}
	}

	return errors.Join(errs...)
}
