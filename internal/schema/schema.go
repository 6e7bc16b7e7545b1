// Package schema validates document frontmatter against doc-type
// schemas. Schemas are data (required/optional fields, enum values,
// field types) compiled once into a registry keyed by doc_type; there
// is no reflection over domain structs — validation works entirely off
// the decoded frontmatter map and the schema's own field lists.
package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Aman-CERP/amanmcp/internal/config"
)

// FieldType names the primitive JSON/YAML kinds a frontmatter field can
// be constrained to.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldArray  FieldType = "array"
)

// PromotionLevelField is the frontmatter key every doc-type shares; its
// value must be one of the three promotion levels whenever present.
const PromotionLevelField = "promotion_level"

var promotionLevels = []string{"standard", "important", "critical"}

// Schema governs the frontmatter of one doc-type.
type Schema struct {
	DocType        string
	Folder         string
	RequiredFields []string
	OptionalFields []string
	EnumFields     map[string][]string
	FieldTypes     map[string]FieldType
}

// ValidationError reports one frontmatter field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Registry holds compiled schemas keyed by doc_type.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

// NewRegistry returns a registry preloaded with the built-in doc-types:
// problem, insight, codebase, tool, style.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[string]Schema)}
	for _, s := range builtinSchemas() {
		r.schemas[s.DocType] = s
	}
	return r
}

func builtinSchemas() []Schema {
	withPromotion := func(extra map[string][]string) map[string][]string {
		enums := map[string][]string{PromotionLevelField: promotionLevels}
		for k, v := range extra {
			enums[k] = v
		}
		return enums
	}
	return []Schema{
		{
			DocType:        "problem",
			RequiredFields: []string{"title"},
			OptionalFields: []string{"summary", "tags"},
			EnumFields:     withPromotion(nil),
		},
		{
			DocType:        "insight",
			RequiredFields: []string{"title"},
			OptionalFields: []string{"summary", "tags"},
			EnumFields:     withPromotion(nil),
		},
		{
			DocType:        "codebase",
			RequiredFields: []string{"title", "path"},
			OptionalFields: []string{"summary"},
			EnumFields:     withPromotion(nil),
		},
		{
			DocType:        "tool",
			RequiredFields: []string{"title"},
			OptionalFields: []string{"summary", "command"},
			EnumFields:     withPromotion(nil),
		},
		{
			DocType:        "style",
			RequiredFields: []string{"title"},
			OptionalFields: []string{"summary"},
			EnumFields:     withPromotion(nil),
		},
	}
}

// RegisterCustom compiles a config.CustomDocType into a Schema and adds
// it to the registry, overwriting any existing schema of the same name.
func (r *Registry) RegisterCustom(dt config.CustomDocType) {
	enums := map[string][]string{PromotionLevelField: promotionLevels}
	for field, values := range dt.EnumFields {
		enums[field] = values
	}

	types := make(map[string]FieldType, len(dt.FieldTypes))
	for field, t := range dt.FieldTypes {
		if ft, ok := parseFieldType(t); ok {
			types[field] = ft
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[dt.Name] = Schema{
		DocType:        dt.Name,
		Folder:         dt.Folder,
		RequiredFields: dt.RequiredFields,
		OptionalFields: dt.OptionalFields,
		EnumFields:     enums,
		FieldTypes:     types,
	}
}

func parseFieldType(s string) (FieldType, bool) {
	switch FieldType(s) {
	case FieldString, FieldNumber, FieldBool, FieldArray:
		return FieldType(s), true
	default:
		return "", false
	}
}

// Has reports whether docType is registered.
func (r *Registry) Has(docType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[docType]
	return ok
}

// Get returns the schema for docType.
func (r *Registry) Get(docType string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[docType]
	return s, ok
}

// Names returns every registered doc-type name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks frontmatter against docType's schema: every required
// field must be present, every field with an enum constraint must take
// one of the allowed values, and every field with a type constraint
// must decode to that type. An unregistered docType itself yields one
// ValidationError on the "doc_type" field.
func (r *Registry) Validate(docType string, frontmatter map[string]any) []ValidationError {
	s, ok := r.Get(docType)
	if !ok {
		return []ValidationError{{Field: "doc_type", Message: fmt.Sprintf("unregistered doc_type %q", docType)}}
	}

	var errs []ValidationError
	for _, field := range s.RequiredFields {
		if _, present := frontmatter[field]; !present {
			errs = append(errs, ValidationError{Field: field, Message: "required field missing"})
		}
	}
	for field, allowed := range s.EnumFields {
		v, present := frontmatter[field]
		if !present {
			continue
		}
		str, ok := v.(string)
		if !ok || !contains(allowed, str) {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("must be one of %v", allowed)})
		}
	}
	for field, ft := range s.FieldTypes {
		v, present := frontmatter[field]
		if !present {
			continue
		}
		if !matchesType(v, ft) {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("must be of type %s", ft)})
		}
	}
	return errs
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// matchesType checks v's dynamic type against ft via a type switch, not
// the reflect package.
func matchesType(v any, ft FieldType) bool {
	switch ft {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		default:
			return false
		}
	case FieldBool:
		_, ok := v.(bool)
		return ok
	case FieldArray:
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}
