package intention

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FieldType names the JSON type a schema field must carry.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldObject FieldType = "object"
	FieldArray  FieldType = "array"
	FieldAny    FieldType = "any"
)

// ResponseSchema lists the fields a provider response must contain and their
// types. Supplied by the template; the coordinator validates against it.
type ResponseSchema struct {
	Required map[string]FieldType
}

// Validate checks doc for every required field with a matching JSON type.
func (s *ResponseSchema) Validate(doc map[string]any) error {
	for field, want := range s.Required {
		value, ok := doc[field]
		if !ok {
			return fmt.Errorf("missing required field %q", field)
		}
		if !matchesFieldType(value, want) {
			return fmt.Errorf("field %q: expected %s, got %T", field, want, value)
		}
	}
	return nil
}

func matchesFieldType(value any, want FieldType) bool {
	switch want {
	case FieldAny:
		return true
	case FieldString:
		_, ok := value.(string)
		return ok
	case FieldNumber:
		_, ok := value.(float64)
		return ok
	case FieldBool:
		_, ok := value.(bool)
		return ok
	case FieldObject:
		_, ok := value.(map[string]any)
		return ok
	case FieldArray:
		_, ok := value.([]any)
		return ok
	default:
		return false
	}
}

// PromptTemplate is the common Template shape: a typed input schema, a prompt
// formatter and an output schema. Render validates the input, formats the
// prompt and wraps it in a JSON payload for the provider adapter.
type PromptTemplate struct {
	TemplateName    string
	TemplateVersion string

	// Input maps required input fields to their expected types.
	Input map[string]FieldType
	// Output is the schema the provider response must satisfy.
	Output *ResponseSchema
	// Format converts validated input into the prompt text.
	Format func(input map[string]any) (string, error)

	// Freshness window for cached responses; zero defers to the coordinator default.
	TTL time.Duration
	// Retry bound for this template's requests; zero defers to the coordinator default.
	Retries int
	// Advisory cost for budget pre-checks; zero defers to the coordinator default.
	Cost float64
}

func (t *PromptTemplate) Name() string { return t.TemplateName }

func (t *PromptTemplate) Version() string {
	if t.TemplateVersion == "" {
		return "1.0.0"
	}
	return t.TemplateVersion
}

// Render validates input against the input schema and produces the payload
// plus the response schema. Fails with a Template error on invalid input.
func (t *PromptTemplate) Render(input map[string]any) (Payload, *ResponseSchema, error) {
	for field, want := range t.Input {
		value, ok := input[field]
		if !ok {
			return nil, nil, &Error{
				Type:    ErrorTypeTemplate,
				Message: fmt.Sprintf("template %s: missing required input field %q", t.TemplateName, field),
			}
		}
		if !matchesInputType(value, want) {
			return nil, nil, &Error{
				Type:    ErrorTypeTemplate,
				Message: fmt.Sprintf("template %s: input field %q: expected %s, got %T", t.TemplateName, field, want, value),
			}
		}
	}

	if t.Format == nil {
		return nil, nil, &Error{
			Type:    ErrorTypeTemplate,
			Message: fmt.Sprintf("template %s: no prompt formatter defined", t.TemplateName),
		}
	}
	prompt, err := t.Format(input)
	if err != nil {
		return nil, nil, &Error{
			Type:    ErrorTypeTemplate,
			Message: fmt.Sprintf("template %s: prompt formatting failed", t.TemplateName),
			Cause:   err,
		}
	}

	payload, err := json.Marshal(map[string]any{"prompt": prompt})
	if err != nil {
		return nil, nil, &Error{
			Type:    ErrorTypeTemplate,
			Message: fmt.Sprintf("template %s: payload encoding failed", t.TemplateName),
			Cause:   err,
		}
	}
	return Payload(payload), t.Output, nil
}

// matchesInputType accepts the native Go values callers pass, which is a
// wider set than decoded JSON (ints as well as float64).
func matchesInputType(value any, want FieldType) bool {
	switch want {
	case FieldNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	default:
		return matchesFieldType(value, want)
	}
}

func (t *PromptTemplate) CacheTTL() time.Duration { return t.TTL }
func (t *PromptTemplate) MaxRetries() int         { return t.Retries }
func (t *PromptTemplate) EstimateCost() float64   { return t.Cost }

// Registry stores templates by name. Constructed per coordinator; there is no
// process-wide registry.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry creates an empty template registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// Register adds a template, replacing any previous one with the same name.
func (r *Registry) Register(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name()] = t
}

// Get returns the template registered under name.
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// List returns the registered template names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
