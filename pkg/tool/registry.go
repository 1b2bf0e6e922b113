package tool

import (
	"encoding/json"
	"slices"

	invopop "github.com/invopop/jsonschema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wilhg/summon/pkg/errmodel"
)

// Tool is a registered definition together with its wire schema and the
// compiled validator for it.
type Tool struct {
	Definition

	wire     *invopop.Schema
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// InputSchema returns the ordered wire schema advertised to clients.
func (t *Tool) InputSchema() *invopop.Schema { return t.wire }

// SchemaJSON returns the encoded wire schema.
func (t *Tool) SchemaJSON() json.RawMessage { return slices.Clone(t.raw) }

// Registry maps tool names to tools and keeps registration order.
// A registry is filled during initialization and then sealed; it is not safe
// to register concurrently with lookups.
type Registry struct {
	byName map[string]*Tool
	order  []*Tool
	sealed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Tool)}
}

// Register lints, compiles and stores a definition. Names are case-sensitive.
func (r *Registry) Register(d Definition) error {
	if r.sealed {
		return errmodel.System("registry_sealed", "registry no longer accepts tools", map[string]any{"tool": d.Name}, nil)
	}
	if issues := Lint(d); len(issues) > 0 {
		return errmodel.Validation(errmodel.CodeLintFailed, "tool definition failed lint checks", map[string]any{
			"tool":   d.Name,
			"issues": joinRules(issues),
		})
	}
	if _, exists := r.byName[d.Name]; exists {
		return errmodel.DuplicateTool(d.Name)
	}
	wire := buildSchema(d)
	raw, err := marshalSchema(wire)
	if err != nil {
		return errmodel.System("schema_encode", "encode input schema", map[string]any{"tool": d.Name}, err)
	}
	compiled, err := compileSchema(d.Name, raw)
	if err != nil {
		return errmodel.System("schema_compile", "compile input schema", map[string]any{"tool": d.Name}, err)
	}
	d.Fields = slices.Clone(d.Fields)
	t := &Tool{Definition: d, wire: wire, raw: raw, compiled: compiled}
	r.byName[d.Name] = t
	r.order = append(r.order, t)
	return nil
}

// MustRegister registers every definition and panics on the first error.
// Registration errors are programming errors.
func (r *Registry) MustRegister(defs ...Definition) *Registry {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Seal stops further registration.
func (r *Registry) Seal() { r.sealed = true }

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (*Tool, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, errmodel.UnknownTool(name)
	}
	return t, nil
}

// List returns the tools in registration order.
func (r *Registry) List() []*Tool {
	return slices.Clone(r.order)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }
