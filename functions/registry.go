// Package functions holds the closed set of tools the live model may call.
package functions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/genai"

	"github.com/room4-2/ada/session"
)

// Runner performs the long-running part of a tool call.
type Runner interface {
	Run(ctx context.Context, prompt string, progress func(session.Progress)) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, prompt string, progress func(session.Progress)) (string, error)

func (f RunnerFunc) Run(ctx context.Context, prompt string, progress func(session.Progress)) (string, error) {
	return f(ctx, prompt, progress)
}

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// Param describes one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Definition declares a tool.
type Definition struct {
	Name                 string
	Description          string
	Params               []Param
	PromptParam          string // argument forwarded to the runner, "prompt" by default
	RequiresConfirmation bool
	Acknowledgement      string
	Completion           func(result string, err error) string
	Runner               Runner
}

// Registry maps tool names to definitions. It is built once at startup and
// read concurrently afterwards.
type Registry struct {
	tools map[string]*registeredTool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register compiles def's argument schema and adds it to the registry.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Runner == nil {
		return fmt.Errorf("tool %s: runner is required", def.Name)
	}
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	if def.PromptParam == "" {
		def.PromptParam = "prompt"
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(jsonSchema(def.Params)))
	if err != nil {
		return fmt.Errorf("invalid schema for tool %s: %w", def.Name, err)
	}

	r.tools[def.Name] = &registeredTool{def: def, schema: schema}
	return nil
}

// Lookup implements session.Tools.
func (r *Registry) Lookup(name string) (session.Tool, bool) {
	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return t, true
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns the function declarations sent to the live model.
// Every tool is declared non-blocking: the model keeps talking while it runs.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(r.tools))
	for _, name := range r.Names() {
		def := r.tools[name].def
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  genaiSchema(def.Params),
			Behavior:    genai.BehaviorNonBlocking,
		})
	}
	return decls
}

// Tools returns the tool set for the live connection: Google Search plus
// every registered function.
func (r *Registry) Tools() []*genai.Tool {
	return []*genai.Tool{
		{GoogleSearch: &genai.GoogleSearch{}},
		{FunctionDeclarations: r.Declarations()},
	}
}

func jsonSchema(params []Param) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := make([]interface{}, 0, len(params))
	for _, p := range params {
		properties[p.Name] = map[string]interface{}{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func genaiSchema(params []Param) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(params)),
	}
	for _, p := range params {
		schema.Properties[p.Name] = &genai.Schema{
			Type:        genaiType(p.Type),
			Description: p.Description,
		}
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}

func genaiType(t ParamType) genai.Type {
	switch t {
	case ParamInteger:
		return genai.TypeInteger
	case ParamNumber:
		return genai.TypeNumber
	case ParamBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

type registeredTool struct {
	def    Definition
	schema *gojsonschema.Schema
}

func (t *registeredTool) Validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	result, err := t.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validation error for tool %s: %w", t.def.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			msgs[i] = desc.String()
		}
		return fmt.Errorf("argument validation failed for tool %s: %s", t.def.Name, strings.Join(msgs, "; "))
	}
	return nil
}

func (t *registeredTool) RequiresConfirmation() bool {
	return t.def.RequiresConfirmation
}

func (t *registeredTool) Acknowledgement() string {
	return t.def.Acknowledgement
}

func (t *registeredTool) Run(ctx context.Context, args map[string]any, progress func(session.Progress)) (string, error) {
	prompt, _ := args[t.def.PromptParam].(string)
	return t.def.Runner.Run(ctx, prompt, progress)
}

func (t *registeredTool) CompletionMessage(result string, err error) string {
	if t.def.Completion == nil {
		return ""
	}
	return t.def.Completion(result, err)
}
