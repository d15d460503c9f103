package usecases

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/infrastructure"
)

const (
	ToolSearchInventory   = "search_inventory"
	ToolCarDetail         = "get_car_detail"
	ToolSendPhotos        = "send_car_photos"
	ToolFinancing         = "estimate_financing"
	ToolScheduleTestDrive = "schedule_test_drive"
	ToolTradeIn           = "check_trade_in"
)

// ToolEnv is the conversation a tool call runs for.
type ToolEnv struct {
	Tenant *entities.Tenant
	LeadID entities.LeadID
	Phone  string
}

// ToolHandler returns the content handed back to the reasoning provider.
// A returned error is reported to the provider as an error result.
type ToolHandler func(ctx context.Context, env ToolEnv, args json.RawMessage) (string, error)

type tool struct {
	def        entities.ToolSchema
	schema     *jsonschema.Schema
	sideEffect bool
	handler    ToolHandler
}

// ToolRegistry holds the declared tools in registration order.
type ToolRegistry struct {
	tools map[string]*tool
	order []string
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*tool)}
}

// Register compiles the parameter schema and adds the tool.
func (r *ToolRegistry) Register(name, description, parameters string, sideEffect bool, h ToolHandler) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", bytes.NewReader([]byte(parameters))); err != nil {
		return fmt.Errorf("tool %s: add schema: %w", name, err)
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", name, err)
	}
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = &tool{
		def:        entities.ToolSchema{Name: name, Description: description, Parameters: json.RawMessage(parameters)},
		schema:     schema,
		sideEffect: sideEffect,
		handler:    h,
	}
	return nil
}

func (r *ToolRegistry) Schemas() []entities.ToolSchema {
	out := make([]entities.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].def)
	}
	return out
}

// HasSideEffects reports whether the named tool changes state outside the loop.
func (r *ToolRegistry) HasSideEffects(name string) bool {
	t, ok := r.tools[name]
	return ok && t.sideEffect
}

// Execute validates and runs one call. executed is false when the handler never ran.
func (r *ToolRegistry) Execute(ctx context.Context, env ToolEnv, call entities.ToolCall) (entities.ToolResult, bool) {
	res := entities.ToolResult{ToolCallID: call.ID, Name: call.Name}

	t, ok := r.tools[call.Name]
	if !ok {
		res.Content = fmt.Sprintf("unknown tool %q", call.Name)
		res.IsError = true
		return res, false
	}

	raw := call.Arguments
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		res.Content = "invalid arguments: " + err.Error()
		res.IsError = true
		return res, false
	}
	if err := t.schema.Validate(v); err != nil {
		res.Content = "schema validation failed: " + err.Error()
		res.IsError = true
		return res, false
	}

	ctx, span := infrastructure.StartSpan(ctx, "tool."+call.Name, attribute.String("tenant", env.Tenant.ID))
	content, err := t.handler(ctx, env, raw)
	infrastructure.EndSpan(span, err)
	if err != nil {
		log.Warn().Err(err).Str("tenant", env.Tenant.ID).Str("tool", call.Name).Msg("Tool returned error")
		res.Content = "error: " + err.Error()
		res.IsError = true
		return res, true
	}
	res.Content = content
	return res, true
}

// ExecuteAll runs calls concurrently and returns results in call order,
// plus the names of tools whose handler ran.
func (r *ToolRegistry) ExecuteAll(ctx context.Context, env ToolEnv, calls []entities.ToolCall) ([]entities.ToolResult, []string) {
	results := make([]entities.ToolResult, len(calls))
	ran := make([]bool, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, call := range calls {
		g.Go(func() error {
			res, executed := r.Execute(gctx, env, call)
			mu.Lock()
			results[i] = res
			ran[i] = executed
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var executed []string
	for i, ok := range ran {
		if ok {
			executed = append(executed, calls[i].Name)
		}
	}
	return results, executed
}
