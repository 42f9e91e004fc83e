package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"devpulse/pkg/models"
)

// Evaluator compiles and runs CEL expressions against event fields. Routing
// rules and config-defined global filters both go through it; expressions
// are compiled once at startup and the programs are reused per event.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		// "type" collides with CEL's builtin type() declaration.
		cel.Variable("event_type", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("timestamp", cel.IntType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// CompileFilter returns a reusable program for a bool expression.
func (e *Evaluator) CompileFilter(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

// EvaluateProgram runs a compiled filter against one event.
func (e *Evaluator) EvaluateProgram(ctx context.Context, program cel.Program, evt models.Event) (bool, error) {
	result, _, err := program.ContextEval(ctx, eventVars(evt))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// EvaluateFilter compiles and runs a bool expression in one step.
func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, evt models.Event) (bool, error) {
	program, err := e.CompileFilter(expression)
	if err != nil {
		return false, err
	}
	return e.EvaluateProgram(ctx, program, evt)
}

func eventVars(evt models.Event) map[string]interface{} {
	data := evt.Data
	if data == nil {
		data = map[string]interface{}{}
	}

	metadata := map[string]interface{}{}
	if evt.Metadata != nil {
		if evt.Metadata.Environment != "" {
			metadata["environment"] = evt.Metadata.Environment
		}
		if evt.Metadata.User != "" {
			metadata["user"] = evt.Metadata.User
		}
		if evt.Metadata.Session != "" {
			metadata["session"] = evt.Metadata.Session
		}
		if evt.Metadata.Project != "" {
			metadata["project"] = evt.Metadata.Project
		}
	}

	return map[string]interface{}{
		"id":         evt.ID,
		"event_type": evt.Type,
		"category":   string(evt.Category),
		"severity":   string(evt.Severity),
		"source":     evt.Source,
		"timestamp":  evt.Timestamp,
		"data":       data,
		"metadata":   metadata,
	}
}
