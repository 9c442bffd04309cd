package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"chatguard/pkg/models"
)

// Evaluator compiles and runs boolean CEL rules over chat messages.
//
// Available variables: id, text, chat_id, chat_name, author (strings) and
// timestamp (timestamp).
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("chat_id", cel.StringType),
		cel.Variable("chat_name", cel.StringType),
		cel.Variable("author", cel.StringType),
		cel.Variable("timestamp", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateRuleExpression(expression string) error {
	_, err := e.CompileRule(expression)
	return err
}

// CompileRule compiles an expression that must produce a bool.
func (e *Evaluator) CompileRule(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) EvaluateRule(ctx context.Context, program cel.Program, msg models.Message) (bool, error) {
	result, _, err := program.ContextEval(ctx, Variables(msg))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// Evaluate compiles and runs expression in one step.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, msg models.Message) (bool, error) {
	program, err := e.CompileRule(expression)
	if err != nil {
		return false, err
	}
	return e.EvaluateRule(ctx, program, msg)
}

func Variables(msg models.Message) map[string]interface{} {
	return map[string]interface{}{
		"id":        msg.ID,
		"text":      msg.Text,
		"chat_id":   msg.Origin.ChatID,
		"chat_name": msg.Origin.ChatName,
		"author":    msg.Origin.AuthorName,
		"timestamp": msg.ReceivedAt,
	}
}
