// Package filter provides CEL-based record filtering for scoped scoring
// runs. The scoring rules themselves are fixed; the filter only decides
// which records a run scores and writes back.
package filter

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
)

// Filter is a compiled record predicate.
type Filter struct {
	program cel.Program
}

// Compile validates and compiles a CEL expression over record variables.
// The expression must evaluate to a bool. Available variables: amount
// (double), invoice, item, customer, rep (string), pending (bool),
// age_days (int, -1 when the record has no usable date).
func Compile(expr string) (*Filter, error) {
	if expr == "" {
		return nil, fmt.Errorf("filter expression is required")
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("invoice", cel.StringType),
		cel.Variable("item", cel.StringType),
		cel.Variable("customer", cel.StringType),
		cel.Variable("rep", cel.StringType),
		cel.Variable("pending", cel.BoolType),
		cel.Variable("age_days", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter must return bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter program: %w", err)
	}

	return &Filter{program: program}, nil
}

// Match evaluates the filter against one record. Evaluation errors count as
// no-match so a bad record can never widen a scoped run.
func (f *Filter) Match(rec *domain.CreditRequest, today time.Time) bool {
	ageDays := -1
	if age, ok := rec.AgeDays(today); ok {
		ageDays = age
	}

	out, _, err := f.program.Eval(map[string]any{
		"amount":   rec.Amount,
		"invoice":  rec.InvoiceNumber,
		"item":     rec.ItemNumber,
		"customer": rec.CustomerNumber,
		"rep":      rec.SalesRep,
		"pending":  rec.Pending(),
		"age_days": ageDays,
	})
	if err != nil {
		return false
	}

	b, ok := out.(types.Bool)
	return ok && bool(b)
}
