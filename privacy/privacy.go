package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Policy decisions. Rules return them, possibly wrapped; check them with
// errors.Is.
var (
	Allow = errors.New("linkql/privacy: allow rule")
	Deny  = errors.New("linkql/privacy: deny rule")
	Skip  = errors.New("linkql/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Operations of a request.
const (
	OpSelectOne = "select_one"
	OpSelectAll = "select_all"
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpDelete    = "delete"
)

// Request describes an operation about to run.
type Request struct {
	Op         string
	Collection string
	// Links holds the requested link keys, sorted.
	Links []string
}

// Mutation reports whether the request writes.
func (r *Request) Mutation() bool {
	switch r.Op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Rule decides on a request.
type Rule interface {
	EvalRequest(context.Context, *Request) error
}

// RuleFunc adapts an ordinary function to a Rule.
type RuleFunc func(context.Context, *Request) error

// EvalRequest returns f(ctx, r).
func (f RuleFunc) EvalRequest(ctx context.Context, r *Request) error {
	return f(ctx, r)
}

// Policy is an ordered list of rules.
type Policy []Rule

// EvalRequest evaluates the rules in order. A decision attached to the
// context takes precedence over the rules. Allow ends the evaluation with
// a nil error and Deny with the decision itself.
func (p Policy) EvalRequest(ctx context.Context, r *Request) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range p {
		switch decision := rule.EvalRequest(ctx, r); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// AlwaysAllowRule returns a rule that allows every request.
func AlwaysAllowRule() Rule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that denies every request.
func AlwaysDenyRule() Rule {
	return fixedDecision{Deny}
}

// ContextRule returns a rule deciding from the context only. A nil result
// skips.
func ContextRule(eval func(context.Context) error) Rule {
	return RuleFunc(func(ctx context.Context, _ *Request) error {
		return eval(ctx)
	})
}

// OnOperation evaluates the rule only for the given operations.
func OnOperation(rule Rule, ops ...string) Rule {
	return RuleFunc(func(ctx context.Context, r *Request) error {
		if slices.Contains(ops, r.Op) {
			return rule.EvalRequest(ctx, r)
		}
		return Skip
	})
}

// OnCollection evaluates the rule only for requests on the given
// collections.
func OnCollection(rule Rule, collections ...string) Rule {
	return RuleFunc(func(ctx context.Context, r *Request) error {
		if slices.Contains(collections, r.Collection) {
			return rule.EvalRequest(ctx, r)
		}
		return Skip
	})
}

// DenyMutationRule returns a rule denying inserts, updates and deletes.
func DenyMutationRule() Rule {
	return RuleFunc(func(_ context.Context, r *Request) error {
		if r.Mutation() {
			return Denyf("linkql/privacy: %s on %q is not allowed", r.Op, r.Collection)
		}
		return Skip
	})
}

// DenyLinkRule returns a rule denying requests that attach one of the
// given link keys.
func DenyLinkRule(keys ...string) Rule {
	return RuleFunc(func(_ context.Context, r *Request) error {
		for _, k := range r.Links {
			if slices.Contains(keys, k) {
				return Denyf("linkql/privacy: link %q of %q is not allowed", k, r.Collection)
			}
		}
		return Skip
	})
}

type decisionCtxKey struct{}

// DecisionContext returns a copy of parent carrying a decision that
// overrides every policy. Nil and Skip decisions return parent.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext returns the decision attached to the context. An
// Allow decision is returned as nil.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalRequest(context.Context, *Request) error {
	return f.decision
}
