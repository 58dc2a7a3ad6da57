// Package policy decides whether a pre-approved charge may be made, using
// rules written as govaluate expressions.
//
// Expressions see these parameters:
//
//	amount    charge amount as a float
//	currency  ISO currency code
//	order_id  merchant order id
//	reg_key   reg key being charged
package policy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Knetic/govaluate"
	"github.com/shopspring/decimal"
)

// PolicyDecision represents the outcome of a policy evaluation.
type PolicyDecision struct {
	AllowCharge bool
	RuleID      string // empty when no rule matched
	Reason      string
}

// PolicyRule yields Decision when Expression evaluates to true, or to false
// when Negate is set. Lower Priority values are evaluated first; ties keep
// their declared order.
type PolicyRule struct {
	ID         string
	Expression string
	Negate     bool
	Priority   int
	Decision   PolicyDecision
}

// ChargeRequest is the input a rule is evaluated against.
type ChargeRequest struct {
	Amount   decimal.Decimal
	Currency string
	OrderID  string
	RegKey   string
}

type compiledRule struct {
	rule PolicyRule
	expr *govaluate.EvaluableExpression
}

// ChargePolicyEnforcer evaluates charge rules in priority order.
type ChargePolicyEnforcer struct {
	rules []compiledRule
}

var defaultDecision = PolicyDecision{AllowCharge: true, Reason: "no rule matched"}

// NewChargePolicyEnforcer compiles rules. Any rule that fails to compile
// rejects the whole set.
func NewChargePolicyEnforcer(rules []PolicyRule) (*ChargePolicyEnforcer, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Expression == "" {
			return nil, fmt.Errorf("policy rule ID '%s' has an empty expression", r.ID)
		}
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule ID '%s': %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{rule: r, expr: expr})
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].rule.Priority < compiled[j].rule.Priority
	})
	return &ChargePolicyEnforcer{rules: compiled}, nil
}

// FromExpression builds an enforcer that denies any charge for which
// expression does not hold. An empty expression allows every charge.
func FromExpression(expression string) (*ChargePolicyEnforcer, error) {
	if expression == "" {
		return NewChargePolicyEnforcer(nil)
	}
	return NewChargePolicyEnforcer([]PolicyRule{{
		ID:         "charge_policy",
		Expression: expression,
		Negate:     true,
		Decision:   PolicyDecision{AllowCharge: false, Reason: "charge policy not satisfied: " + expression},
	}})
}

// Evaluate returns the decision of the first matching rule, or an allowing
// default when none match.
func (e *ChargePolicyEnforcer) Evaluate(req ChargeRequest) (PolicyDecision, error) {
	params := map[string]interface{}{
		"amount":   req.Amount.InexactFloat64(),
		"currency": req.Currency,
		"order_id": req.OrderID,
		"reg_key":  req.RegKey,
	}
	for _, cr := range e.rules {
		out, err := cr.expr.Evaluate(params)
		if err != nil {
			return PolicyDecision{}, fmt.Errorf("failed to evaluate rule ID '%s': %w", cr.rule.ID, err)
		}
		matched, ok := out.(bool)
		if !ok {
			return PolicyDecision{}, fmt.Errorf("rule ID '%s' evaluated to %T, want bool", cr.rule.ID, out)
		}
		if matched != cr.rule.Negate {
			decision := cr.rule.Decision
			decision.RuleID = cr.rule.ID
			return decision, nil
		}
	}
	return defaultDecision, nil
}

// ErrDenied is wrapped by DeniedError.
var ErrDenied = errors.New("charge denied by policy")

// DeniedError reports the decision that blocked a charge.
type DeniedError struct {
	Decision PolicyDecision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: rule %s: %s", ErrDenied, e.Decision.RuleID, e.Decision.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrDenied }
