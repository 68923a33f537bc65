package deploy

import (
	"errors"
	"fmt"

	"fleetwall/internal/command"
	"fleetwall/internal/domain"
)

// Plan is the ordered command list sent to every device in a group.
// Address-list entries come first so rules can reference them.
type Plan struct {
	Operations []domain.Operation         `json:"operations" yaml:"operations"`
	Rejected   []*domain.ValidationError `json:"rejected,omitempty" yaml:"rejected,omitempty"`
}

// BuildPlan renders lists and rules in declaration order. Rules that fail
// validation are left out of the plan and reported as rejected.
func BuildPlan(rules []domain.FirewallRule, lists []domain.AddressList) *Plan {
	plan := &Plan{}
	registry := domain.NewAddressListRegistry(lists)

	for i := range lists {
		list := &lists[i]
		for _, entry := range list.Entries {
			plan.Operations = append(plan.Operations, domain.Operation{
				Kind:    domain.OperationListEntry,
				Ref:     list.Name + "/" + entry,
				Command: command.RenderListEntry(list, entry),
			})
		}
	}

	for i := range rules {
		rule := &rules[i]
		cmd, err := command.Render(rule, registry)
		if err != nil {
			plan.Rejected = append(plan.Rejected, asValidationError(rule.ID, err))
			continue
		}
		plan.Operations = append(plan.Operations, domain.Operation{
			Kind:    domain.OperationRule,
			Ref:     rule.ID,
			Command: cmd,
		})
	}

	return plan
}

// Commands returns the plan's command strings in order
func (p *Plan) Commands() []string {
	commands := make([]string, len(p.Operations))
	for i, op := range p.Operations {
		commands[i] = op.Command
	}
	return commands
}

func asValidationError(ruleID string, err error) *domain.ValidationError {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &domain.ValidationError{RuleID: ruleID, Field: "rule", Reason: fmt.Sprint(err)}
}
