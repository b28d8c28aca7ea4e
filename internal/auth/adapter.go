package auth

import (
	"context"
	"strings"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"github.com/bher20/meterledger/internal/storage"
)

// Adapter implements the Casbin persist.Adapter interface using storage.Storage.
type Adapter struct {
	storage storage.Storage
}

// NewAdapter returns a new Casbin adapter.
func NewAdapter(s storage.Storage) *Adapter {
	return &Adapter{storage: s}
}

// LoadPolicy loads all policy rules from the storage.
func (a *Adapter) LoadPolicy(m model.Model) error {
	rules, err := a.storage.LoadPolicyRules(context.Background())
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if err := persist.LoadPolicyLine(ruleLine(rule), m); err != nil {
			return err
		}
	}
	return nil
}

// SavePolicy replaces the stored rules with every rule held by the model.
func (a *Adapter) SavePolicy(m model.Model) error {
	ctx := context.Background()
	existing, err := a.storage.LoadPolicyRules(ctx)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if err := a.storage.RemovePolicyRule(ctx, r); err != nil {
			return err
		}
	}
	for _, sec := range []string{"p", "g"} {
		for ptype, ast := range m[sec] {
			for _, rule := range ast.Policy {
				if err := a.storage.AddPolicyRule(ctx, toRule(ptype, rule)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// AddPolicy adds a policy rule to the storage.
func (a *Adapter) AddPolicy(sec string, ptype string, rule []string) error {
	return a.storage.AddPolicyRule(context.Background(), toRule(ptype, rule))
}

// RemovePolicy removes a policy rule from the storage.
func (a *Adapter) RemovePolicy(sec string, ptype string, rule []string) error {
	return a.storage.RemovePolicyRule(context.Background(), toRule(ptype, rule))
}

// RemoveFilteredPolicy removes the rules of ptype whose fields, starting at
// fieldIndex, equal fieldValues. Empty filter values match anything.
func (a *Adapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	ctx := context.Background()
	rules, err := a.storage.LoadPolicyRules(ctx)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r.PType != ptype || !matchesFilter(ruleFields(r), fieldIndex, fieldValues) {
			continue
		}
		if err := a.storage.RemovePolicyRule(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func matchesFilter(fields []string, fieldIndex int, values []string) bool {
	for i, v := range values {
		idx := fieldIndex + i
		if v == "" {
			continue
		}
		if idx >= len(fields) || fields[idx] != v {
			return false
		}
	}
	return true
}

func toRule(ptype string, rule []string) storage.PolicyRule {
	r := storage.PolicyRule{PType: ptype}
	fields := []*string{&r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5}
	for i, v := range rule {
		if i >= len(fields) {
			break
		}
		*fields[i] = v
	}
	return r
}

func ruleFields(r storage.PolicyRule) []string {
	return []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
}

func ruleLine(r storage.PolicyRule) string {
	parts := []string{r.PType}
	for _, v := range ruleFields(r) {
		if v == "" {
			break
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ", ")
}
