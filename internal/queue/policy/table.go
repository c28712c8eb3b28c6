package policy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"officehours/internal/queue/model"

	"gopkg.in/yaml.v3"
)

//go:embed default_transitions.yaml
var defaultTransitions []byte

type statusSet map[model.Status]struct{}

type edges map[model.Status]statusSet

type roleRules struct {
	rank  int
	owner edges
	other edges
}

// Table is the transition policy keyed on (role, isOwner, from).
// It is immutable after load and safe for concurrent use.
type Table struct {
	roles map[model.Role]*roleRules
}

type tableDoc struct {
	Roles []roleDoc `yaml:"roles"`
}

type roleDoc struct {
	Name  string              `yaml:"name"`
	Rank  int                 `yaml:"rank"`
	Owner map[string][]string `yaml:"owner"`
	Other map[string][]string `yaml:"other"`
}

// Default returns the built-in policy.
func Default() *Table {
	table, err := Parse(defaultTransitions)
	if err != nil {
		panic(fmt.Sprintf("default transition table is invalid: %v", err))
	}
	return table
}

// LoadFile reads a policy from path; an empty path yields the built-in policy.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transition table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML policy document.
func Parse(data []byte) (*Table, error) {
	var doc tableDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode transition table: %w", err)
	}
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("transition table defines no roles")
	}

	table := &Table{roles: make(map[model.Role]*roleRules, len(doc.Roles))}
	for _, rd := range doc.Roles {
		role := model.NormalizeRole(rd.Name)
		if role == "" {
			return nil, fmt.Errorf("role name is required")
		}
		if _, dup := table.roles[role]; dup {
			return nil, fmt.Errorf("role %s is defined twice", role)
		}
		owner, err := buildEdges(role, "owner", rd.Owner)
		if err != nil {
			return nil, err
		}
		other, err := buildEdges(role, "other", rd.Other)
		if err != nil {
			return nil, err
		}
		table.roles[role] = &roleRules{rank: rd.Rank, owner: owner, other: other}
	}

	for _, required := range []model.Role{model.RoleStudent, model.RoleHelper, model.RoleAdmin} {
		if _, ok := table.roles[required]; !ok {
			return nil, fmt.Errorf("transition table must define role %s", required)
		}
	}
	return table, nil
}

func buildEdges(role model.Role, side string, raw map[string][]string) (edges, error) {
	out := make(edges, len(raw))
	for fromName, targets := range raw {
		from, ok := model.ParseStatus(fromName)
		if !ok {
			return nil, fmt.Errorf("%s/%s: unknown status %q", role, side, fromName)
		}
		set := make(statusSet, len(targets))
		for _, toName := range targets {
			to, ok := model.ParseStatus(toName)
			if !ok {
				return nil, fmt.Errorf("%s/%s: unknown status %q", role, side, toName)
			}
			if err := validateEdge(from, to); err != nil {
				return nil, fmt.Errorf("%s/%s: %w", role, side, err)
			}
			set[to] = struct{}{}
		}
		out[from] = set
	}
	return out, nil
}

// validateEdge rejects edges the Order store could not honor.
func validateEdge(from, to model.Status) error {
	if to == model.StatusCreated {
		return fmt.Errorf("%s -> %s: CREATED is not a target", from, to)
	}
	if from == to {
		return fmt.Errorf("%s -> %s: self edges are implicit", from, to)
	}
	// These targets keep the existing Order slot, so the request must already hold one.
	switch to {
	case model.StatusInReview, model.StatusNeedsUpdate, model.StatusUpdated:
		if !from.IsQueued() {
			return fmt.Errorf("%s -> %s: target keeps an Order slot the source does not hold", from, to)
		}
	}
	return nil
}

func (t *Table) sideFor(role model.Role, isOwner bool) edges {
	rules, ok := t.roles[role]
	if !ok {
		return nil
	}
	if isOwner {
		return rules.owner
	}
	return rules.other
}

// Allowed lists the targets reachable from from, in lifecycle order.
func (t *Table) Allowed(role model.Role, isOwner bool, from model.Status) []model.Status {
	set := t.sideFor(role, isOwner)[from]
	out := make([]model.Status, 0, len(set))
	for _, s := range model.AllStatuses {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Permits reports whether (role, isOwner) may move a request from from to to.
func (t *Table) Permits(role model.Role, isOwner bool, from, to model.Status) bool {
	_, ok := t.sideFor(role, isOwner)[from][to]
	return ok
}

// CanReach reports whether (role, isOwner) may move a request into to from any status.
func (t *Table) CanReach(role model.Role, isOwner bool, to model.Status) bool {
	for _, set := range t.sideFor(role, isOwner) {
		if _, ok := set[to]; ok {
			return true
		}
	}
	return false
}

// HasRole reports whether role is defined.
func (t *Table) HasRole(role model.Role) bool {
	_, ok := t.roles[role]
	return ok
}

// Rank returns the rank of role.
func (t *Table) Rank(role model.Role) (int, bool) {
	rules, ok := t.roles[role]
	if !ok {
		return 0, false
	}
	return rules.rank, true
}

// AtLeast reports whether role ranks at or above min. Unknown roles never qualify.
func (t *Table) AtLeast(role, min model.Role) bool {
	have, ok := t.Rank(role)
	if !ok {
		return false
	}
	need, ok := t.Rank(min)
	if !ok {
		return false
	}
	return have >= need
}

// Roles lists the defined roles by ascending rank.
func (t *Table) Roles() []model.Role {
	out := make([]model.Role, 0, len(t.roles))
	for role := range t.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := t.roles[out[i]].rank, t.roles[out[j]].rank
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}
