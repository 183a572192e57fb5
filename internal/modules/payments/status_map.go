package payments

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed status_tables.yaml
var statusTablesYAML []byte

// StatusTables maps each gateway's status vocabulary onto Status.
type StatusTables struct {
	tables map[string]map[string]Status
}

func ParseStatusTables(b []byte) (*StatusTables, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("payments: parse status tables: %w", err)
	}
	t := &StatusTables{tables: map[string]map[string]Status{}}
	for provider, entries := range raw {
		m := make(map[string]Status, len(entries))
		for upstream, local := range entries {
			s := Status(local)
			if !s.Valid() {
				return nil, fmt.Errorf("payments: %s status %q maps to unknown %q", provider, upstream, local)
			}
			m[strings.ToLower(upstream)] = s
		}
		t.tables[strings.ToLower(provider)] = m
	}
	return t, nil
}

var (
	defaultTablesOnce sync.Once
	defaultTables     *StatusTables
)

// DefaultStatusTables returns the built-in tables.
func DefaultStatusTables() *StatusTables {
	defaultTablesOnce.Do(func() {
		t, err := ParseStatusTables(statusTablesYAML)
		if err != nil {
			panic(err)
		}
		defaultTables = t
	})
	return defaultTables
}

// Map translates an upstream status. Unknown providers or statuses give
// StatusPending, never approved.
func (t *StatusTables) Map(provider, upstream string) Status {
	m, ok := t.tables[strings.ToLower(provider)]
	if !ok {
		return StatusPending
	}
	if s, ok := m[strings.ToLower(strings.TrimSpace(upstream))]; ok {
		return s
	}
	return StatusPending
}

// Known lists the upstream statuses of provider, sorted.
func (t *StatusTables) Known(provider string) []string {
	m := t.tables[strings.ToLower(provider)]
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusApproved, StatusDeclined, StatusRefunded:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDeclined || s == StatusRefunded
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusApproved, StatusDeclined},
	StatusProcessing: {StatusApproved, StatusDeclined},
	StatusApproved:   {StatusRefunded},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
