// Package assignment decides which user is responsible for the next
// occurrence of a chore.
package assignment

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

// Input is everything a policy may look at. Policies never fetch state.
type Input struct {
	Type            model.AssignmentType
	Config          string
	EligibleUsers   []int64
	LastAssigned    *int64
	LastCompletions map[int64]time.Time
}

// Policy resolves the next assignee for one assignment type.
type Policy interface {
	// Validate checks the policy's configuration payload.
	Validate(config string) error
	// Next returns the next assignee, or nil for no assignee.
	Next(in Input) (*int64, error)
}

// Registry maps assignment types to policies.
type Registry struct {
	mu       sync.RWMutex
	policies map[model.AssignmentType]Policy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[model.AssignmentType]Policy)}
}

// DefaultRegistry returns a registry holding the built-in policies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(model.AssignmentNone, nonePolicy{})
	r.Register(model.AssignmentSingleUser, singleUserPolicy{})
	r.Register(model.AssignmentRoundRobin, roundRobinPolicy{})
	r.Register(model.AssignmentLeastRecentlyDone, leastRecentlyDonePolicy{})
	return r
}

// Register adds or replaces the policy for an assignment type.
func (r *Registry) Register(t model.AssignmentType, p Policy) {
	r.mu.Lock()
	r.policies[t] = p
	r.mu.Unlock()
}

func (r *Registry) lookup(t model.AssignmentType) (Policy, error) {
	r.mu.RLock()
	p, ok := r.policies[t]
	r.mu.RUnlock()
	if !ok {
		return nil, apperror.New(apperror.KindConfiguration, "assignment", "unknown assignment type "+string(t))
	}
	return p, nil
}

// Validate checks that t is registered and config is well formed for it.
func (r *Registry) Validate(t model.AssignmentType, config string) error {
	p, err := r.lookup(t)
	if err != nil {
		return err
	}
	return p.Validate(config)
}

// ResolveNext returns the user slated for the next occurrence.
func (r *Registry) ResolveNext(in Input) (*int64, error) {
	p, err := r.lookup(in.Type)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(in.Config); err != nil {
		return nil, err
	}
	return p.Next(in)
}

// ParseUserIDs parses a comma-separated list of user ids. Blank input yields
// an empty list.
func ParseUserIDs(config string) ([]int64, error) {
	config = strings.TrimSpace(config)
	if config == "" {
		return nil, nil
	}
	parts := strings.Split(config, ",")
	ids := make([]int64, 0, len(parts))
	seen := make(map[int64]bool, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, configError("invalid user id %q", part)
		}
		if seen[id] {
			return nil, configError("duplicate user id %d", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// FormatUserIDs is the inverse of ParseUserIDs.
func FormatUserIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func configError(format string, args ...any) error {
	return apperror.New(apperror.KindConfiguration, "assignment", fmt.Sprintf(format, args...))
}

type nonePolicy struct{}

func (nonePolicy) Validate(string) error       { return nil }
func (nonePolicy) Next(Input) (*int64, error) { return nil, nil }

type singleUserPolicy struct{}

func (singleUserPolicy) Validate(config string) error {
	ids, err := ParseUserIDs(config)
	if err != nil {
		return err
	}
	if len(ids) != 1 {
		return configError("single-user requires exactly one user id, got %d", len(ids))
	}
	return nil
}

func (singleUserPolicy) Next(in Input) (*int64, error) {
	ids, _ := ParseUserIDs(in.Config)
	id := ids[0]
	return &id, nil
}

type roundRobinPolicy struct{}

func (roundRobinPolicy) Validate(config string) error {
	ids, err := ParseUserIDs(config)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return configError("round-robin requires at least one user id")
	}
	return nil
}

func (roundRobinPolicy) Next(in Input) (*int64, error) {
	ids, _ := ParseUserIDs(in.Config)
	next := ids[0]
	if in.LastAssigned != nil {
		for i, id := range ids {
			if id == *in.LastAssigned {
				next = ids[(i+1)%len(ids)]
				break
			}
		}
	}
	return &next, nil
}

// leastRecentlyDonePolicy picks the candidate whose last completion is the
// oldest. Candidates come from the config, or from the eligible users when
// the config is empty. With no candidates at all nobody is assigned.
type leastRecentlyDonePolicy struct{}

func (leastRecentlyDonePolicy) Validate(config string) error {
	_, err := ParseUserIDs(config)
	return err
}

func (leastRecentlyDonePolicy) Next(in Input) (*int64, error) {
	candidates, _ := ParseUserIDs(in.Config)
	if len(candidates) == 0 {
		candidates = append([]int64(nil), in.EligibleUsers...)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	slices.SortFunc(candidates, func(x, y int64) int {
		a, aDone := in.LastCompletions[x]
		b, bDone := in.LastCompletions[y]
		switch {
		case aDone != bDone:
			if aDone {
				return 1
			}
			return -1
		case aDone && !a.Equal(b):
			return a.Compare(b)
		default:
			return cmp.Compare(x, y)
		}
	})
	next := candidates[0]
	return &next, nil
}
