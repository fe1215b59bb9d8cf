package migrations

import (
	"errors"
	"fmt"
)

// Outcome classifies a plan.
type Outcome int

const (
	// OutcomeApply means Steps should run.
	OutcomeApply Outcome = iota
	// OutcomeNothingToDo covers an empty catalog or an empty ledger on rollback.
	OutcomeNothingToDo
	// OutcomeUpToDate means the ledger already sits at the target.
	OutcomeUpToDate
	// OutcomeWrongDirection means the target lies on the other side of the
	// current version; the command is a no-op.
	OutcomeWrongDirection
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApply:
		return "apply"
	case OutcomeNothingToDo:
		return "nothing to do"
	case OutcomeUpToDate:
		return "up to date"
	case OutcomeWrongDirection:
		return "wrong direction"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Plan lists the catalog entries a command will process, in execution order.
type Plan struct {
	Outcome Outcome
	From    int
	To      int
	Steps   []Entry
}

var errNegativeTarget = errors.New("target version must not be negative")

// PlanMigrate plans applying versions current < v <= target in ascending order.
// A nil target means the catalog's latest version.
func PlanMigrate(cat *Catalog, current int, target *int) (Plan, error) {
	latest, ok := cat.Latest()
	if !ok {
		return Plan{Outcome: OutcomeNothingToDo, From: current, To: current}, nil
	}
	to := latest.Number
	if target != nil {
		if *target < 0 {
			return Plan{}, errNegativeTarget
		}
		to = *target
	}

	p := Plan{From: current, To: to}
	switch {
	case to < current:
		p.Outcome = OutcomeWrongDirection
		return p, nil
	case to == current:
		p.Outcome = OutcomeUpToDate
		return p, nil
	}

	p.Steps = cat.between(current, to)
	if len(p.Steps) == 0 {
		p.Outcome = OutcomeUpToDate
		return p, nil
	}
	for _, e := range p.Steps {
		if e.Do == "" {
			return Plan{}, fmt.Errorf("%w: version %d has no do file", ErrMigrationNotFound, e.Number)
		}
	}
	p.Outcome = OutcomeApply
	return p, nil
}

// PlanRollback plans reverting versions target < v <= current in descending
// order. A nil target means current - 1.
func PlanRollback(cat *Catalog, current int, target *int) (Plan, error) {
	if current <= 0 {
		return Plan{Outcome: OutcomeNothingToDo}, nil
	}
	to := current - 1
	if target != nil {
		if *target < 0 {
			return Plan{}, errNegativeTarget
		}
		to = *target
	}

	p := Plan{From: current, To: to}
	if to >= current {
		p.Outcome = OutcomeWrongDirection
		return p, nil
	}

	if _, ok := cat.Lookup(current); !ok {
		return Plan{}, fmt.Errorf("%w: applied version %d is not in the catalog", ErrMigrationNotFound, current)
	}

	asc := cat.between(to, current)
	p.Steps = make([]Entry, 0, len(asc))
	for i := len(asc) - 1; i >= 0; i-- {
		if asc[i].Undo == "" {
			return Plan{}, fmt.Errorf("%w: version %d has no undo file", ErrMigrationNotFound, asc[i].Number)
		}
		p.Steps = append(p.Steps, asc[i])
	}
	p.Outcome = OutcomeApply
	return p, nil
}

// PlanFastForward plans recording every catalog version above current
// without executing anything.
func PlanFastForward(cat *Catalog, current int) Plan {
	latest, ok := cat.Latest()
	if !ok {
		return Plan{Outcome: OutcomeNothingToDo, From: current, To: current}
	}
	p := Plan{From: current, To: latest.Number}
	if latest.Number <= current {
		p.Outcome = OutcomeUpToDate
		return p
	}
	p.Steps = cat.between(current, latest.Number)
	p.Outcome = OutcomeApply
	return p
}
