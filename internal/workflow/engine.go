// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workflow drives a brief through its ordered steps. Step completion
// is always derived from the brief and its associations; nothing records it
// separately.
package workflow

import (
	"fmt"
	"iter"
	"slices"

	"github.com/pdiddy/litbrief/pkg/types"
)

// Step is one stage of the brief workflow.
type Step struct {
	ID    string
	Title string

	// ShouldRender reports whether the step applies to the brief. Nil means
	// it always applies.
	ShouldRender func(types.BriefState) bool

	// IsComplete derives completion from the brief's current state.
	IsComplete func(types.BriefState) bool
}

func (s Step) applies(state types.BriefState) bool {
	return s.ShouldRender == nil || s.ShouldRender(state)
}

func (s Step) complete(state types.BriefState) bool {
	return s.IsComplete != nil && s.IsComplete(state)
}

// Engine holds the ordered step list.
type Engine struct {
	steps []Step
}

// NewEngine registers steps in order.
func NewEngine(steps ...Step) *Engine {
	e := &Engine{}
	for _, s := range steps {
		e.Register(s)
	}
	return e
}

// Register appends step. A duplicate id panics.
func (e *Engine) Register(step Step) {
	e.RegisterAt(step, len(e.steps))
}

// RegisterAt inserts step at position, clamped to the list bounds. A
// duplicate id panics.
func (e *Engine) RegisterAt(step Step, position int) {
	if e.index(step.ID) >= 0 {
		panic(fmt.Sprintf("workflow: duplicate step id %q", step.ID))
	}
	position = min(max(position, 0), len(e.steps))
	e.steps = slices.Insert(e.steps, position, step)
}

func (e *Engine) index(id string) int {
	return slices.IndexFunc(e.steps, func(s Step) bool { return s.ID == id })
}

// Steps returns every registered step in order.
func (e *Engine) Steps() []Step {
	return slices.Clone(e.steps)
}

// ApplicableSteps yields, in order, the steps whose ShouldRender accepts
// state. The sequence is evaluated on each iteration.
func (e *Engine) ApplicableSteps(state types.BriefState) iter.Seq[Step] {
	return func(yield func(Step) bool) {
		for _, s := range e.steps {
			if s.applies(state) && !yield(s) {
				return
			}
		}
	}
}

// CompletedIDs returns the ids of the steps that are complete for state.
func CompletedIDs(steps []Step, state types.BriefState) map[string]bool {
	done := make(map[string]bool)
	for _, s := range steps {
		if s.complete(state) {
			done[s.ID] = true
		}
	}
	return done
}

// IsStepAvailable reports whether steps[index] may be opened: index 0
// always, any later index only when every earlier step is complete.
func IsStepAvailable(steps []Step, index int, completed map[string]bool) bool {
	if index < 0 || index >= len(steps) {
		return false
	}
	for _, s := range steps[:index] {
		if !completed[s.ID] {
			return false
		}
	}
	return true
}

// firstIncomplete returns the index of the first step not in completed, or
// len(steps) when all are complete.
func firstIncomplete(steps []Step, completed map[string]bool) int {
	for i, s := range steps {
		if !completed[s.ID] {
			return i
		}
	}
	return len(steps)
}

// NavigationReason says why a move was refused.
type NavigationReason string

const (
	// ReasonNotAvailable means earlier steps are still incomplete.
	ReasonNotAvailable NavigationReason = "not_available"

	// ReasonFinishCurrent means the user is on the first incomplete step
	// and tried to skip past it.
	ReasonFinishCurrent NavigationReason = "finish_current"
)

// NavigationError is returned when a move between steps is refused.
type NavigationError struct {
	From, To int
	StepID   string
	Reason   NavigationReason
}

func (e *NavigationError) Error() string {
	switch e.Reason {
	case ReasonFinishCurrent:
		return fmt.Sprintf("cannot open step %q: finish the current step first", e.StepID)
	default:
		return fmt.Sprintf("cannot open step %q: it is not available yet", e.StepID)
	}
}

// ValidateNavigation checks a move from one step index to another. Moving
// backward is always allowed, as is opening a completed step or the first
// incomplete one. When completed is nil it is derived from state.
func ValidateNavigation(steps []Step, from, to int, completed map[string]bool, state types.BriefState) error {
	if to < 0 || to >= len(steps) {
		return fmt.Errorf("step index %d out of range [0, %d)", to, len(steps))
	}
	if completed == nil {
		completed = CompletedIDs(steps, state)
	}
	if to < from || completed[steps[to].ID] {
		return nil
	}
	frontier := firstIncomplete(steps, completed)
	if to == frontier {
		return nil
	}
	reason := ReasonNotAvailable
	if from == frontier {
		reason = ReasonFinishCurrent
	}
	return &NavigationError{From: from, To: to, StepID: steps[to].ID, Reason: reason}
}
