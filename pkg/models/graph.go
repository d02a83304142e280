package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidGraph is returned when a step graph fails validation.
var ErrInvalidGraph = errors.New("invalid step graph")

// EdgeKind is the type of a successor link between two steps.
type EdgeKind string

const (
	EdgeNext   EdgeKind = "next"
	EdgeBranch EdgeKind = "branch"
)

// Edge is a typed successor link. Branch is the branch index for EdgeBranch edges.
type Edge struct {
	Kind   EdgeKind
	Branch int
	To     string
}

// StepGraph is an arena of steps keyed by id with typed edges between them.
type StepGraph struct {
	start string
	steps map[string]*WorkflowStep
	order []string
	dupes []string
}

// NewStepGraph builds a graph from a step list. When start is empty the first step is the entry.
func NewStepGraph(start string, steps []*WorkflowStep) *StepGraph {
	g := &StepGraph{
		start: start,
		steps: make(map[string]*WorkflowStep, len(steps)),
		order: make([]string, 0, len(steps)),
	}

	for _, step := range steps {
		if step == nil {
			continue
		}

		if _, exists := g.steps[step.ID]; exists {
			g.dupes = append(g.dupes, step.ID)

			continue
		}

		g.steps[step.ID] = step
		g.order = append(g.order, step.ID)
	}

	if g.start == "" && len(g.order) > 0 {
		g.start = g.order[0]
	}

	return g
}

// Start returns the entry step id.
func (g *StepGraph) Start() string {
	return g.start
}

// Len returns the number of steps.
func (g *StepGraph) Len() int {
	return len(g.order)
}

// Step looks up a step by id.
func (g *StepGraph) Step(id string) (*WorkflowStep, bool) {
	step, ok := g.steps[id]

	return step, ok
}

// Steps returns the steps in declaration order.
func (g *StepGraph) Steps() []*WorkflowStep {
	steps := make([]*WorkflowStep, 0, len(g.order))
	for _, id := range g.order {
		steps = append(steps, g.steps[id])
	}

	return steps
}

// Edges returns the outgoing edges of a step.
func (g *StepGraph) Edges(id string) []Edge {
	step, ok := g.steps[id]
	if !ok {
		return nil
	}

	var edges []Edge

	if step.StepType == StepTypeDeterminator {
		for i, branch := range step.Branches {
			if branch.NextStepID != "" {
				edges = append(edges, Edge{Kind: EdgeBranch, Branch: i, To: branch.NextStepID})
			}
		}

		return edges
	}

	if step.NextStepID != "" {
		edges = append(edges, Edge{Kind: EdgeNext, To: step.NextStepID})
	}

	return edges
}

// GraphError lists every problem found while validating a graph.
type GraphError struct {
	Problems []string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidGraph, strings.Join(e.Problems, "; "))
}

func (e *GraphError) Unwrap() error {
	return ErrInvalidGraph
}

// Validate checks for duplicate ids, a missing entry, dangling references, unreachable steps,
// malformed determinators and terminus steps, and cycles that never pass through a wait step.
func (g *StepGraph) Validate() error {
	var problems []string

	for _, id := range g.dupes {
		problems = append(problems, fmt.Sprintf("duplicate step id %q", id))
	}

	if len(g.order) == 0 {
		return &GraphError{Problems: append(problems, "workflow has no steps")}
	}

	if _, ok := g.steps[g.start]; !ok {
		problems = append(problems, fmt.Sprintf("start step %q does not exist", g.start))
	}

	for _, id := range g.order {
		step := g.steps[id]

		problems = append(problems, g.validateStep(step)...)

		for _, edge := range g.Edges(id) {
			if _, ok := g.steps[edge.To]; !ok {
				problems = append(problems, fmt.Sprintf("step %q references missing step %q", id, edge.To))
			}
		}
	}

	reachable := g.reachable()
	for _, id := range g.order {
		if !reachable[id] {
			problems = append(problems, fmt.Sprintf("step %q is unreachable", id))
		}
	}

	for _, cycle := range g.cycles() {
		if !g.cycleHasWait(cycle) {
			problems = append(problems, fmt.Sprintf("cycle without a wait step: %s", strings.Join(cycle, " -> ")))
		}
	}

	if len(problems) > 0 {
		return &GraphError{Problems: problems}
	}

	return nil
}

func (g *StepGraph) validateStep(step *WorkflowStep) []string {
	var problems []string

	switch step.StepType {
	case StepTypeAction:
		if step.ActionType == "" {
			problems = append(problems, fmt.Sprintf("action step %q has no action_type", step.ID))
		}
	case StepTypeWait:
		config, err := step.WaitConfig()
		if err != nil {
			problems = append(problems, err.Error())

			break
		}

		_, _, err = config.ResumeAt(time.Time{})
		if err != nil {
			problems = append(problems, fmt.Sprintf("wait step %q: %v", step.ID, err))
		}
	case StepTypeDeterminator:
		if len(step.Branches) == 0 {
			problems = append(problems, fmt.Sprintf("determinator %q has no branches", step.ID))
		}

		elses := 0

		for _, branch := range step.Branches {
			if branch.IsElse {
				elses++
			}
		}

		if elses > 1 {
			problems = append(problems, fmt.Sprintf("determinator %q has %d else branches", step.ID, elses))
		}
	case StepTypeGate:
		if step.Condition == nil {
			problems = append(problems, fmt.Sprintf("gate %q has no condition", step.ID))
		}
	case StepTypeTerminus:
		if step.NextStepID != "" {
			problems = append(problems, fmt.Sprintf("terminus %q must not have a next step", step.ID))
		}
	default:
		problems = append(problems, fmt.Sprintf("step %q has unknown type %q", step.ID, step.StepType))
	}

	return problems
}

func (g *StepGraph) reachable() map[string]bool {
	seen := make(map[string]bool, len(g.order))
	if _, ok := g.steps[g.start]; !ok {
		return seen
	}

	stack := []string{g.start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[id] {
			continue
		}

		seen[id] = true

		for _, edge := range g.Edges(id) {
			if _, ok := g.steps[edge.To]; ok && !seen[edge.To] {
				stack = append(stack, edge.To)
			}
		}
	}

	return seen
}

// cycles returns one representative path per back edge found by a depth-first search.
func (g *StepGraph) cycles() [][]string {
	const (
		white = iota
		grey
		black
	)

	color := make(map[string]int, len(g.order))
	path := make([]string, 0, len(g.order))

	var found [][]string

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		path = append(path, id)

		for _, edge := range g.Edges(id) {
			if _, ok := g.steps[edge.To]; !ok {
				continue
			}

			switch color[edge.To] {
			case white:
				visit(edge.To)
			case grey:
				for i := len(path) - 1; i >= 0; i-- {
					if path[i] == edge.To {
						cycle := append([]string(nil), path[i:]...)
						found = append(found, append(cycle, edge.To))

						break
					}
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
	}

	for _, id := range g.order {
		if color[id] == white {
			visit(id)
		}
	}

	return found
}

func (g *StepGraph) cycleHasWait(cycle []string) bool {
	for _, id := range cycle {
		if step, ok := g.steps[id]; ok && step.StepType == StepTypeWait {
			return true
		}
	}

	return false
}
