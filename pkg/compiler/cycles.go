package compiler

import (
	"fmt"
	"strings"

	"lambda/interpreter-go/pkg/runtime"
)

const (
	unvisited = iota
	visiting
	done
)

// checkCycles rejects definitions whose bodies reach themselves through the
// reference graph. Under strict evaluation such a set can only diverge.
func (c *compilation) checkCycles() {
	state := make(map[*runtime.Definition]int)
	var stack []*runtime.Definition
	reported := make(map[*runtime.Definition]bool)

	var visit func(def *runtime.Definition)
	visit = func(def *runtime.Definition) {
		state[def] = visiting
		stack = append(stack, def)
		for _, next := range references(def.Body, nil) {
			switch state[next] {
			case unvisited:
				visit(next)
			case visiting:
				c.reportCycle(stack, next, reported)
			}
		}
		stack = stack[:len(stack)-1]
		state[def] = done
	}

	for _, pkgName := range c.registry.Packages() {
		for _, def := range c.registry.Definitions(pkgName) {
			if state[def] == unvisited {
				visit(def)
			}
		}
	}
}

func (c *compilation) reportCycle(stack []*runtime.Definition, target *runtime.Definition, reported map[*runtime.Definition]bool) {
	start := len(stack) - 1
	for start >= 0 && stack[start] != target {
		start--
	}
	cycle := stack[start:]
	for _, def := range cycle {
		if reported[def] {
			return
		}
	}
	names := make([]string, 0, len(cycle)+1)
	for _, def := range cycle {
		reported[def] = true
		names = append(names, def.Name)
	}
	names = append(names, target.Name)
	issue := &Issue{
		Package: target.Package,
		Err:     runtime.NewError(runtime.ErrorNonTermination, fmt.Sprintf("definition %s refers to itself (%s)", target.Name, strings.Join(names, " -> "))),
	}
	if target.Source != nil {
		issue.Span = target.Source.Span()
	}
	c.issues = append(c.issues, issue)
}
