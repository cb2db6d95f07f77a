package engine

import (
	"fmt"
	"strings"
)

// CycleError wraps a pull or push failure with the side that raised it,
// giving failure attribution a structured path for errors the engine
// itself originates. Errors surfaced directly by an adapter without
// passing through this wrapper still fall back to the spec's documented
// substring-matching heuristic (attributeSides).
type CycleError struct {
	Side string // "A" or "B"
	Err  error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("side %s: %v", e.Side, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// attributeSides is the fallback, substring-matching failure attribution
// spec §4.5 documents as pragmatic, not exact: used only when err isn't
// (or doesn't wrap) a *CycleError.
func attributeSides(err error) (sideA, sideB bool) {
	msg := strings.ToLower(err.Error())
	matchedA := strings.Contains(msg, "side a") || strings.Contains(msg, "sidea")
	matchedB := strings.Contains(msg, "side b") || strings.Contains(msg, "sideb")
	if matchedA || matchedB {
		return matchedA, matchedB
	}
	return true, true
}
