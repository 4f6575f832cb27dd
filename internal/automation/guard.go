package automation

// RecursionGuard bounds re-entrant dispatch passes. Actions that change
// status, priority, or assignee can themselves satisfy another rule's
// trigger; without a ceiling a pathological rule pair loops forever inside
// a single request.
type RecursionGuard struct {
	limit int
}

// DefaultMaxDispatchDepth allows the triggering pass plus one cascade.
const DefaultMaxDispatchDepth = 2

// NewRecursionGuard builds a guard with the given ceiling, falling back to
// the default when the ceiling is not positive.
func NewRecursionGuard(limit int) RecursionGuard {
	if limit <= 0 {
		limit = DefaultMaxDispatchDepth
	}
	return RecursionGuard{limit: limit}
}

// Allow reports whether a pass at the given depth may proceed.
func (g RecursionGuard) Allow(depth int) bool {
	return depth < g.limit
}
