package criteria

// Not returns the negation of p, or nil for a nil predicate.
//
// Negating a Junction never applies De Morgan's law: NOT (A OR B) stays a
// Negated wrapper around the disjunction rather than becoming
// (NOT A) AND (NOT B). Renderers see exactly the structure the caller built.
func Not(p Predicate) Predicate {
	if p == nil {
		return nil
	}
	return p.Not()
}

// Not swaps EQUALS and NOT_EQUALS; every other operator is wrapped.
func (c Comparison) Not() Predicate {
	switch c.Op {
	case OpEquals:
		c.Op = OpNotEquals
		return c
	case OpNotEquals:
		c.Op = OpEquals
		return c
	}
	return Negated{Predicate: c}
}

// Not switches to the opposite test.
func (u Unary) Not() Predicate {
	u.Op = u.Op.Opposite()
	return u
}

func (b Between) Not() Predicate      { return Negated{Predicate: b} }
func (i In) Not() Predicate           { return Negated{Predicate: i} }
func (i InCollection) Not() Predicate { return Negated{Predicate: i} }
func (j Junction) Not() Predicate     { return Negated{Predicate: j} }

// Not toggles the negation flag in place of wrapping.
func (l Like) Not() Predicate {
	l.Negated = !l.Negated
	return l
}

// Not removes the wrapper.
func (n Negated) Not() Predicate {
	return n.Predicate
}
