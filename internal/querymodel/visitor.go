package querymodel

// Visitor is the renderer contract. Walk calls it in a fixed order:
//
//	VisitRoot
//	VisitProjection   for each projection
//	VisitJoin         for each join
//	VisitAssignment   for each assignment
//	EnterClause(WHERE), the filter group tree, LeaveClause(WHERE)
//	VisitGroupBy      for each grouping operand
//	EnterClause(HAVING), the having group tree, LeaveClause(HAVING)
//	VisitOrdering     for each ordering
//	VisitPage
//
// Group trees are walked depth-first, left to right: EnterGroup, then each
// child (a nested group or VisitCriterion), then LeaveGroup. Parameters
// appear in the model in this same order, so a renderer that emits
// placeholders while visiting produces them in bind order.
//
// Returning an error stops the walk.
type Visitor interface {
	VisitRoot(m *Model) error
	VisitProjection(i int, p Projection) error
	VisitJoin(i int, j Join) error
	VisitAssignment(i int, a Assignment) error
	EnterClause(c Clause) error
	LeaveClause(c Clause) error
	EnterGroup(g *Group) error
	LeaveGroup(g *Group) error
	VisitCriterion(i int, c Criterion) error
	VisitGroupBy(i int, op Operand) error
	VisitOrdering(i int, o Ordering) error
	VisitPage(limit, offset int) error
}

// BaseVisitor implements Visitor with no-ops; embed it to override only
// the callbacks a renderer needs.
type BaseVisitor struct{}

func (BaseVisitor) VisitRoot(*Model) error                { return nil }
func (BaseVisitor) VisitProjection(int, Projection) error { return nil }
func (BaseVisitor) VisitJoin(int, Join) error             { return nil }
func (BaseVisitor) VisitAssignment(int, Assignment) error { return nil }
func (BaseVisitor) EnterClause(Clause) error              { return nil }
func (BaseVisitor) LeaveClause(Clause) error              { return nil }
func (BaseVisitor) EnterGroup(*Group) error               { return nil }
func (BaseVisitor) LeaveGroup(*Group) error               { return nil }
func (BaseVisitor) VisitCriterion(int, Criterion) error   { return nil }
func (BaseVisitor) VisitGroupBy(int, Operand) error       { return nil }
func (BaseVisitor) VisitOrdering(int, Ordering) error     { return nil }
func (BaseVisitor) VisitPage(int, int) error              { return nil }

var _ Visitor = BaseVisitor{}

// Walk drives v over m in the fixed order documented on Visitor.
func Walk(m *Model, v Visitor) error {
	if err := v.VisitRoot(m); err != nil {
		return err
	}
	for i, p := range m.Projection {
		if err := v.VisitProjection(i, p); err != nil {
			return err
		}
	}
	for i, j := range m.Joins {
		if err := v.VisitJoin(i, j); err != nil {
			return err
		}
	}
	for i, a := range m.Assignments {
		if err := v.VisitAssignment(i, a); err != nil {
			return err
		}
	}
	if err := walkClause(m, ClauseWhere, m.Filter, v); err != nil {
		return err
	}
	for i, op := range m.GroupBy {
		if err := v.VisitGroupBy(i, op); err != nil {
			return err
		}
	}
	if err := walkClause(m, ClauseHaving, m.Having, v); err != nil {
		return err
	}
	for i, o := range m.Orders {
		if err := v.VisitOrdering(i, o); err != nil {
			return err
		}
	}
	return v.VisitPage(m.Limit, m.Offset)
}

func walkClause(m *Model, c Clause, g *Group, v Visitor) error {
	if g == nil {
		return nil
	}
	if err := v.EnterClause(c); err != nil {
		return err
	}
	if err := walkGroup(m, g, v); err != nil {
		return err
	}
	return v.LeaveClause(c)
}

func walkGroup(m *Model, g *Group, v Visitor) error {
	if err := v.EnterGroup(g); err != nil {
		return err
	}
	for _, child := range g.Children {
		if child.Group != nil {
			if err := walkGroup(m, child.Group, v); err != nil {
				return err
			}
			continue
		}
		if child.Criterion < 0 || child.Criterion >= len(m.Criteria) {
			return defectf("group references criterion %d of %d", child.Criterion, len(m.Criteria))
		}
		if err := v.VisitCriterion(child.Criterion, m.Criteria[child.Criterion]); err != nil {
			return err
		}
	}
	return v.LeaveGroup(g)
}
