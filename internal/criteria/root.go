package criteria

import (
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/critq/internal/metadata"
)

// JoinNode is one association registered in a Root's arena.
// Paths refer to nodes by index; nodes refer to their parent by index.
type JoinNode struct {
	// Parent is the arena index of the owning node, or -1 for the root entity.
	Parent int

	Association metadata.Association
	Target      metadata.Entity
	Type        JoinType
	Alias       string

	// Path is the dotted path from the root, e.g. "chapters.sections".
	Path string

	// Explicit is set when the join was requested with Root.Join rather
	// than implied by a path traversal.
	Explicit bool
}

// Embedded reports whether the node is an embedded association, which is
// stored inline with its owner and never joined.
func (n JoinNode) Embedded() bool {
	return n.Association.Kind == metadata.Embedded
}

// Root is the single entity root of a query, update or delete.
//
// It owns the association arena; PropertyPath and AssociationPath values
// carry the root's ID and arena indices rather than pointers back to it.
type Root struct {
	id     uuid.UUID
	entity metadata.Entity
	alias  string
	lookup EntityLookup
	nodes  []JoinNode

	// issued holds arena indices already returned as an AssociationPath;
	// their aliases are fixed.
	issued map[int]bool
}

func newRoot(lookup EntityLookup, entity metadata.Entity, alias string) *Root {
	return &Root{
		id:     uuid.Must(uuid.NewV7()),
		entity: entity,
		alias:  alias,
		lookup: lookup,
		issued: make(map[int]bool),
	}
}

// ID identifies the root; paths created by it carry the same value in Owner.
func (r *Root) ID() uuid.UUID { return r.id }

// Entity returns the root entity metadata.
func (r *Root) Entity() metadata.Entity { return r.entity }

// Alias returns the root's table alias.
func (r *Root) Alias() string { return r.alias }

// Nodes returns a copy of the association arena in registration order.
func (r *Root) Nodes() []JoinNode {
	return append([]JoinNode(nil), r.nodes...)
}

// Node returns the arena node at index i.
func (r *Root) Node(i int) (JoinNode, bool) {
	if i < 0 || i >= len(r.nodes) {
		return JoinNode{}, false
	}
	return r.nodes[i], true
}

// Owns reports whether p was created by this root.
func (r *Root) Owns(p PropertyPath) bool {
	return p.Owner == r.id
}

// Get resolves a dotted property path such as "title" or "author.name".
// Associations traversed on the way are registered as implicit INNER joins,
// reusing any node already registered for the same association.
func (r *Root) Get(path string) (PropertyPath, error) {
	p, _, err := r.walk(path, nil)
	return p, err
}

// MustGet is like Get but panics on error.
// Use only in tests or when the path is known to be valid.
func (r *Root) MustGet(path string) PropertyPath {
	p, err := r.Get(path)
	if err != nil {
		panic(err)
	}
	return p
}

// GetFrom resolves name relative to a previously obtained association path.
func (r *Root) GetFrom(from AssociationPath, name string) (PropertyPath, error) {
	if from.Owner != r.id {
		return PropertyPath{}, &Error{Code: ErrCodeForeignPath, Path: from.Path, Message: "association belongs to another root"}
	}
	return r.Get(from.Path + "." + name)
}

// Association resolves a dotted path that must end at an association.
func (r *Root) Association(path string) (AssociationPath, error) {
	p, idx, err := r.walk(path, nil)
	if err != nil {
		return AssociationPath{}, err
	}
	if idx < 0 {
		return AssociationPath{}, invalidOperand(path, "%s is not an association", path)
	}
	return r.associationPath(p, idx), nil
}

// Join registers an explicit join for the association at path. An empty
// alias derives one from the root alias and the path. Joining the same
// association twice returns the existing node unless the join types differ.
func (r *Root) Join(path string, jt JoinType, alias string) (AssociationPath, error) {
	p, idx, err := r.walk(path, &joinRequest{typ: jt, alias: alias})
	if err != nil {
		return AssociationPath{}, err
	}
	if idx < 0 {
		return AssociationPath{}, invalidOperand(path, "%s is not an association and cannot be joined", path)
	}
	return r.associationPath(p, idx), nil
}

// Identity returns the path of the root entity's identity property.
func (r *Root) Identity() (PropertyPath, error) {
	id, ok := r.entity.Identity()
	if !ok {
		return PropertyPath{}, &Error{Code: ErrCodeUnknownProperty, Message: "entity " + r.entity.Name() + " declares no identity"}
	}
	return r.Get(id.Name)
}

type joinRequest struct {
	typ   JoinType
	alias string
}

// walk resolves path and returns the terminal path plus the arena index of
// the terminal association (or -1 for a scalar property). The join request,
// when set, applies to the terminal association only.
func (r *Root) walk(path string, req *joinRequest) (PropertyPath, int, error) {
	if path == "" {
		return PropertyPath{}, -1, &Error{Code: ErrCodeUnknownProperty, Message: "empty property path"}
	}
	segments := strings.Split(path, ".")
	entity := r.entity
	parent := -1
	var assocs []metadata.Association
	var traversal []int

	for i, seg := range segments {
		res, err := Resolve(r.lookup, entity, assocs, seg)
		if err != nil {
			return PropertyPath{}, -1, err
		}
		last := i == len(segments)-1
		if !res.IsAssociation() {
			if !last {
				return PropertyPath{}, -1, &Error{
					Code:    ErrCodeUnknownProperty,
					Path:    strings.Join(segments[:i+2], "."),
					Message: seg + " is not an association and cannot be traversed",
				}
			}
			return PropertyPath{
				Owner:     r.id,
				Traversal: traversal,
				Property:  res.Property,
				Path:      path,
			}, -1, nil
		}

		var nodeReq *joinRequest
		if last {
			nodeReq = req
		}
		idx, err := r.register(parent, *res.Association, res.Target, strings.Join(segments[:i+1], "."), nodeReq)
		if err != nil {
			return PropertyPath{}, -1, err
		}
		traversal = append(traversal, idx)
		parent = idx
		entity = res.Target
		assocs = res.Traversal

		if last {
			return PropertyPath{
				Owner:     r.id,
				Traversal: traversal,
				Property:  res.Property,
				Path:      path,
			}, idx, nil
		}
	}
	return PropertyPath{}, -1, Defect("path walk ended without a terminal segment: %s", path)
}

func (r *Root) register(parent int, assoc metadata.Association, target metadata.Entity, path string, req *joinRequest) (int, error) {
	for i := range r.nodes {
		n := &r.nodes[i]
		if n.Parent != parent || n.Association.Name != assoc.Name {
			continue
		}
		if req == nil {
			return i, nil
		}
		if n.Explicit && n.Type != req.typ {
			return -1, invalidOperand(path, "%s already joined as %s", path, n.Type)
		}
		if req.alias != "" && req.alias != n.Alias {
			if n.Explicit {
				return -1, invalidOperand(path, "%s already joined with alias %s", path, n.Alias)
			}
			if r.issued[i] {
				return -1, invalidOperand(path, "%s is already in use as %s; join it before obtaining its association path", path, n.Alias)
			}
			if err := r.checkAlias(req.alias, path); err != nil {
				return -1, err
			}
			n.Alias = req.alias
		}
		n.Type = req.typ
		n.Explicit = true
		return i, nil
	}

	node := JoinNode{
		Parent:      parent,
		Association: assoc,
		Target:      target,
		Type:        JoinInner,
		Alias:       metadata.Alias(r.alias + "_" + strings.ReplaceAll(path, ".", "_")),
		Path:        path,
	}
	if req != nil {
		node.Type = req.typ
		node.Explicit = true
		if req.alias != "" {
			node.Alias = req.alias
		}
	}
	if err := r.checkAlias(node.Alias, path); err != nil {
		return -1, err
	}
	r.nodes = append(r.nodes, node)
	return len(r.nodes) - 1, nil
}

func (r *Root) checkAlias(alias, path string) error {
	if alias == r.alias {
		return invalidOperand(path, "alias %s is used by the root", alias)
	}
	for _, n := range r.nodes {
		if n.Alias == alias {
			return invalidOperand(path, "alias %s is used by %s", alias, n.Path)
		}
	}
	return nil
}

func (r *Root) associationPath(p PropertyPath, idx int) AssociationPath {
	r.issued[idx] = true
	n := r.nodes[idx]
	return AssociationPath{
		PropertyPath: p,
		Association:  n.Association,
		Join:         n.Type,
		Alias:        n.Alias,
		Shape:        n.Association.Shape,
	}
}
