// Package criteria builds typed query criteria against entity metadata.
//
// A Builder creates query, update and delete specifications. Each binds
// exactly one Root with From; the root resolves dotted property paths
// ("author.name") and owns the arena of associations traversed on the way.
// Predicates form a closed set (Comparison, Unary, Between, In,
// InCollection, Like, Junction, Negated) with centralized validation in
// Validate and negation through Predicate.Not.
//
// Key design constraints:
//   - Paths refer to their root by ID and to associations by arena index
//   - Predicate constructors validate operand types before returning
//   - Negation never rewrites composites (no De Morgan)
//   - Nothing here performs I/O; the package is safe for concurrent use on
//     independent statements
package criteria
