// Package querymodel compiles criteria statements into a flat,
// dialect-neutral Model and defines the Visitor contract renderers use
// to turn a Model into query text.
//
// Compilation is deterministic: joins are registered on first reference
// and deduplicated by alias, and criteria and parameters are appended in
// depth-first, left-to-right order. Renderers rely on that order to emit
// positional placeholders that match the parameter list one to one.
package querymodel
