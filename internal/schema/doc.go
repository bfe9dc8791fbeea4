// Package schema loads entity metadata from CUE files.
//
// A schema directory is one CUE instance whose top-level `entity` struct
// declares each entity's properties and associations. Load compiles the
// declarations into metadata.Definitions and Register builds a
// metadata.Registry from them, checking that association targets exist.
package schema
