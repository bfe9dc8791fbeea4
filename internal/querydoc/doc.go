// Package querydoc renders query models as MongoDB commands.
//
// Queries become aggregation pipelines: associations are resolved with
// $lookup and $unwind, WHERE becomes a $match stage, grouping becomes
// $group, and ordering, paging and projection follow. Updates and deletes
// become filter documents.
//
// Documents are assumed to use the persisted names of the relational
// mapping: a root column is a top-level field, embedded values stay
// flattened (location_room), and a joined column lives under the join's
// alias (book_author.name). Values are inlined from the model's
// parameters, so every parameter must be bound before rendering.
package querydoc
