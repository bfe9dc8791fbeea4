// Package harness provides conformance testing for criteria compilation.
//
// A scenario names a schema, describes one statement as a YAML tree, and
// states what compiling it must produce: an error code, assertions over
// the compiled model, and the exact rendering per dialect.
//
// # Scenario Format
//
//	name: title_and_author
//	description: "What this scenario validates"
//	schema: ../schemas/library          # CUE directory, relative to this file
//	naming: underscore_plural           # optional
//	inline_literals: false              # skip the literal-to-parameter rewrite
//	statement:
//	  query: Book                       # or update: / delete:
//	  select: [title, {func: count, alias: n}]
//	  joins: [{path: tags, type: left}]
//	  where:
//	    - and:
//	        - starts_with: {path: title, value: Foo}
//	        - equals: {path: author.name, value: X}
//	  order_by: [{path: price, desc: true}]
//	  limit: 10
//	assertions:
//	  - type: joins
//	    aliases: [book_author]
//	expect:
//	  postgres:
//	    text: SELECT ...
//	    params: [p1, p2]
//	  mongo:
//	    error: UNSUPPORTED
//
// Predicates are single-key mappings; see Predicate for the forms.
//
// # Assertion Types
//
//   - joins: join aliases in order, or their count
//   - criteria: leaf operators in order, or their count
//   - parameters: bound values in order, or their count
//   - filter: the operator and negation of the top-level WHERE group
//
// # Output Comparison
//
// SQL text is compared exactly after trimming. MongoDB commands are
// compared as JSON documents. Rendering is deterministic, so a snapshot of
// every output can be kept as a golden file with RunWithGolden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/title_and_author.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario, harness.WithCheck(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
