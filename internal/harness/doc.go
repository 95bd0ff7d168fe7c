// Package harness provides conformance testing for the Overpass QL compiler.
//
// A scenario names a query, the dialect to compile it for, and assertions
// about the generated SQL and the extracted selectors. The harness runs the
// query through the same bridge API host code uses.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: cafes_postgres
//	description: "Cafes compile to a single tag comparison"
//	query: |
//	  node[amenity=cafe];
//	  out;
//	dialect: postgres
//	srid: "4326"
//	escape: upper
//	expect:
//	  statements: 1
//	assertions:
//	  - type: sql_contains
//	    text: "(tags->>'AMENITY') = 'CAFE'"
//	  - type: first_keys
//	    keys: [amenity]
//	  - type: matches
//	    tags: { amenity: bar }
//	    failing: [amenity]
//
// A scenario that expects a failure names the bridge error code instead:
//
//	expect:
//	  error: PARSING_ERROR
//
// # Assertion Types
//
//   - sql_contains / sql_not_contains: substring of the joined SQL
//   - statement_count: number of compiled statements
//   - first_keys: keys of the first selector list (omit keys for "no constraint")
//   - matches: failing keys of the first selector list for a tag map
//   - all_selectors: canonical source of every extracted selector list
//   - source: canonical source of the whole request
//   - escape_calls: literals passed to the escape function, in order
//
// # Deterministic Testing
//
// Compilation is deterministic, so the joined SQL can be compared against a
// golden file in testdata/golden/{name}.golden. Scenarios that do not use an
// escape function are compiled through an in-memory compile cache twice and
// the cached statements must be identical to the fresh ones.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/cafes_postgres.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
