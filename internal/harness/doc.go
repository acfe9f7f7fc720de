// Package harness runs ordered operator test cases against an evaluator.
//
// A suite is a sequence of cases threaded through a single accumulator, the
// running variable x. Each case applies one operator to operands that may
// reference x, literals, or nested applications; the result is compared with
// the case's expected value and becomes the next value of x.
//
// # Suite Format
//
// Suites are defined in YAML files with the following structure:
//
//	name: operators
//	description: "arithmetic, bitwise and relational operators"
//	width: 32        # optional, native evaluator integer width
//	initial: 0       # optional, starting accumulator
//	final: 0         # optional, expected accumulator after the last case
//	cases:
//	  - expr: "x + 2"
//	    expect: 2
//	  - op: sub
//	    args: [x, 1]
//	    expect: 1
//	  - name: double-not
//	    op: add
//	    args: [x, "!!x"]
//	    expect: 4
//
// A case gives either expr, an expression in C notation, or op with args.
// An integer arg is a literal; a string arg is parsed as notation.
//
// # Outcomes
//
// Every case produces exactly one outcome:
//
//   - pass: the evaluator agreed with the expected value
//   - mismatch: the evaluator returned a different value; x takes it
//   - error: evaluation failed; x keeps its previous value
//
// Later cases always run. The logical operators && and || short-circuit:
// when the left operand decides the result the right subtree is not
// evaluated.
//
// # Usage
//
//	suite, err := harness.LoadSuite("testdata/suites/operators.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result := harness.Run(ctx, suite, eval.NewNative(eval.DefaultWidth))
//	if !result.Pass {
//	    for _, err := range result.Failures() {
//	        log.Println(err)
//	    }
//	}
package harness
