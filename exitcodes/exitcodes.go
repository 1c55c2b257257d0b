// Package exitcodes defines the standard exit codes used by ndi-acceptor.
package exitcodes

// Exit code constants used by ndi-acceptor
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every test case passes
// * TestFailure (1): Used when one or more test cases fail, or when a prerequisite
// or configuration check fails before any test case runs
// * Interrupted (130): Used when the operator interrupts the run (SIGINT)
const (
	Success     = 0   // All test cases pass
	TestFailure = 1   // Test failures, failed prerequisites
	Interrupted = 130 // Operator interrupt
)
