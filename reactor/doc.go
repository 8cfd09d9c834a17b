// Package reactor runs all session logic on one goroutine.
//
// Features:
//   - Posted closures execute strictly in order on the loop goroutine
//   - Single-shot restartable timers that deliver onto the loop
//   - Readable watches on raw descriptors (poll based)
//   - Panic routing to an injected crash handler
package reactor
