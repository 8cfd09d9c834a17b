// Package termio moves bytes between a terminal descriptor and a protocol engine.
//
// Output is batched in memory and flushed once it crosses a threshold, on
// explicit Flush, or before teardown. A non-retryable error marks the stream
// bad for good; afterwards every operation is a no-op and callers observe the
// state through IsBad.
package termio
