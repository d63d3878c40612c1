// Package diagnostics describes the collection run itself rather than the
// cluster being collected.
//
// It provides three pieces:
//
//   - HostFacts: a best-effort snapshot of the machine the tool ran on,
//     written into the archive metadata directory.
//
//   - Metrics: a private Prometheus registry observing every external
//     command attempt, exposed in text format alongside the host facts.
//
//   - RecoverInto: turns a panic in a collection goroutine into an error so
//     one broken step cannot take down the whole process.
package diagnostics
