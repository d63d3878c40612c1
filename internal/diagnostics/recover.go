package diagnostics

import (
	"fmt"
	"runtime/debug"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
)

// RecoverInto converts a panic in the calling goroutine into an execution
// error stored in *errPtr. The stack at the panic site is attached as the
// "stack" detail.
// Usage: defer diagnostics.RecoverInto(&err, "partition m1")
//
//nolint:gocritic // ptrToRefParam: errPtr must be a pointer to modify the caller's error variable
func RecoverInto(errPtr *error, scope string) {
	if r := recover(); r != nil {
		*errPtr = core.ErrExecution(core.CodePanic, fmt.Sprintf("%s panicked: %v", scope, r)).
			WithDetail("stack", string(debug.Stack()))
	}
}
