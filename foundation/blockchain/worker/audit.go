package worker

import (
	"context"
)

// auditOperations periodically checks the live state against a fresh fold
// of the chain.
func (w *Worker) auditOperations() {
	w.evHandler("worker: auditOperations: G started")
	defer w.evHandler("worker: auditOperations: G completed")

	for {
		select {
		case <-w.auditTicker.C:
			if !w.isShutdown() {
				w.runAuditOperation()
			}
		case <-w.shut:
			w.evHandler("worker: auditOperations: received shut signal")
			return
		}
	}
}

// runAuditOperation runs the consistency check. The state rebuilds itself
// when the check fails.
func (w *Worker) runAuditOperation() {
	w.evHandler("worker: runAuditOperation: started")
	defer w.evHandler("worker: runAuditOperation: completed")

	if err := w.state.VerifyConsistency(context.Background()); err != nil {
		w.evHandler("worker: runAuditOperation: ERROR: %s", err)
	}
}
