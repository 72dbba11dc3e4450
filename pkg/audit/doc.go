// Package audit records privileged and identity-affecting actions.
//
// Sinks are best-effort by contract: a failing sink must never block or fail
// the operation being audited. The Emitter wrapper enforces this by logging
// sink errors and continuing.
package audit
