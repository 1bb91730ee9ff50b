// Package graph defines the external collaborator surface the scheduler
// core consumes (spec §6): the element/pad data model, data units
// (buffers and events), and the clock. Per spec.md's scope, the *real*
// element/pad model, buffer allocation, and clock implementations are
// out of scope for the core — this package only defines the contract
// (interfaces) plus a small in-memory reference implementation used by
// this repository's own tests and the cmd/flowctl demo host.
package graph
