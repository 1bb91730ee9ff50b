// Package link implements the single-slot "bufpen" mailbox that connects
// two pads across a scheduling boundary (spec C4). A link has at most one
// data unit in flight at a time: a writer cothread blocks in Push while the
// slot is full, a reader cothread blocks in Pull while it is empty, and
// each wakes the other on hand-off. This is grounded on the bufpen
// discipline in the original fair/optimal schedulers' pad_link/chain_wrapper
// interaction, re-expressed as cooperative cothread suspension rather than
// raw function-call nesting.
package link
