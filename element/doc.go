// Package element implements the three per-element cothread bodies the
// core switches into while a pipeline is PLAYING — loop, chain, and get
// wrappers (spec C5) — plus the wait-state each element entry carries
// between scheduling decisions. Grounded on
// original_source/gst/schedulers/fairscheduler.c's
// gst_fair_scheduler_loop_wrapper/chain_wrapper/get_wrapper family: each
// wrapper is an infinite loop over one element behaviour that periodically
// hands control back to the scheduler via [Scheduler.Resched].
package element
