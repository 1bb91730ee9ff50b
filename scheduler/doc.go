// Package scheduler implements the element scheduler proper (spec C6 + C7):
// the schedule_possible and waiting policy lists (plus a priority-wake queue
// for AwakeAsync/Interrupt; there is no separate schedule_now list), the
// can_schedule/schedule_forward runnability walk, and the iterate() driver
// loop that the host calls once per tick. It is the thing the original
// source's gstscheduler.c/fairscheduler.c/gstoptimalscheduler.c each
// implement a variant of; this package captures their shared contract
// rather than any one variant's extra bookkeeping.
package scheduler
