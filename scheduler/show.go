package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowsched/corestream/element"
	"github.com/flowsched/corestream/graph"
)

// Show renders a diagnostic dump of every registered element's state and
// wait-state, and every link's bufpen occupancy — the Go-native analogue
// of gstoptimalscheduler.c's `_show` debug dump (spec scheduler_show,
// supplemented feature per SPEC_FULL.md §4).
func (s *Scheduler) Show() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name := range s.elements {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "scheduler: %d element(s), %d link(s), errored=%v\n", len(s.elements), len(s.links), s.errored)
	for _, name := range names {
		entry := s.elements[name]
		el := entry.El
		fmt.Fprintf(&b, "  element %-20s state=%-8s wait=%-18s flags=%v\n",
			name, el.State(), entry.State, flagString(el.Flags()))
		for _, p := range el.Pads() {
			l, ok := element.LinkOf(p)
			if !ok {
				fmt.Fprintf(&b, "    pad %-12s %-4s (unlinked)\n", p.Name(), p.Direction())
				continue
			}
			fmt.Fprintf(&b, "    pad %-12s %-4s bufpen_full=%v closed=%v\n",
				p.Name(), p.Direction(), l.BufpenFull(), l.Closed())
		}
	}
	return b.String()
}

func flagString(f graph.Flags) string {
	var parts []string
	if f&graph.FlagDecoupled != 0 {
		parts = append(parts, "decoupled")
	}
	if f&graph.FlagEventAware != 0 {
		parts = append(parts, "event-aware")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
