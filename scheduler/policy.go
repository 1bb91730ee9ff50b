package scheduler

import (
	"github.com/flowsched/corestream/element"
	"github.com/flowsched/corestream/graph"
)

// canSchedule implements spec §4.6's can_schedule(entry) predicate.
func (s *Scheduler) canSchedule(e *schedEntry) bool {
	switch e.kind {
	case kindCothread:
		ce := e.ce
		if ce.State != element.WaitForNothing {
			return false
		}
		if ce.El.State() != graph.StatePlaying {
			return false
		}
		return !anySrcPadBufpenNonEmpty(ce.El)

	case kindLink:
		target := e.srcEntry
		if e.link.BufpenFull() {
			target = e.sinkEntry
		}
		if target == nil {
			return false
		}
		return target.State == element.WaitForPads && target.El.State() == graph.StatePlaying

	default:
		return false
	}
}

// anySrcPadBufpenNonEmpty reports whether any src pad of el already has
// data waiting in its downstream link — can_schedule's over-production
// guard for cothread entries.
func anySrcPadBufpenNonEmpty(el graph.Element) bool {
	for _, p := range el.Pads() {
		if p.Direction() != graph.DirSrc {
			continue
		}
		if l, ok := element.LinkOf(p); ok && l.BufpenFull() {
			return true
		}
	}
	return false
}

// scheduleForward implements spec §4.6's schedule_forward(entry): walk
// forward from e until a runnable entry is found, resolving link entries to
// whichever side (src or sink) would actually be switched into. Returns
// (nil, false) if no runnable entry is reachable.
func (s *Scheduler) scheduleForward(e *schedEntry) (*element.Entry, bool) {
	seen := make(map[*schedEntry]bool)
	cur := e
	for cur != nil && !seen[cur] {
		seen[cur] = true

		if s.canSchedule(cur) {
			switch cur.kind {
			case kindCothread:
				return cur.ce, true
			case kindLink:
				if cur.link.BufpenFull() {
					return cur.sinkEntry, true
				}
				return cur.srcEntry, true
			}
		}

		switch cur.kind {
		case kindLink:
			cur = s.cothreadSchedEntry(cur.sinkEntry)
		case kindCothread:
			cur = s.firstOutLinkEntry(cur.ce)
		}
	}
	return nil, false
}

func (s *Scheduler) cothreadSchedEntry(ce *element.Entry) *schedEntry {
	if ce == nil {
		return nil
	}
	return s.cothreads[ce]
}

func (s *Scheduler) firstOutLinkEntry(ce *element.Entry) *schedEntry {
	if ce == nil {
		return nil
	}
	for _, p := range ce.El.Pads() {
		if p.Direction() != graph.DirSrc {
			continue
		}
		if l, ok := element.LinkOf(p); ok {
			if le, ok := s.links[l]; ok {
				return le
			}
		}
	}
	return nil
}
