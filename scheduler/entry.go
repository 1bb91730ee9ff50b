package scheduler

import (
	"github.com/flowsched/corestream/element"
	"github.com/flowsched/corestream/link"
)

// entryKind tags which half of the spec's "cothread entry | link entry"
// sum type a given entry is.
type entryKind int

const (
	kindCothread entryKind = iota
	kindLink
)

// schedEntry is the scheduler policy's view of one schedulable thing: an
// element's cothread, or a link connecting two such cothreads (spec §4.6 —
// "the policy maintains three per-pipeline lists" of these).
type schedEntry struct {
	kind entryKind

	ce *element.Entry

	link      *link.LinkState
	srcEntry  *element.Entry // cothread entry that would write this link
	sinkEntry *element.Entry // cothread entry that would read this link

	priority int
}

func newCothreadEntry(ce *element.Entry) *schedEntry {
	return &schedEntry{kind: kindCothread, ce: ce}
}

func newLinkEntry(l *link.LinkState, src, sink *element.Entry) *schedEntry {
	return &schedEntry{kind: kindLink, link: l, srcEntry: src, sinkEntry: sink}
}
