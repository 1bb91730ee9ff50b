package graph

import "time"

// MemBuffer is a minimal in-memory Buffer implementation.
type MemBuffer struct {
	Payload    []byte
	TS         time.Duration
	TSValid    bool
	Off        int64
	OffValid   bool
}

func (b *MemBuffer) IsEvent() bool { return false }

func (b *MemBuffer) Timestamp() (time.Duration, bool) { return b.TS, b.TSValid }

func (b *MemBuffer) Offset() (int64, bool) { return b.Off, b.OffValid }

// MemEvent is a minimal in-memory Event implementation.
type MemEvent struct {
	Kind EventType

	ValidTime bool
	Time      time.Duration
	ValidOff  bool
	Off       int64
}

func (e *MemEvent) IsEvent() bool { return true }

func (e *MemEvent) Type() EventType { return e.Kind }

// NewDiscont builds a NewDiscontFunc backed by MemEvent.
func NewDiscont() NewDiscontFunc {
	return func(validTime bool, t time.Duration, validOffset bool, offset int64) Event {
		return &MemEvent{Kind: EventDiscont, ValidTime: validTime, Time: t, ValidOff: validOffset, Off: offset}
	}
}

// NewUnref returns an Unref that is a no-op, suitable for reference data
// units that do not need explicit release (tests, demo host).
func NewUnref() Unref {
	return func(Data) {}
}

// MemPad is a minimal in-memory Pad implementation.
type MemPad struct {
	PadName string
	Dir     Direction
	Owner   Element
	PeerPad Pad

	Get   GetFunc
	Chain ChainFunc
	Event EventFunc

	sched any
}

func (p *MemPad) Name() string             { return p.PadName }
func (p *MemPad) Direction() Direction      { return p.Dir }
func (p *MemPad) Parent() Element           { return p.Owner }
func (p *MemPad) Peer() Pad                 { return p.PeerPad }
func (p *MemPad) GetFunc() GetFunc          { return p.Get }
func (p *MemPad) ChainFunc() ChainFunc      { return p.Chain }
func (p *MemPad) EventFunc() EventFunc      { return p.Event }
func (p *MemPad) SchedPrivate() *any        { return &p.sched }

// MemElement is a minimal in-memory Element implementation.
type MemElement struct {
	ElemName string
	St       State
	PadList  []Pad
	Loop     LoopFunc
	Flag     Flags

	sched any
}

func (e *MemElement) Name() string      { return e.ElemName }
func (e *MemElement) State() State      { return e.St }
func (e *MemElement) Pads() []Pad       { return e.PadList }
func (e *MemElement) LoopFunc() LoopFunc { return e.Loop }
func (e *MemElement) Flags() Flags      { return e.Flag }
func (e *MemElement) SchedPrivate() *any { return &e.sched }

// MemClock is a simple adjustable clock for tests.
type MemClock struct {
	now time.Duration
}

func NewMemClock() *MemClock { return &MemClock{} }

func (c *MemClock) Now() time.Duration { return c.now }

// Advance moves the clock forward by d.
func (c *MemClock) Advance(d time.Duration) { c.now += d }

// Set moves the clock to an absolute time.
func (c *MemClock) Set(t time.Duration) { c.now = t }

// RealClock is a Clock backed by the wall clock, for hosts (such as
// cmd/flowctl) that drive a live pipeline rather than a deterministic test.
type RealClock struct {
	start time.Time
}

// NewRealClock returns a RealClock whose epoch is the moment of the call.
func NewRealClock() *RealClock { return &RealClock{start: time.Now()} }

func (c *RealClock) Now() time.Duration { return time.Since(c.start) }
