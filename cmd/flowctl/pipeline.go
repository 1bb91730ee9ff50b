package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowsched/corestream"
	"github.com/flowsched/corestream/graph"
	"github.com/flowsched/corestream/scheduler"
)

// elementSpec is one element's description in a pipeline topology file.
// Behaviour ("kind") is resolved to a concrete Get/Chain function by
// buildElement; the file itself only names shape and timing.
type elementSpec struct {
	Name     string        `yaml:"name"`
	Kind     string        `yaml:"kind"` // "source", "sink", or "passthrough"
	Interval time.Duration `yaml:"interval,omitempty"`
}

// linkSpec joins one element's sole src pad to another's sole sink pad.
type linkSpec struct {
	Src  string `yaml:"src"`
	Sink string `yaml:"sink"`
}

// topology is the on-disk shape of a demo pipeline graph.
type topology struct {
	Elements []elementSpec `yaml:"elements"`
	Links    []linkSpec    `yaml:"links"`
}

// defaultTopology is used when flowctl is run without -c: one source
// emitting a buffer roughly every 100ms, chained straight into one sink
// that logs what it receives.
func defaultTopology() *topology {
	return &topology{
		Elements: []elementSpec{
			{Name: "src", Kind: "source", Interval: 100 * time.Millisecond},
			{Name: "sink", Kind: "sink"},
		},
		Links: []linkSpec{{Src: "src", Sink: "sink"}},
	}
}

// loadTopology reads and validates a YAML pipeline description from path.
func loadTopology(path string) (*topology, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	var t topology
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	if len(t.Elements) == 0 {
		return nil, fmt.Errorf("topology has no elements")
	}
	return &t, nil
}

// pipeline bundles the built scheduler with its graph.Element handles, kept
// around so the host can drive state transitions and print a Show() dump.
type pipeline struct {
	sched    *scheduler.Scheduler
	elements []graph.Element
}

// buildPipeline instantiates every element and link named by t against a
// fresh scheduler bound to clock.
func buildPipeline(t *topology, clock graph.Clock, log *slog.Logger, opts ...corestream.Option) (*pipeline, error) {
	sched := scheduler.New(clock, opts...)

	byName := make(map[string]graph.Element, len(t.Elements))
	var els []graph.Element
	for _, spec := range t.Elements {
		el, err := buildElement(spec, log)
		if err != nil {
			return nil, err
		}
		if _, err := sched.AddElement(el); err != nil {
			return nil, fmt.Errorf("add element %q: %w", spec.Name, err)
		}
		byName[spec.Name] = el
		els = append(els, el)
	}

	for _, l := range t.Links {
		srcEl, ok := byName[l.Src]
		if !ok {
			return nil, fmt.Errorf("link references unknown src element %q", l.Src)
		}
		sinkEl, ok := byName[l.Sink]
		if !ok {
			return nil, fmt.Errorf("link references unknown sink element %q", l.Sink)
		}
		srcPad := findPad(srcEl, graph.DirSrc)
		sinkPad := findPad(sinkEl, graph.DirSink)
		if srcPad == nil || sinkPad == nil {
			return nil, fmt.Errorf("link %s->%s: missing matching pad", l.Src, l.Sink)
		}
		if _, err := sched.PadLink(srcPad, sinkPad); err != nil {
			return nil, fmt.Errorf("link %s->%s: %w", l.Src, l.Sink, err)
		}
	}

	return &pipeline{sched: sched, elements: els}, nil
}

func findPad(el graph.Element, dir graph.Direction) graph.Pad {
	for _, p := range el.Pads() {
		if p.Direction() == dir {
			return p
		}
	}
	return nil
}

// buildElement resolves one elementSpec's "kind" to a concrete MemElement
// wired with the matching Get/Chain function.
func buildElement(spec elementSpec, log *slog.Logger) (graph.Element, error) {
	el := &graph.MemElement{ElemName: spec.Name, St: graph.StatePaused}

	switch spec.Kind {
	case "source":
		interval := spec.Interval
		if interval <= 0 {
			interval = 100 * time.Millisecond
		}
		var seq int64
		var last time.Time
		pad := &graph.MemPad{PadName: spec.Name + ".src", Dir: graph.DirSrc, Owner: el}
		pad.Get = func(graph.Pad) (graph.Data, error) {
			if !last.IsZero() {
				if d := time.Since(last); d < interval {
					time.Sleep(interval - d)
				}
			}
			last = time.Now()
			seq++
			return &graph.MemBuffer{TS: time.Duration(seq) * interval, TSValid: true}, nil
		}
		el.PadList = []graph.Pad{pad}

	case "sink":
		pad := &graph.MemPad{PadName: spec.Name + ".sink", Dir: graph.DirSink, Owner: el}
		pad.Chain = func(p graph.Pad, d graph.Data) error {
			if buf, ok := d.(*graph.MemBuffer); ok {
				ts, _ := buf.Timestamp()
				log.Info("buffer received", "element", spec.Name, "ts", ts)
			} else if ev, ok := d.(*graph.MemEvent); ok {
				log.Info("event received", "element", spec.Name, "type", ev.Type())
			}
			return nil
		}
		el.PadList = []graph.Pad{pad}

	case "passthrough", "":
		in := &graph.MemPad{PadName: spec.Name + ".sink", Dir: graph.DirSink, Owner: el}
		out := &graph.MemPad{PadName: spec.Name + ".src", Dir: graph.DirSrc, Owner: el}
		in.Chain = func(p graph.Pad, d graph.Data) error {
			log.Debug("passthrough", "element", spec.Name)
			return nil
		}
		el.PadList = []graph.Pad{in, out}

	default:
		return nil, fmt.Errorf("element %q: unknown kind %q", spec.Name, spec.Kind)
	}

	return el, nil
}

// start transitions every element READY -> PAUSED -> PLAYING, matching the
// lifecycle spec.md §3 requires before a cothread's wrapper body may run.
func (p *pipeline) start() error {
	for _, el := range p.elements {
		me := el.(*graph.MemElement)
		me.St = graph.StateReady
		if err := p.sched.StateTransition(el, scheduler.ToReady); err != nil {
			return err
		}
		me.St = graph.StatePaused
		if err := p.sched.StateTransition(el, scheduler.ToPaused); err != nil {
			return err
		}
	}
	for _, el := range p.elements {
		me := el.(*graph.MemElement)
		me.St = graph.StatePlaying
		if err := p.sched.StateTransition(el, scheduler.ToPlaying); err != nil {
			return err
		}
	}
	return nil
}
