package matroska

import (
	"github.com/sirupsen/logrus"
)

// ControlReply is the caller's answer to an observed element, replacing a
// stringly "continue"/"skip"/"abort" reply with a typed sum (§9 "Observer-
// driven early exit → typed control reply").
type ControlReply int

const (
	Continue ControlReply = iota
	SkipElement
	Abort
)

// EntryCallback is the observer hook described in §5 and §6. It is invoked
// synchronously on the parsing goroutine; no other goroutine may touch the
// tree while a callback is in flight. Containers are announced before their
// children are read; leaves are announced after their value is decoded.
type EntryCallback func(e *Element) ControlReply

// Options configures a single Parse call (§6 "Entry point surface").
type Options struct {
	// Get selects which level-1 Segment sections to materialize. Tokens:
	// "*" (all), "*common" (Info, Tracks, Chapters, Attachments), any
	// section name, plus "keyframes", "timecodes", "useCFR".
	Get []string

	// BinarySizeLimit caps binary payload bytes retained; -1 = unlimited.
	// Default 16. Never applied to SeekID.
	BinarySizeLimit int

	// ExhaustiveSearch enables sequential scanning through Clusters when
	// SeekHead and the tail scan both fail to locate a requested section.
	ExhaustiveSearch bool

	// EntryCallback is the observer; see ControlReply.
	EntryCallback EntryCallback

	// KeepStreamOpen transfers source ownership to the returned Tree.
	KeepStreamOpen bool

	// ShowProgress is a hook point for an external progress UI; the core
	// never renders anything itself (out of scope, §1).
	ShowProgress bool

	// Logger receives structured warnings (§4.H); nil uses
	// logrus.StandardLogger().
	Logger *logrus.Logger
}

const defaultBinarySizeLimit = 16

func (o *Options) logger() *logrus.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

func (o *Options) binarySizeLimit() int {
	if o == nil || o.BinarySizeLimit == 0 {
		return defaultBinarySizeLimit
	}
	return o.BinarySizeLimit
}

func (o *Options) keepStreamOpen() bool {
	return o != nil && o.KeepStreamOpen
}

// sectionState tracks the "requested section" state machine of §4.D: each
// section starts in auto and transitions to satisfied once read.
type sectionState int

const (
	sectionAuto sectionState = iota
	sectionSatisfied
)

// wanted section tokens, as level-1 element names.
const (
	secSeekHead    = "SeekHead"
	secInfo        = "Info"
	secTracks      = "Tracks"
	secChapters    = "Chapters"
	secAttachments = "Attachments"
	secTags        = "Tags"
	secCluster     = "Cluster"
	secCues        = "Cues"
	secEBML        = "EBML"
)

var commonSections = []string{secInfo, secTracks, secChapters, secAttachments}

// ParseContext is the explicit, thread-through-the-call-graph replacement
// for ambient global mutable session state (§9 "Global-mutable session
// state → explicit context struct"): TimecodeScale, the abort flag, and
// the requested-section tracker all live here instead of on a parser
// singleton.
type ParseContext struct {
	Opts   *Options
	Source Source
	Log    *logrus.Logger

	// TimecodeScale is process-local to one parse call, defaulting to
	// 1,000,000 ns/tick until Info/TimecodeScale is observed (§3 invariants).
	TimecodeScale uint64

	wanted        map[string]sectionState
	wantKeyframes bool
	wantTimecodes bool
	wantUseCFR    bool

	aborted bool

	seekHeadIndex map[uint32]int64 // element ID -> absolute offset
	seenSeekHeads map[int64]bool   // cycle protection by offset

	// cueTicks accumulates raw CFR samples (one per CuePoint/
	// CueTrackPositions pair) during Cues traversal; cookIndexCFR turns
	// these into frame indices once the video track's DefaultDuration and
	// the final TimecodeScale are both known (§4.F "CFR via Cues").
	cueTicks []rawTick

	// vfrTicks/vfrKeyframes accumulate raw VFR samples during Cluster
	// traversal: a (Simple)Block contributes a timecode sample when
	// timecodes were requested, and every keyframe contributes a
	// block-index sample
	// (§4.F "VFR via Cluster scan"). blockCounters tracks, per track
	// number, how many blocks on that track have been seen so far — the
	// running counter the spec's "increment block counter" step refers to.
	vfrTicks     []rawTick
	vfrKeyframes []blockSample
	blockCounters map[uint64]uint64

	diagnostics []string
}

func newParseContext(opts *Options, src Source) *ParseContext {
	if opts == nil {
		opts = &Options{}
	}
	ctx := &ParseContext{
		Opts:          opts,
		Source:        src,
		Log:           opts.logger(),
		TimecodeScale: 1000000,
		wanted:        make(map[string]sectionState),
		seekHeadIndex: make(map[uint32]int64),
		seenSeekHeads: make(map[int64]bool),
		blockCounters: make(map[uint64]uint64),
	}
	ctx.applyGet(opts.Get)
	return ctx
}

func (c *ParseContext) applyGet(get []string) {
	all := false
	for _, tok := range get {
		switch tok {
		case "*":
			all = true
		case "*common":
			for _, s := range commonSections {
				c.wanted[s] = sectionAuto
			}
		case "keyframes":
			c.wantKeyframes = true
		case "timecodes":
			c.wantTimecodes = true
		case "useCFR":
			c.wantUseCFR = true
		case "Tags:whenPrinting":
			c.wanted[secTags] = sectionAuto
		default:
			c.wanted[tok] = sectionAuto
		}
	}
	if all {
		for _, s := range []string{secSeekHead, secInfo, secTracks, secChapters, secAttachments, secTags, secCluster, secCues, secEBML} {
			c.wanted[s] = sectionAuto
		}
	}
	if (c.wantKeyframes || c.wantTimecodes) && !c.wantUseCFR {
		// index builder needs Tracks (for the video track number) and,
		// in CFR mode, Cues; VFR mode needs Cluster.
		c.wanted[secTracks] = sectionAuto
	}
	if c.wantUseCFR {
		c.wanted[secTracks] = sectionAuto
		c.wanted[secCues] = sectionAuto
	} else if c.wantKeyframes || c.wantTimecodes {
		c.wanted[secCluster] = sectionAuto
	}
}

// isWanted reports whether name was requested at all (§4.D "requested
// sections").
func (c *ParseContext) isWanted(name string) bool {
	_, ok := c.wanted[name]
	return ok
}

func (c *ParseContext) satisfy(name string) {
	if _, ok := c.wanted[name]; ok {
		c.wanted[name] = sectionSatisfied
	}
}

// allSatisfied reports whether every requested section has been read at
// least once (§4.D "terminate the Segment early").
func (c *ParseContext) allSatisfied() bool {
	for _, st := range c.wanted {
		if st != sectionSatisfied {
			return false
		}
	}
	return true
}

func (c *ParseContext) unsatisfied() []string {
	var out []string
	for name, st := range c.wanted {
		if st != sectionSatisfied {
			out = append(out, name)
		}
	}
	return out
}

func (c *ParseContext) warn(msg string, fields logrus.Fields) {
	c.diagnostics = append(c.diagnostics, msg)
	c.Log.WithFields(fields).Warn(msg)
}
