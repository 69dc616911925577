package matroska

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Tree is the root of a completed parse (§3 "Parse tree", §6 "consumer
// contract"): EBML and Segment are the two top-level elements, plus the
// keyframe/timecode/span arrays derived by the index builder when
// requested via Options.Get. Keyframes holds frame indices, not times —
// see §4.F/§6: CFR mode derives them from Cue timing, VFR mode from a
// running per-track block counter. Timecodes is a separate, independently
// deduplicated array of absolute sample times on the same track.
type Tree struct {
	EBML    *Element
	Segment *Element

	Keyframes     []int
	Timecodes     []time.Duration
	TimecodeSpans []TimecodeSpan

	ctx        *ParseContext
	ownsSource bool
}

// Close releases the underlying Source when Options.KeepStreamOpen was set,
// since KeepStreamOpen transfers ownership of the source to the Tree.
// Without KeepStreamOpen, Parse has already closed the source and Close does
// nothing.
func (t *Tree) Close() error {
	if t == nil || !t.ownsSource || t.ctx == nil || t.ctx.Source == nil {
		return nil
	}
	return t.ctx.Source.Close()
}

// Parse opens and walks a Matroska/EBML source per the requested Options,
// returning the parse tree (§6 "Entry point surface"). A non-nil error is
// a *FormatError, *MissingRootError or *AbortError (§7), or an I/O or VINT
// decoding error from reading the source; on *AbortError, the partial tree
// built up to the abort point is still returned alongside it.
func Parse(src Source, opts *Options) (*Tree, error) {
	cached := newCachingSource(src)
	ctx := newParseContext(opts, cached)

	tree := &Tree{ctx: ctx, ownsSource: opts.keepStreamOpen()}
	if !tree.ownsSource {
		defer cached.Close()
	}

	ebmlOff, segOff, err := locateRoot(cached)
	if err != nil {
		return tree, err
	}

	if ebmlOff >= 0 {
		ebml, err := parseRootElement(ctx, ebmlOff)
		if err != nil {
			return tree, err
		}
		tree.EBML = ebml
		if ctx.aborted {
			return tree, &AbortError{At: ebml.Start}
		}
	}

	if segOff < 0 {
		return tree, &MissingRootError{ScannedBytes: int64(rootScanMaxChunks) * rootScanChunk}
	}

	segment, err := newRootShell(ctx, segOff)
	if err != nil {
		return tree, err
	}
	if err := parseSegment(ctx, segment); err != nil {
		return tree, err
	}
	tree.Segment = segment

	ctx.TimecodeScale = cookTimecodeScale(segment)

	if ctx.wantKeyframes || ctx.wantTimecodes {
		buildIndex(ctx, tree, segment)
	}

	if ctx.aborted {
		return tree, &AbortError{At: segment.Start}
	}
	return tree, nil
}

// parseRootElement reads and fully descends into one of the two root-level
// containers (EBML header); Segment uses newRootShell + parseSegment
// instead, since its own traversal policy is far more than "descend fully".
func parseRootElement(ctx *ParseContext, offset int64) (*Element, error) {
	el, err := newRootShell(ctx, offset)
	if err != nil {
		return nil, err
	}
	limit := int64(-1)
	if el.Size >= 0 {
		limit = el.DataStart + el.Size
	}
	if err := parseChildren(ctx, el, limit, maxContainerDepth); err != nil {
		return el, err
	}
	return el, nil
}

// newRootShell builds the Element for a root-level header (no parent, and
// Root pointing at itself, per the "enclosing EBML header or Segment"
// convention in Element.Root's doc comment).
func newRootShell(ctx *ParseContext, offset int64) (*Element, error) {
	hdr, err := readHeader(ctx.Source, offset)
	if err != nil {
		return nil, err
	}
	el, err := newElement(ctx, nil, nil, hdr)
	if err != nil {
		return nil, err
	}
	el.Root = el
	return el, nil
}

// findVideoTrack returns the TrackNumber and TrackEntry element of the
// first Video track in Segment/Tracks. found is false when no Video track
// exists at all — distinct from TrackNumber legitimately being the zero
// value — so callers can tell "nothing to index" apart from "index every
// track" (§7(v): a missing Video track skips indexing with a warning
// rather than silently falling back to no filter).
func findVideoTrack(segment *Element) (trackNumber uint64, entry *Element, found bool) {
	tracks, ok := segment.Children.Get(secTracks)
	if !ok {
		return 0, nil, false
	}
	for _, e := range tracks.Children.GetAll("TrackEntry") {
		typ, ok := e.Children.Get("TrackType")
		if !ok || typ.U != 1 {
			continue
		}
		if num, ok := e.Children.Get("TrackNumber"); ok {
			return num.U, e, true
		}
	}
	return 0, nil, false
}

// buildIndex dispatches to the CFR or VFR index builder once the video
// track is known, per §7(v): a file with no Video track, or a CFR request
// with no Cues to source cue points from, skips indexing entirely with a
// warning instead of defaulting to "keep every track".
func buildIndex(ctx *ParseContext, tree *Tree, segment *Element) {
	videoTrack, trackEntry, found := findVideoTrack(segment)
	if !found {
		ctx.warn("no Video track present, indexing skipped", nil)
		return
	}
	if ctx.wantUseCFR {
		if _, hasCues := segment.Children.Get(secCues); !hasCues {
			ctx.warn("CFR mode requires Cues, indexing skipped", logrus.Fields{"track": videoTrack})
			return
		}
		kf, tc, spans, ok := cookIndexCFR(ctx, videoTrack, trackEntry)
		if !ok {
			return
		}
		tree.Keyframes, tree.Timecodes, tree.TimecodeSpans = kf, tc, spans
		return
	}
	kf, tc, spans := cookIndexVFR(ctx, videoTrack)
	tree.Keyframes, tree.Timecodes, tree.TimecodeSpans = kf, tc, spans
}
