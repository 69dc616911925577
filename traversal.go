package matroska

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Root search and tail scan windows (§4.D). Chosen to bound worst-case work
// on a pathological or truncated file: 128 * 4KiB = 512KiB forward, 256 *
// 4KiB = 1MiB backward.
const (
	rootScanChunk      = 4096
	rootScanMaxChunks  = 128
	tailScanWindow     = 4096
	tailScanMaxWindows = 256

	maxContainerDepth = 64
)

// sectionID maps a level-1 section name to its element identifier, used to
// look up SeekHead's index and to recognize where an unsized container ends
// in scanUnsizedContainer. The tail scan recognizes names via schemaNameOf.
var sectionID = map[string]uint32{
	secSeekHead: IDSeekHead, secInfo: IDInfo, secTracks: IDTracks,
	secChapters: IDChapters, secAttachments: IDAttachments, secTags: IDTags,
	secCluster: IDCluster, secCues: IDCues,
}

// locateRoot scans forward from offset 0 in rootScanChunk windows, capped at
// rootScanMaxChunks, for the EBML header and Segment 4-byte ID signatures
// (§4.D "root search"). Either offset is -1 if not found within the cap;
// finding neither is a MissingRootError.
func locateRoot(src Source) (ebmlOff, segOff int64, err error) {
	ebmlOff, segOff = -1, -1
	buf := make([]byte, rootScanChunk+3) // overlap so a 4-byte ID can't straddle a window boundary
	for chunk := 0; chunk < rootScanMaxChunks; chunk++ {
		base := int64(chunk) * rootScanChunk
		n, rerr := src.ReadAt(buf, base)
		if n < 4 {
			break
		}
		for i := 0; i+4 <= n; i++ {
			id := uint32(buf[i])<<24 | uint32(buf[i+1])<<16 | uint32(buf[i+2])<<8 | uint32(buf[i+3])
			switch id {
			case IDEBMLHeader:
				if ebmlOff < 0 {
					ebmlOff = base + int64(i)
				}
			case IDSegment:
				if segOff < 0 {
					segOff = base + int64(i)
				}
			}
		}
		if ebmlOff >= 0 && segOff >= 0 {
			return ebmlOff, segOff, nil
		}
		if rerr != nil {
			break
		}
	}
	if ebmlOff < 0 && segOff < 0 {
		return -1, -1, &MissingRootError{ScannedBytes: int64(rootScanMaxChunks) * rootScanChunk}
	}
	return ebmlOff, segOff, nil
}

// parseChildren is the generic recursive descent used for containers whose
// contents are always fully materialized once the container itself is
// wanted: EBML header and every level-1 section with everything nested
// inside them (§4.C, §4.D). For Cluster and Cues, readLevel1 first finds the
// container's end with scanUnsizedContainer, descends with parseChildren,
// and then hands the container to indexContainer.
func parseChildren(ctx *ParseContext, parent *Element, limit int64, depth int) error {
	if depth <= 0 {
		return &FormatError{Offset: parent.Start, Expected: "bounded nesting", Actual: fmt.Sprintf("depth exceeds %d", maxContainerDepth)}
	}
	pos := parent.DataStart
	for {
		if ctx.aborted {
			return nil
		}
		if limit >= 0 && pos >= limit {
			return nil
		}
		hdr, err := readHeader(ctx.Source, pos)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}

		child, err := newElement(ctx, parent, parent.Root, hdr)
		if err != nil {
			return err
		}
		nextPos := hdr.dataStart
		if hdr.size >= 0 {
			nextPos += hdr.size
		}

		se := defaultSchema.resolve(hdr.id, parent)
		multiple := se != nil && se.multiple

		if child.Type == TypeContainer {
			if stop, skip := announce(ctx, child); stop {
				parent.Children.put(child.Name, child, multiple)
				return nil
			} else if skip {
				child.Skipped = true
				parent.Children.put(child.Name, child, multiple)
				if hdr.size < 0 {
					return &FormatError{Offset: hdr.dataStart, Expected: "known size for skipped container", Actual: "unknown size"}
				}
				pos = nextPos
				continue
			}
			childLimit := int64(-1)
			if hdr.size >= 0 {
				childLimit = hdr.dataStart + hdr.size
			} else if limit >= 0 {
				childLimit = limit
			}
			if err := parseChildren(ctx, child, childLimit, depth-1); err != nil {
				return err
			}
			if hdr.size < 0 {
				nextPos = childLimit
			}
		} else if stop, skip := announce(ctx, child); stop {
			parent.Children.put(child.Name, child, multiple)
			return nil
		} else if skip {
			child.Skipped = true
		}

		parent.Children.put(child.Name, child, multiple)
		pos = nextPos
	}
}

// announce invokes the observer callback, translating its ControlReply into
// (stop, skip) for the caller. stop means the caller should return
// immediately after attaching child to its parent (Abort was requested);
// the aborted flag on ctx is set so outer loops also unwind.
func announce(ctx *ParseContext, e *Element) (stop, skip bool) {
	cb := ctx.Opts.EntryCallback
	if cb == nil {
		return false, false
	}
	switch cb(e) {
	case Abort:
		ctx.aborted = true
		return true, false
	case SkipElement:
		return false, true
	default:
		return false, false
	}
}

// sectionNeeded reports whether a level-1 element should be read at all
// (§4.D "requested sections"). Void, CRC-32 and SignatureSlot are global
// housekeeping elements never worth materializing. SeekHead is always read
// regardless of what was requested — it's the small index that makes the
// SeekHead-guided jump navigation in resolveViaSeekHead possible for
// whatever sections the caller actually wants. An empty Get list means
// "everything", matching the legacy façade's expectations.
func sectionNeeded(ctx *ParseContext, name string) bool {
	switch name {
	case "Void", "CRC-32", "SignatureSlot":
		return false
	case secSeekHead:
		return true
	}
	if len(ctx.wanted) == 0 {
		return true
	}
	return ctx.isWanted(name)
}

// parseSegment walks the Segment's direct children (§4.D), applying the
// requested-section state machine, SeekHead-guided jumps, and the tail-scan
// fallback. Each wanted level-1 element is read through readLevel1.
func parseSegment(ctx *ParseContext, segment *Element) error {
	limit := int64(-1)
	if segment.Size >= 0 {
		limit = segment.DataStart + segment.Size
	}
	pos := segment.DataStart
	for {
		if ctx.aborted {
			return nil
		}
		if limit >= 0 && pos >= limit {
			break
		}
		if !ctx.Opts.ExhaustiveSearch && len(ctx.wanted) > 0 && ctx.allSatisfied() {
			break
		}

		hdr, err := readHeader(ctx.Source, pos)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}
		nextPos := hdr.dataStart
		if hdr.size >= 0 {
			nextPos += hdr.size
		}

		se := defaultSchema.resolve(hdr.id, segment)
		name := "?"
		if se != nil {
			name = se.name
		}

		if !sectionNeeded(ctx, name) {
			if hdr.size < 0 {
				// Cluster is routinely left with unknown size by real
				// muxers; skipping it without wanting it still requires
				// walking its header structure to find where it ends.
				end, err := scanUnsizedContainer(ctx, hdr)
				if err != nil {
					return err
				}
				nextPos = end
			}
			pos = nextPos
			continue
		}

		child, err := readLevel1(ctx, segment, hdr, name, se)
		if err != nil {
			return err
		}
		if name == secSeekHead {
			indexSeekHead(ctx, child, segment)
		}
		if hdr.size < 0 {
			// Cluster is the only level-1 element commonly muxed with
			// unknown size; scanUnsizedContainer already found its end.
			nextPos = child.DataStart + maxi64(child.Size, 0)
		}
		pos = nextPos
	}

	if err := resolveViaSeekHead(ctx, segment); err != nil {
		return err
	}
	return tailScanFallback(ctx, segment)
}

// readLevel1 materializes one level-1 child, delegating descent to
// parseChildren and honoring the observer contract the same way
// parseChildren does. Cluster and Cues have their end found by
// scanUnsizedContainer first and are passed to indexContainer afterwards.
func readLevel1(ctx *ParseContext, segment *Element, hdr *elementHeader, name string, se *schemaEntry) (*Element, error) {
	child, err := newElement(ctx, segment, segment, hdr)
	if err != nil {
		return nil, err
	}
	multiple := se != nil && se.multiple

	if child.Type == TypeContainer {
		if stop, skip := announce(ctx, child); stop {
			segment.Children.put(child.Name, child, multiple)
			return child, nil
		} else if skip {
			child.Skipped = true
			segment.Children.put(child.Name, child, multiple)
			ctx.satisfy(name)
			return child, nil
		}
		if name != secCluster && name != secCues {
			childLimit := int64(-1)
			if hdr.size >= 0 {
				childLimit = hdr.dataStart + hdr.size
			}
			if err := parseChildren(ctx, child, childLimit, maxContainerDepth); err != nil {
				return nil, err
			}
		} else {
			end, err := scanUnsizedContainer(ctx, hdr)
			if err != nil {
				return nil, err
			}
			if hdr.size < 0 {
				child.Size = end - hdr.dataStart
			}
			if err := parseChildren(ctx, child, end, maxContainerDepth); err != nil {
				return nil, err
			}
			if err := indexContainer(ctx, child, name); err != nil {
				return nil, err
			}
		}
	}
	segment.Children.put(child.Name, child, multiple)
	ctx.satisfy(name)
	return child, nil
}

// scanUnsizedContainer finds the byte offset where a container declared
// with unknown size actually ends, by walking its own children until it
// reaches a header with a level-1 section ID (the next sibling), a header
// that does not decode (including at the end of the source), or a child that
// is itself unsized. Matroska muxers commonly leave Cluster unsized.
func scanUnsizedContainer(ctx *ParseContext, hdr *elementHeader) (int64, error) {
	if hdr.size >= 0 {
		return hdr.dataStart + hdr.size, nil
	}
	pos := hdr.dataStart
	for {
		h, err := readHeader(ctx.Source, pos)
		if err != nil {
			return pos, nil
		}
		if _, ok := sectionID[schemaNameOf(h.id)]; ok && h.id != IDCRC32 {
			return pos, nil
		}
		if h.size < 0 {
			return pos, nil
		}
		pos = h.dataStart + h.size
	}
}

func schemaNameOf(id uint32) string {
	if se, ok := defaultSchema.byID[id]; ok {
		return se.name
	}
	return "?"
}

func maxi64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// indexSeekHead records each Seek/SeekID -> SeekPosition pair, absolute to
// the file, from a just-read SeekHead (§4.D "SeekHead index").
func indexSeekHead(ctx *ParseContext, seekHead, segment *Element) {
	for _, seek := range seekHead.Children.GetAll("Seek") {
		idEl, ok := seek.Children.Get("SeekID")
		posEl, ok2 := seek.Children.Get("SeekPosition")
		if !ok || !ok2 || len(idEl.Bin) == 0 {
			continue
		}
		id, _, err := decodeVINT(idEl.Bin, true)
		if err != nil {
			continue
		}
		ctx.seekHeadIndex[uint32(id)] = segment.DataStart + int64(posEl.U)
	}
}

// resolveViaSeekHead jumps directly to any still-unsatisfied section the
// SeekHead points at (§4.D "SeekHead-guided jump navigation"), guarding
// against cycles by remembering visited offsets.
func resolveViaSeekHead(ctx *ParseContext, segment *Element) error {
	for _, name := range ctx.unsatisfied() {
		id, ok := sectionID[name]
		if !ok {
			continue
		}
		off, ok := ctx.seekHeadIndex[id]
		if !ok || ctx.seenSeekHeads[off] {
			continue
		}
		ctx.seenSeekHeads[off] = true
		if err := readJumpTarget(ctx, segment, off, name); err != nil {
			ctx.warn("SeekHead target unreadable", logrus.Fields{"path": name, "offset": off, "err": err.Error()})
		}
	}
	return nil
}

func readJumpTarget(ctx *ParseContext, segment *Element, off int64, name string) error {
	hdr, err := readHeader(ctx.Source, off)
	if err != nil {
		return err
	}
	se := defaultSchema.resolve(hdr.id, segment)
	if se == nil || se.name != name {
		return fmt.Errorf("SeekHead entry at %d does not resolve to %s", off, name)
	}
	_, err = readLevel1(ctx, segment, hdr, name, se)
	return err
}

// tailScanFallback walks backward from the end of the source in
// tailScanWindow windows, capped at tailScanMaxWindows, looking for a valid
// level-1 header for any section still unsatisfied after the forward pass
// and SeekHead resolution (§4.D "tail-scan heuristic"). This is the last
// resort for files with no SeekHead, or a SeekHead that predates a later
// remux.
func tailScanFallback(ctx *ParseContext, segment *Element) error {
	pending := ctx.unsatisfied()
	if len(pending) == 0 {
		return nil
	}
	want := make(map[string]bool, len(pending))
	for _, n := range pending {
		want[n] = true
	}

	size, err := ctx.Source.Size()
	if err != nil {
		return nil // no way to anchor a backward scan; give up quietly
	}

	// Anchor the backward scan at the source's true end rather than
	// Segment's declared size: a stale declared size that predates a later
	// remux is exactly the case this fallback exists to survive.
	found, err := locateLastContainer(ctx.Source, segment.DataStart, size, want)
	if err != nil {
		return nil
	}
	for name, hdr := range found {
		se := defaultSchema.resolve(hdr.id, segment)
		if se == nil {
			continue
		}
		if _, err := readLevel1(ctx, segment, hdr, name, se); err != nil {
			ctx.warn("tail-scan candidate unreadable", logrus.Fields{"path": name, "offset": hdr.dataStart, "err": err.Error()})
		}
	}
	return nil
}

// locateLastContainer scans backward from end, validating each candidate
// identifier byte pattern against a known trailing boundary before
// accepting it (§4.D "tail scan"): a candidate at pos is a real element
// only if its header decodes to a known size and
// `pos + idWidth + sizeWidth + size == lastKnownEnd` — i.e.
// hdr.dataStart+hdr.size exactly reaches the last validated boundary,
// starting from end itself. Each validated candidate becomes the new
// boundary the next (earlier) candidate is checked against, chaining
// backward one real element at a time; this is what rules out ID-like byte
// sequences inside Cluster/Block binary payloads, which will essentially
// never also satisfy the exact-boundary equation. The backward walk is
// capped at tailScanMaxWindows*tailScanWindow total bytes from end.
func locateLastContainer(src Source, lo, end int64, want map[string]bool) (map[string]*elementHeader, error) {
	results := make(map[string]*elementHeader)
	remaining := make(map[string]bool, len(want))
	for k := range want {
		remaining[k] = true
	}

	scanFloor := end - int64(tailScanMaxWindows)*tailScanWindow
	if scanFloor < lo {
		scanFloor = lo
	}

	var buf []byte
	var bufStart int64
	idAt := func(pos int64) (uint32, bool) {
		if buf == nil || pos < bufStart || pos+4 > bufStart+int64(len(buf)) {
			winStart := pos - tailScanWindow + 4
			if winStart < scanFloor {
				winStart = scanFloor
			}
			n := int(pos + 4 - winStart)
			if n <= 0 {
				return 0, false
			}
			tmp := make([]byte, n)
			got, _ := src.ReadAt(tmp, winStart)
			if got < 4 {
				return 0, false
			}
			buf, bufStart = tmp[:got], winStart
			if pos+4 > bufStart+int64(len(buf)) {
				return 0, false
			}
		}
		i := int(pos - bufStart)
		return uint32(buf[i])<<24 | uint32(buf[i+1])<<16 | uint32(buf[i+2])<<8 | uint32(buf[i+3]), true
	}

	lastKnownEnd := end
	pos := lastKnownEnd - 4
	for len(remaining) > 0 && pos >= scanFloor {
		id, ok := idAt(pos)
		if !ok {
			break
		}
		name := schemaNameOf(id)
		if name != "?" {
			if hdr, err := readHeader(src, pos); err == nil && hdr.size >= 0 && hdr.dataStart+hdr.size == lastKnownEnd {
				if remaining[name] {
					if _, already := results[name]; !already {
						results[name] = hdr
					}
					delete(remaining, name)
				}
				lastKnownEnd = pos
				pos = lastKnownEnd - 4
				continue
			}
		}
		pos--
	}
	return results, nil
}
