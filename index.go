package matroska

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// TimecodeSpan covers a contiguous run of timecodes sharing the same
// derived FPS (§4.F "same-FPS span derivation"), anchored to its starting
// position in the timecodes array rather than to a wall-clock range, since
// that position is what a caller needs to slice the array at.
type TimecodeSpan struct {
	StartFrame int
	StartTime  time.Duration
	FPS        float64
}

// rawTick is a pre-rescaling index sample: the raw tick count (multiply by
// the final TimecodeScale to get nanoseconds, §4.E "retroactive rescaling")
// plus the track it was observed on, since Tracks may not be known yet when
// Cluster/Cues are scanned.
type rawTick struct {
	ticks    uint64
	track    uint64
	position int64
}

// blockSample is a VFR keyframe candidate: the running per-track block
// counter's value at the moment a (Simple)Block on track was seen with the
// keyframe flag set (§4.F "VFR via Cluster scan").
type blockSample struct {
	track      uint64
	blockIndex int
}

// indexContainer dispatches Cues or Cluster scanning into the raw
// accumulators on ctx, depending on useCFR (§4.F "CFR via Cues, VFR via
// Cluster scan").
func indexContainer(ctx *ParseContext, container *Element, name string) error {
	if !ctx.wantKeyframes && !ctx.wantTimecodes {
		return nil
	}
	switch name {
	case secCues:
		if ctx.wantUseCFR {
			indexCues(ctx, container)
		}
	case secCluster:
		if !ctx.wantUseCFR {
			return indexCluster(ctx, container)
		}
	}
	return nil
}

// indexCues collects one raw sample per CuePoint/CueTrackPositions pair
// (Matroska cue points are defined to always land on keyframes). The frame
// arithmetic and irregular-CFR detection happen later in cookIndexCFR, once
// the video track's DefaultDuration and the final TimecodeScale are both
// known — Tracks is not guaranteed to have been parsed yet when Cues is
// walked, so no track is filtered out here.
func indexCues(ctx *ParseContext, cues *Element) {
	for _, cue := range cues.Children.GetAll("CuePoint") {
		timeEl, ok := cue.Children.Get("CueTime")
		if !ok {
			continue
		}
		for _, tp := range cue.Children.GetAll("CueTrackPositions") {
			trackEl, ok := tp.Children.Get("CueTrack")
			posEl, ok2 := tp.Children.Get("CueClusterPosition")
			if !ok || !ok2 {
				continue
			}
			ctx.cueTicks = append(ctx.cueTicks, rawTick{ticks: timeEl.U, track: trackEl.U, position: int64(posEl.U)})
		}
	}
}

// indexCluster scans one Cluster's own SimpleBlock/BlockGroup payloads,
// advancing a running per-track block counter (§4.F "VFR via Cluster
// scan"). Candidates are sorted by their own byte offset before the counter
// is applied, since SimpleBlock and BlockGroup are stored under separate
// ContainerMap names and would otherwise lose their true file-order
// interleaving; the counter must advance once per block in the order the
// blocks actually appear in the Cluster, not once per name-group. It is a
// minimal block walker, independent of the generic element reader, since
// blocks are not themselves schema-driven TLV beyond their own element
// wrapper.
func indexCluster(ctx *ParseContext, cluster *Element) error {
	clusterPos := cluster.Start
	clusterTicks := uint64(0)
	if tc, ok := cluster.Children.Get("Timecode"); ok {
		clusterTicks = tc.U
	}

	type candidate struct {
		offset   int64
		track    uint64
		rel      int16
		keyframe bool
	}
	var candidates []candidate

	for _, sb := range cluster.Children.GetAll("SimpleBlock") {
		track, rel, flags, ok := parseBlockHeader(sb.Bin)
		if !ok {
			ctx.warn("malformed SimpleBlock, skipping", logrus.Fields{"offset": sb.Start})
			continue
		}
		candidates = append(candidates, candidate{offset: sb.Start, track: track, rel: rel, keyframe: flags&0x80 != 0})
	}
	for _, bg := range cluster.Children.GetAll("BlockGroup") {
		block, ok := bg.Children.Get("Block")
		if !ok {
			continue
		}
		track, rel, _, ok := parseBlockHeader(block.Bin)
		if !ok {
			ctx.warn("malformed Block, skipping", logrus.Fields{"offset": block.Start})
			continue
		}
		keyframe := len(bg.Children.GetAll("ReferenceBlock")) == 0
		candidates = append(candidates, candidate{offset: bg.Start, track: track, rel: rel, keyframe: keyframe})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].offset < candidates[j].offset })

	for _, c := range candidates {
		idx := int(ctx.blockCounters[c.track])
		ctx.blockCounters[c.track]++
		recordBlockSample(ctx, c.track, idx, clusterTicks, c.rel, clusterPos, c.keyframe)
	}
	return nil
}

// parseBlockHeader decodes a (Simple)Block's track number VINT, signed
// 16-bit relative timecode, and flags byte. It reports ok=false when data
// is too short to contain a header (truncated by BinarySizeLimit, or
// genuinely malformed).
func parseBlockHeader(data []byte) (track uint64, rel int16, flags byte, ok bool) {
	if len(data) < 3 {
		return 0, 0, 0, false
	}
	track, width, err := decodeVINT(data, false)
	if err != nil || len(data) < width+3 {
		return 0, 0, 0, false
	}
	rel = int16(uint16(data[width])<<8 | uint16(data[width+1]))
	flags = data[width+2]
	return track, rel, flags, true
}

// recordBlockSample records a block's absolute timecode into the VFR
// timecode accumulator and, when it is a keyframe, its block index into the
// keyframe accumulator — the two arrays §4.F/§6 keep separate: "timecodes"
// stays time-valued, "keyframes" is the sorted set of block indices at
// which the keyframe flag was seen.
func recordBlockSample(ctx *ParseContext, track uint64, blockIndex int, clusterTicks uint64, rel int16, clusterPos int64, isKeyframe bool) {
	if !isKeyframe && !ctx.wantTimecodes {
		return
	}
	if ctx.wantTimecodes {
		ticks := clusterTicks + uint64(int64(rel))
		ctx.vfrTicks = append(ctx.vfrTicks, rawTick{ticks: ticks, track: track, position: clusterPos})
	}
	if isKeyframe {
		ctx.vfrKeyframes = append(ctx.vfrKeyframes, blockSample{track: track, blockIndex: blockIndex})
	}
}
