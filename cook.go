package matroska

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// canonicalFPS are the frame rates DefaultDuration's reciprocal is snapped
// to when it lands within snapTolerance (§4.E "FPS snapping"). NTSC rates
// are listed as their exact rational value; muxers nearly always encode the
// rounded-to-ms DefaultDuration rather than the exact period, so snapping
// recovers the number a human expects to see.
var canonicalFPS = []float64{
	23.976023976023978, 24, 25, 29.97002997002997, 30, 50, 59.94005994005994, 60,
}

const snapTolerance = 0.01

func snapFPS(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	best := raw
	bestDiff := snapTolerance
	for _, c := range canonicalFPS {
		if d := absF(raw - c); d < bestDiff {
			bestDiff = d
			best = c
		}
	}
	return best
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// cookTimecodeScale extracts Segment/Info/TimecodeScale, defaulting to
// 1,000,000 ns/tick (§4.E, §3 invariants). It is read once the whole
// Segment has been walked so it applies retroactively to every tick-valued
// field regardless of where Info sat in the file.
func cookTimecodeScale(segment *Element) uint64 {
	info, ok := segment.Children.Get(secInfo)
	if !ok {
		return 1000000
	}
	if tcs, ok := info.Children.Get("TimecodeScale"); ok {
		if tcs.U == 0 {
			return 1000000
		}
		return tcs.U
	}
	return 1000000
}

// scaleTicks converts a raw tick count to nanoseconds under scale.
func scaleTicks(ticks uint64, scale uint64) time.Duration {
	return time.Duration(ticks * scale)
}

// cookSegmentInfo builds the legacy SegmentInfo view from Segment/Info,
// applying TimecodeScale to Duration (§4.E).
func cookSegmentInfo(segment *Element, scale uint64) *SegmentInfo {
	info, ok := segment.Children.Get(secInfo)
	if !ok {
		return nil
	}
	out := &SegmentInfo{TimecodeScale: scale}
	if e, ok := info.Children.Get("SegmentUID"); ok && len(e.Bin) == 16 {
		copy(out.UID[:], e.Bin)
	}
	if e, ok := info.Children.Get("SegmentFilename"); ok {
		out.Filename = e.S
	}
	if e, ok := info.Children.Get("PrevUID"); ok && len(e.Bin) == 16 {
		copy(out.PrevUID[:], e.Bin)
	}
	if e, ok := info.Children.Get("PrevFilename"); ok {
		out.PrevFilename = e.S
	}
	if e, ok := info.Children.Get("NextUID"); ok && len(e.Bin) == 16 {
		copy(out.NextUID[:], e.Bin)
	}
	if e, ok := info.Children.Get("NextFilename"); ok {
		out.NextFilename = e.S
	}
	if e, ok := info.Children.Get("Duration"); ok {
		out.Duration = uint64(e.F * float64(scale))
	}
	if e, ok := info.Children.Get("DateUTC"); ok {
		out.DateUTC = e.Date.UnixNano()
		out.DateUTCValid = true
	}
	if e, ok := info.Children.Get("Title"); ok {
		out.Title = e.S
	}
	if e, ok := info.Children.Get("MuxingApp"); ok {
		out.MuxingApp = e.S
	}
	if e, ok := info.Children.Get("WritingApp"); ok {
		out.WritingApp = e.S
	}
	return out
}

// cookTracks builds the legacy []*TrackInfo view from Segment/Tracks.
func cookTracks(segment *Element) []*TrackInfo {
	tracks, ok := segment.Children.Get(secTracks)
	if !ok {
		return nil
	}
	var out []*TrackInfo
	for _, entry := range tracks.Children.GetAll("TrackEntry") {
		out = append(out, cookTrackEntry(entry))
	}
	return out
}

func cookTrackEntry(entry *Element) *TrackInfo {
	t := &TrackInfo{}
	if e, ok := entry.Children.Get("TrackNumber"); ok {
		t.Number = uint8(e.U)
	}
	if e, ok := entry.Children.Get("TrackUID"); ok {
		t.UID = e.U
	}
	if e, ok := entry.Children.Get("TrackType"); ok {
		t.Type = uint8(e.U)
		t.TypeName = trackTypeName(t.Type)
	}
	if e, ok := entry.Children.Get("FlagEnabled"); ok {
		t.Enabled = e.U != 0
	} else {
		t.Enabled = true
	}
	if e, ok := entry.Children.Get("FlagDefault"); ok {
		t.Default = e.U != 0
	} else {
		t.Default = true
	}
	if e, ok := entry.Children.Get("FlagForced"); ok {
		t.Forced = e.U != 0
	}
	if e, ok := entry.Children.Get("FlagLacing"); ok {
		t.Lacing = e.U != 0
	} else {
		t.Lacing = true
	}
	if e, ok := entry.Children.Get("MinCache"); ok {
		t.MinCache = e.U
	}
	if e, ok := entry.Children.Get("MaxCache"); ok {
		t.MaxCache = e.U
	}
	if e, ok := entry.Children.Get("DefaultDuration"); ok {
		t.DefaultDuration = e.U
		if e.U > 0 {
			t.DefaultFPS = snapFPS(1e9 / float64(e.U))
		}
	}
	if e, ok := entry.Children.Get("CodecDelay"); ok {
		t.CodecDelay = e.U
	}
	if e, ok := entry.Children.Get("SeekPreRoll"); ok {
		t.SeekPreRoll = e.U
	}
	if e, ok := entry.Children.Get("TrackTimecodeScale"); ok {
		t.TimecodeScale = e.F
	} else {
		t.TimecodeScale = 1.0
	}
	if e, ok := entry.Children.Get("MaxBlockAdditionID"); ok {
		t.MaxBlockAdditionID = uint32(e.U)
	}
	if e, ok := entry.Children.Get("Name"); ok {
		t.Name = e.S
	}
	if e, ok := entry.Children.Get("Language"); ok {
		t.Language = e.S
	}
	if e, ok := entry.Children.Get("CodecID"); ok {
		t.CodecID = e.S
	}
	if e, ok := entry.Children.Get("CodecPrivate"); ok {
		t.CodecPrivate = e.Bin
	}
	if ce, ok := entry.Children.Get("ContentEncodings"); ok {
		if enc, ok := ce.Children.Get("ContentEncoding"); ok {
			if comp, ok := enc.Children.Get("ContentCompression"); ok {
				t.CompEnabled = true
				if a, ok := comp.Children.Get("ContentCompAlgo"); ok {
					t.CompMethod = uint32(a.U)
				}
				if s, ok := comp.Children.Get("ContentCompSettings"); ok {
					t.CompMethodPrivate = s.Bin
				}
			}
		}
	}
	if v, ok := entry.Children.Get("Video"); ok {
		t.Video = cookVideo(v)
		t.Video.FPS = t.DefaultFPS
	}
	if a, ok := entry.Children.Get("Audio"); ok {
		t.Audio = cookAudio(a)
	}
	return t
}

func cookVideo(v *Element) VideoInfo {
	var out VideoInfo
	if e, ok := v.Children.Get("FlagInterlaced"); ok {
		out.Interlaced = e.U != 0
	}
	if e, ok := v.Children.Get("StereoMode"); ok {
		out.StereoMode = uint8(e.U)
	}
	if e, ok := v.Children.Get("PixelWidth"); ok {
		out.PixelWidth = uint32(e.U)
	}
	if e, ok := v.Children.Get("PixelHeight"); ok {
		out.PixelHeight = uint32(e.U)
	}
	if e, ok := v.Children.Get("DisplayWidth"); ok {
		out.DisplayWidth = uint32(e.U)
	} else {
		out.DisplayWidth = out.PixelWidth
	}
	if e, ok := v.Children.Get("DisplayHeight"); ok {
		out.DisplayHeight = uint32(e.U)
	} else {
		out.DisplayHeight = out.PixelHeight
	}
	if e, ok := v.Children.Get("DisplayUnit"); ok {
		out.DisplayUnit = uint8(e.U)
	}
	if e, ok := v.Children.Get("AspectRatioType"); ok {
		out.AspectRatioType = uint8(e.U)
	}
	if e, ok := v.Children.Get("PixelCropLeft"); ok {
		out.CropL = uint32(e.U)
	}
	if e, ok := v.Children.Get("PixelCropTop"); ok {
		out.CropT = uint32(e.U)
	}
	if e, ok := v.Children.Get("PixelCropRight"); ok {
		out.CropR = uint32(e.U)
	}
	if e, ok := v.Children.Get("PixelCropBottom"); ok {
		out.CropB = uint32(e.U)
	}
	if e, ok := v.Children.Get("GammaValue"); ok {
		out.GammaValue = e.F
	}
	if c, ok := v.Children.Get("Colour"); ok {
		out.Colour = cookColour(c)
	}
	return out
}

func cookColour(c *Element) Colour {
	var out Colour
	get := func(name string) (uint32, bool) {
		if e, ok := c.Children.Get(name); ok {
			return uint32(e.U), true
		}
		return 0, false
	}
	out.MatrixCoefficients, _ = get("MatrixCoefficients")
	out.BitsPerChannel, _ = get("BitsPerChannel")
	out.ChromaSubsamplingHorz, _ = get("ChromaSubsamplingHorz")
	out.ChromaSubsamplingVert, _ = get("ChromaSubsamplingVert")
	out.CbSubsamplingHorz, _ = get("CbSubsamplingHorz")
	out.CbSubsamplingVert, _ = get("CbSubsamplingVert")
	out.ChromaSitingHorz, _ = get("ChromaSitingHorz")
	out.ChromaSitingVert, _ = get("ChromaSitingVert")
	out.Range, _ = get("Range")
	out.TransferCharacteristics, _ = get("TransferCharacteristics")
	out.Primaries, _ = get("Primaries")
	out.MaxCLL, _ = get("MaxCLL")
	out.MaxFALL, _ = get("MaxFALL")
	if m, ok := c.Children.Get("MasteringMetadata"); ok {
		getf := func(name string) float32 {
			if e, ok := m.Children.Get(name); ok {
				return float32(e.F)
			}
			return 0
		}
		out.MasteringMetadata = MasteringMetadata{
			PrimaryRChromaticityX:   getf("PrimaryRChromaticityX"),
			PrimaryRChromaticityY:   getf("PrimaryRChromaticityY"),
			PrimaryGChromaticityX:   getf("PrimaryGChromaticityX"),
			PrimaryGChromaticityY:   getf("PrimaryGChromaticityY"),
			PrimaryBChromaticityX:   getf("PrimaryBChromaticityX"),
			PrimaryBChromaticityY:   getf("PrimaryBChromaticityY"),
			WhitePointChromaticityX: getf("WhitePointChromaticityX"),
			WhitePointChromaticityY: getf("WhitePointChromaticityY"),
			LuminanceMax:            getf("LuminanceMax"),
			LuminanceMin:            getf("LuminanceMin"),
		}
	}
	return out
}

func cookAudio(a *Element) AudioInfo {
	var out AudioInfo
	if e, ok := a.Children.Get("SamplingFrequency"); ok {
		out.SamplingFreq = e.F
	} else {
		out.SamplingFreq = 8000
	}
	if e, ok := a.Children.Get("OutputSamplingFrequency"); ok {
		out.OutputSamplingFreq = e.F
	} else {
		out.OutputSamplingFreq = out.SamplingFreq
	}
	if e, ok := a.Children.Get("Channels"); ok {
		out.Channels = uint8(e.U)
	} else {
		out.Channels = 1
	}
	if e, ok := a.Children.Get("BitDepth"); ok {
		out.BitDepth = uint8(e.U)
	}
	return out
}

// cookChapters builds the legacy chapter tree from Segment/Chapters,
// converting ChapterTimeStart/End directly from nanoseconds (unlike Cue or
// Block timecodes, chapter times are not expressed in TimecodeScale ticks).
func cookChapters(segment *Element) []*Chapter {
	chapters, ok := segment.Children.Get(secChapters)
	if !ok {
		return nil
	}
	var out []*Chapter
	for _, edition := range chapters.Children.GetAll("EditionEntry") {
		for _, atom := range edition.Children.GetAll("ChapterAtom") {
			out = append(out, cookChapterAtom(atom))
		}
	}
	return out
}

func cookChapterAtom(atom *Element) *Chapter {
	c := &Chapter{}
	if e, ok := atom.Children.Get("ChapterUID"); ok {
		c.UID = e.U
	}
	if e, ok := atom.Children.Get("ChapterTimeStart"); ok {
		c.TimeStart = time.Duration(e.U)
	}
	if e, ok := atom.Children.Get("ChapterTimeEnd"); ok {
		c.TimeEnd = time.Duration(e.U)
	}
	for _, disp := range atom.Children.GetAll("ChapterDisplay") {
		if s, ok := disp.Children.Get("ChapString"); ok && c.Title == "" {
			c.Title = s.S
		}
	}
	for _, nested := range atom.Children.GetAll("ChapterAtom") {
		c.Children = append(c.Children, cookChapterAtom(nested))
	}
	return c
}

// cookTags flattens Segment/Tags/Tag/SimpleTag into one Tag per SimpleTag,
// nested ones included, that has a TagName or a TagString (§4.B "recursive
// self-nesting").
func cookTags(segment *Element) []*Tag {
	tagsEl, ok := segment.Children.Get(secTags)
	if !ok {
		return nil
	}
	var out []*Tag
	for _, tag := range tagsEl.Children.GetAll("Tag") {
		var trackUID uint64
		if targets, ok := tag.Children.Get("Targets"); ok {
			if tu, ok := targets.Children.Get("TagTrackUID"); ok {
				trackUID = tu.U
			}
		}
		var walk func(simple *Element)
		walk = func(simple *Element) {
			t := &Tag{TargetTrackUID: trackUID}
			if n, ok := simple.Children.Get("TagName"); ok {
				t.Name = n.S
			}
			if v, ok := simple.Children.Get("TagString"); ok {
				t.Value = v.S
			}
			if l, ok := simple.Children.Get("TagLanguage"); ok {
				t.Language = l.S
			}
			if t.Name != "" || t.Value != "" {
				out = append(out, t)
			}
			for _, nested := range simple.Children.GetAll("SimpleTag") {
				walk(nested)
			}
		}
		for _, simple := range tag.Children.GetAll("SimpleTag") {
			walk(simple)
		}
	}
	return out
}

// cookAttachments builds the legacy []*Attachment view.
func cookAttachments(segment *Element) []*Attachment {
	attachments, ok := segment.Children.Get(secAttachments)
	if !ok {
		return nil
	}
	var out []*Attachment
	for _, af := range attachments.Children.GetAll("AttachedFile") {
		a := &Attachment{}
		if e, ok := af.Children.Get("FileUID"); ok {
			a.UID = e.U
		}
		if e, ok := af.Children.Get("FileName"); ok {
			a.Filename = e.S
		}
		if e, ok := af.Children.Get("FileDescription"); ok {
			a.Description = e.S
		}
		if e, ok := af.Children.Get("FileMimeType"); ok {
			a.MimeType = e.S
		}
		if e, ok := af.Children.Get("FileData"); ok {
			a.Position = e.DataStart
			a.Size = e.Size
			a.Data = e.Bin
		}
		out = append(out, a)
	}
	return out
}

// cookCues builds the legacy []*Cue view, scaling CueTime by TimecodeScale
// (§4.E). CueDuration is not read.
func cookCues(segment *Element, scale uint64) []*Cue {
	cues, ok := segment.Children.Get(secCues)
	if !ok {
		return nil
	}
	var out []*Cue
	for _, cp := range cues.Children.GetAll("CuePoint") {
		timeEl, ok := cp.Children.Get("CueTime")
		if !ok {
			continue
		}
		for _, tp := range cp.Children.GetAll("CueTrackPositions") {
			cue := &Cue{Time: scaleTicks(timeEl.U, scale)}
			if t, ok := tp.Children.Get("CueTrack"); ok {
				cue.Track = t.U
			}
			if p, ok := tp.Children.Get("CueClusterPosition"); ok {
				cue.Position = p.U
			}
			out = append(out, cue)
		}
	}
	return out
}

// cookIndexCFR derives the keyframe index from the raw Cues samples under
// the CFR algorithm of §4.F: each CueTime is converted to milliseconds
// under the final TimecodeScale and divided by the video track's
// DefaultDuration (also in milliseconds) to get a frame position. If any
// sample's fractional frame position exceeds the one-millisecond tolerance,
// the file is not actually constant frame rate; the whole pass aborts with
// a warning (ok=false) instead of returning a misleading index, matching
// the "irregular CFR" scenario's "no keyframes array" outcome. Missing
// DefaultDuration on the video track aborts the same way, since the frame
// computation has nothing to divide by.
func cookIndexCFR(ctx *ParseContext, videoTrack uint64, trackEntry *Element) (keyframes []int, timecodes []time.Duration, spans []TimecodeSpan, ok bool) {
	durEl, hasDur := trackEntry.Children.Get("DefaultDuration")
	if !hasDur || durEl.U == 0 {
		ctx.warn("CFR mode requires TrackEntry/DefaultDuration on the video track, indexing skipped", logrus.Fields{"track": videoTrack})
		return nil, nil, nil, false
	}
	frameDurationMs := float64(durEl.U) / 1e6
	tolerance := 1.0 / frameDurationMs
	scale := float64(ctx.TimecodeScale)

	seenFrames := make(map[int]bool)
	seenTimes := make(map[time.Duration]bool)
	for _, r := range ctx.cueTicks {
		if r.track != videoTrack {
			continue
		}
		cueTimeMs := float64(r.ticks) * scale / 1e6
		frameFloat := cueTimeMs / frameDurationMs
		frame := math.Round(frameFloat)
		if math.Abs(frameFloat-frame) > tolerance {
			ctx.warn("irregular CFR frame timing, indexing skipped", logrus.Fields{
				"track": videoTrack, "cueTimeMs": cueTimeMs, "frame": frameFloat,
			})
			return nil, nil, nil, false
		}
		fi := int(frame)
		if !seenFrames[fi] {
			seenFrames[fi] = true
			keyframes = append(keyframes, fi)
		}
		if ctx.wantTimecodes {
			t := scaleTicks(r.ticks, ctx.TimecodeScale)
			if !seenTimes[t] {
				seenTimes[t] = true
				timecodes = append(timecodes, t)
			}
		}
	}
	sort.Ints(keyframes)
	sort.Slice(timecodes, func(i, j int) bool { return timecodes[i] < timecodes[j] })
	spans = deriveSpans(timecodes)
	return keyframes, timecodes, spans, true
}

// cookIndexVFR derives the keyframe/timecode index from the raw per-track
// block samples collected while scanning Clusters (§4.F "VFR via Cluster
// scan"): keyframes is the sorted set of unique block indices recorded for
// the video track, timecodes the sorted set of unique absolute timecodes on
// the same track.
func cookIndexVFR(ctx *ParseContext, videoTrack uint64) (keyframes []int, timecodes []time.Duration, spans []TimecodeSpan) {
	seenFrames := make(map[int]bool)
	for _, s := range ctx.vfrKeyframes {
		if s.track != videoTrack || seenFrames[s.blockIndex] {
			continue
		}
		seenFrames[s.blockIndex] = true
		keyframes = append(keyframes, s.blockIndex)
	}
	sort.Ints(keyframes)

	seenTimes := make(map[time.Duration]bool)
	for _, r := range ctx.vfrTicks {
		if r.track != videoTrack {
			continue
		}
		t := scaleTicks(r.ticks, ctx.TimecodeScale)
		if !seenTimes[t] {
			seenTimes[t] = true
			timecodes = append(timecodes, t)
		}
	}
	sort.Slice(timecodes, func(i, j int) bool { return timecodes[i] < timecodes[j] })

	spans = deriveSpans(timecodes)
	return keyframes, timecodes, spans
}

// deriveSpans groups consecutive timecode deltas that stay within one
// millisecond of the previous delta into a single same-FPS span (§4.F
// "same-FPS span derivation"). Each span is anchored to its starting
// position in the timecodes array — the position a caller slices the array
// at — rather than to a wall-clock range.
func deriveSpans(timecodes []time.Duration) []TimecodeSpan {
	if len(timecodes) < 2 {
		return nil
	}
	var spans []TimecodeSpan
	spanStart := 0
	lastDelta := timecodes[1] - timecodes[0]
	closeSpan := func(end int) {
		frames := end - spanStart
		dur := timecodes[end] - timecodes[spanStart]
		fps := 0.0
		if dur > 0 {
			fps = snapFPS(float64(frames) / dur.Seconds())
		}
		spans = append(spans, TimecodeSpan{StartFrame: spanStart, StartTime: timecodes[spanStart], FPS: fps})
	}
	for i := 2; i < len(timecodes); i++ {
		delta := timecodes[i] - timecodes[i-1]
		if absDuration(delta-lastDelta) > time.Millisecond {
			closeSpan(i - 1)
			spanStart = i - 1
		}
		lastDelta = delta
	}
	closeSpan(len(timecodes) - 1)
	return spans
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
