package matroska

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapFPSWithinTolerance(t *testing.T) {
	require.Equal(t, 23.976023976023978, snapFPS(23.976))
	require.Equal(t, 30.0, snapFPS(30.0))
	require.Equal(t, 59.94005994005994, snapFPS(59.94))
}

func TestSnapFPSOutsideTolerance(t *testing.T) {
	raw := 17.5
	require.Equal(t, raw, snapFPS(raw))
}

func TestCookTimecodeScaleDefault(t *testing.T) {
	segment := &Element{Name: "Segment", Children: newContainerMap()}
	require.EqualValues(t, 1000000, cookTimecodeScale(segment))
}

func TestCookTimecodeScaleExplicit(t *testing.T) {
	segment := &Element{Name: "Segment", Children: newContainerMap()}
	info := &Element{Name: "Info", Children: newContainerMap()}
	tcs := &Element{Name: "TimecodeScale", Type: TypeUInt, U: 500}
	info.Children.put("TimecodeScale", tcs, false)
	segment.Children.put(secInfo, info, false)
	require.EqualValues(t, 500, cookTimecodeScale(segment))
}

func videoTrackEntry(defaultDurationNs uint64) *Element {
	entry := &Element{Name: "TrackEntry", Children: newContainerMap()}
	entry.Children.put("DefaultDuration", &Element{Name: "DefaultDuration", U: defaultDurationNs}, false)
	return entry
}

// TestCookIndexCFRExactFrameBoundaries verifies the §4.F CFR computation
// (frame = cueTimeMs*timecodeScale/defaultFrameDurationMs) against cue
// points landing exactly on frame boundaries of a 30fps track, matching
// scenario S2's expectation of plain integer frame indices.
func TestCookIndexCFRExactFrameBoundaries(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.TimecodeScale = 1000000 // 1ms/tick
	entry := videoTrackEntry(1000000000 / 30)
	ctx.cueTicks = []rawTick{
		{ticks: 0, track: 1},
		{ticks: 1000, track: 1},
		{ticks: 2000, track: 1},
	}

	kf, _, _, ok := cookIndexCFR(ctx, 1, entry)
	require.True(t, ok)
	require.Equal(t, []int{0, 30, 60}, kf)
}

// TestCookIndexCFRIrregularAbortsWithoutKeyframes exercises scenario S3:
// a cue point landing well off any frame boundary makes the file not
// actually constant frame rate, so the whole CFR pass aborts and no
// keyframes array is produced.
func TestCookIndexCFRIrregularAbortsWithoutKeyframes(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.TimecodeScale = 1000000
	entry := videoTrackEntry(1000000000 / 30) // ~33.33ms/frame
	ctx.cueTicks = []rawTick{
		{ticks: 0, track: 1},
		{ticks: 17, track: 1}, // 17ms is roughly half a frame in, not a frame boundary
	}

	kf, tc, spans, ok := cookIndexCFR(ctx, 1, entry)
	require.False(t, ok)
	require.Nil(t, kf)
	require.Nil(t, tc)
	require.Nil(t, spans)
}

func TestCookIndexCFRMissingDefaultDurationAborts(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.TimecodeScale = 1000000
	entry := &Element{Name: "TrackEntry", Children: newContainerMap()}
	ctx.cueTicks = []rawTick{{ticks: 0, track: 1}}

	_, _, _, ok := cookIndexCFR(ctx, 1, entry)
	require.False(t, ok)
}

func TestCookIndexCFRFiltersByVideoTrack(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.TimecodeScale = 1000000
	entry := videoTrackEntry(1000000000 / 30)
	ctx.cueTicks = []rawTick{
		{ticks: 0, track: 1},
		{ticks: 1000, track: 2}, // other track, ignored
		{ticks: 1000, track: 1},
	}

	kf, _, _, ok := cookIndexCFR(ctx, 1, entry)
	require.True(t, ok)
	require.Equal(t, []int{0, 30}, kf)
}

// TestCookIndexVFRKeyframesAreFrameIndicesNotTimes verifies VFR-mode
// keyframes are sorted, deduplicated block indices, independent of the
// separate timecodes array (§4.F/§6).
func TestCookIndexVFRKeyframesAreFrameIndicesNotTimes(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.TimecodeScale = 1000000
	ctx.vfrKeyframes = []blockSample{
		{track: 1, blockIndex: 30},
		{track: 1, blockIndex: 0},
		{track: 1, blockIndex: 60},
		{track: 2, blockIndex: 0}, // other track, filtered out
	}
	ctx.vfrTicks = []rawTick{
		{ticks: 0, track: 1},
		{ticks: 1000, track: 1},
		{ticks: 2000, track: 1},
	}

	kf, tc, _ := cookIndexVFR(ctx, 1)
	require.Equal(t, []int{0, 30, 60}, kf)
	require.Equal(t, []time.Duration{0, 1000 * time.Millisecond, 2000 * time.Millisecond}, tc)
}

func TestCookIndexVFRDeduplicatesKeyframesAndTimecodes(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.TimecodeScale = 1000000
	ctx.vfrKeyframes = []blockSample{
		{track: 1, blockIndex: 5},
		{track: 1, blockIndex: 5},
	}
	ctx.vfrTicks = []rawTick{
		{ticks: 10, track: 1},
		{ticks: 10, track: 1},
	}

	kf, tc, _ := cookIndexVFR(ctx, 1)
	require.Equal(t, []int{5}, kf)
	require.Len(t, tc, 1)
}

func TestCookChapterTimesAreAbsoluteNotScaled(t *testing.T) {
	atom := &Element{Name: "ChapterAtom", Children: newContainerMap()}
	start := &Element{Name: "ChapterTimeStart", Type: TypeUInt, U: 5000000000}
	atom.Children.put("ChapterTimeStart", start, false)

	c := cookChapterAtom(atom)
	// 5s expressed directly in nanoseconds, never multiplied by TimecodeScale.
	require.Equal(t, 5*time.Second, c.TimeStart)
}

func TestCookChapterAtomRecursesIntoChildren(t *testing.T) {
	parent := &Element{Name: "ChapterAtom", Children: newContainerMap()}
	child := &Element{Name: "ChapterAtom", Children: newContainerMap()}
	uid := &Element{Name: "ChapterUID", Type: TypeUInt, U: 7}
	child.Children.put("ChapterUID", uid, false)
	parent.Children.put("ChapterAtom", child, true)

	c := cookChapterAtom(parent)
	require.Len(t, c.Children, 1)
	require.EqualValues(t, 7, c.Children[0].UID)
}

func TestDeriveSpansGroupsBySameFPS(t *testing.T) {
	tc := []time.Duration{
		0,
		time.Second / 30,
		2 * time.Second / 30,
		2*time.Second/30 + time.Second/10,
	}
	spans := deriveSpans(tc)
	require.NotEmpty(t, spans)
	require.Equal(t, 0, spans[0].StartFrame)
	require.Equal(t, tc[0], spans[0].StartTime)
}

func TestDeriveSpansEmptyOnSinglePoint(t *testing.T) {
	require.Nil(t, deriveSpans([]time.Duration{0}))
	require.Nil(t, deriveSpans(nil))
}
