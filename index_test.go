package matroska

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBlockHeaderSimple(t *testing.T) {
	// track=1 (0x81), rel timecode -5, flags 0x80 (keyframe).
	data := []byte{0x81, 0xFF, 0xFB, 0x80, 0xAA}
	track, rel, flags, ok := parseBlockHeader(data)
	require.True(t, ok)
	require.EqualValues(t, 1, track)
	require.EqualValues(t, -5, rel)
	require.EqualValues(t, 0x80, flags)
}

func TestParseBlockHeaderTooShort(t *testing.T) {
	_, _, _, ok := parseBlockHeader([]byte{0x81, 0x00})
	require.False(t, ok)
}

func TestParseBlockHeaderWideTrackNumber(t *testing.T) {
	// track number VINT width 2 (0x4F 0x00 -> masked value 0x0F00).
	data := []byte{0x4F, 0x00, 0x00, 0x00, 0x80, 0xAA}
	track, _, _, ok := parseBlockHeader(data)
	require.True(t, ok)
	require.EqualValues(t, 0x0F00, track)
}

func TestRecordBlockSampleKeyframeOnly(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.wantTimecodes = false
	recordBlockSample(ctx, 1, 7, 500, 10, 1000, true)
	require.Len(t, ctx.vfrKeyframes, 1)
	require.Empty(t, ctx.vfrTicks)
	require.EqualValues(t, 7, ctx.vfrKeyframes[0].blockIndex)
	require.EqualValues(t, 1, ctx.vfrKeyframes[0].track)
}

func TestRecordBlockSampleNonKeyframeSkippedWithoutTimecodes(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.wantTimecodes = false
	recordBlockSample(ctx, 1, 0, 500, 10, 1000, false)
	require.Empty(t, ctx.vfrKeyframes)
	require.Empty(t, ctx.vfrTicks)
}

func TestRecordBlockSampleNonKeyframeWithTimecodes(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.wantTimecodes = true
	recordBlockSample(ctx, 1, 0, 500, -50, 1000, false)
	require.Empty(t, ctx.vfrKeyframes)
	require.Len(t, ctx.vfrTicks, 1)
	require.EqualValues(t, 450, ctx.vfrTicks[0].ticks)
}

// TestIndexCuesEveryCuePointIsKeyframe verifies CFR-mode raw collection
// picks up one sample per CuePoint/CueTrackPositions pair.
func TestIndexCuesEveryCuePointIsKeyframe(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.wantKeyframes = true

	cues := &Element{Name: "Cues", Children: newContainerMap()}
	cue := &Element{Name: "CuePoint", Children: newContainerMap()}
	cue.Children.put("CueTime", &Element{Name: "CueTime", U: 42}, false)
	tp := &Element{Name: "CueTrackPositions", Children: newContainerMap()}
	tp.Children.put("CueTrack", &Element{Name: "CueTrack", U: 1}, false)
	tp.Children.put("CueClusterPosition", &Element{Name: "CueClusterPosition", U: 999}, false)
	cue.Children.put("CueTrackPositions", tp, true)
	cues.Children.put("CuePoint", cue, true)

	indexCues(ctx, cues)
	require.Len(t, ctx.cueTicks, 1)
	require.EqualValues(t, 42, ctx.cueTicks[0].ticks)
	require.EqualValues(t, 999, ctx.cueTicks[0].position)
}

func TestIndexContainerIgnoresClusterInCFRMode(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.wantKeyframes = true
	ctx.wantUseCFR = true
	cluster := &Element{Name: "Cluster", Children: newContainerMap()}
	require.NoError(t, indexContainer(ctx, cluster, secCluster))
	require.Empty(t, ctx.vfrKeyframes)
}

func TestIndexContainerNoopWhenNothingRequested(t *testing.T) {
	ctx := newTestContext(nil)
	cues := &Element{Name: "Cues", Children: newContainerMap()}
	require.NoError(t, indexContainer(ctx, cues, secCues))
	require.Empty(t, ctx.cueTicks)
}

// TestIndexClusterAssignsBlockIndicesPerTrackInFileOrder exercises the
// block counter directly: two tracks interleaved across SimpleBlock and
// BlockGroup inside one Cluster, verifying each track's counter advances
// independently and in true file order, not name-group order.
func TestIndexClusterAssignsBlockIndicesPerTrackInFileOrder(t *testing.T) {
	ctx := newTestContext(nil)
	ctx.wantKeyframes = true
	ctx.wantTimecodes = true

	cluster := &Element{Name: "Cluster", Start: 1000, Children: newContainerMap()}
	cluster.Children.put("Timecode", &Element{Name: "Timecode", U: 0}, false)

	// File order: SimpleBlock(track 1, offset 1010), BlockGroup(track 2,
	// offset 1020), SimpleBlock(track 1, offset 1030).
	sb1 := &Element{Name: "SimpleBlock", Start: 1010, Bin: []byte{0x81, 0x00, 0x00, 0x80, 0xAA}}
	sb2 := &Element{Name: "SimpleBlock", Start: 1030, Bin: []byte{0x81, 0x00, 0x1E, 0x00, 0xBB}}
	cluster.Children.put("SimpleBlock", sb1, true)
	cluster.Children.put("SimpleBlock", sb2, true)

	bg := &Element{Name: "BlockGroup", Start: 1020, Children: newContainerMap()}
	bg.Children.put("Block", &Element{Name: "Block", Bin: []byte{0x82, 0x00, 0x0A, 0x00, 0xCC}}, false)
	cluster.Children.put("BlockGroup", bg, true)

	require.NoError(t, indexCluster(ctx, cluster))

	require.Equal(t, uint64(2), ctx.blockCounters[1])
	require.Equal(t, uint64(1), ctx.blockCounters[2])

	require.Len(t, ctx.vfrKeyframes, 2)
	require.EqualValues(t, 0, ctx.vfrKeyframes[0].blockIndex)
	require.EqualValues(t, 1, ctx.vfrKeyframes[0].track)
	require.EqualValues(t, 0, ctx.vfrKeyframes[1].blockIndex)
	require.EqualValues(t, 2, ctx.vfrKeyframes[1].track)

	require.Len(t, ctx.vfrTicks, 3)
}
