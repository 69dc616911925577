package matroska

import (
	"fmt"
	"io"
	"sort"
)

// Demuxer is the legacy, struct-returning façade over Parse/Tree, kept
// compatible with the well-known MatroskaParser.h-style API this package
// used to bind directly. New code should prefer Parse, which exposes the
// full schema-driven tree instead of these fixed views.
type Demuxer struct {
	tree    *Tree
	packets []Packet
	next    int
}

// NewDemuxer creates a new Matroska demuxer from r, materializing the
// entire file (equivalent to Options{Get: []string{"*"}}) so every legacy
// accessor below has something to return.
func NewDemuxer(r io.ReadSeeker) (*Demuxer, error) {
	src := WrapReadSeeker(r)
	tree, err := Parse(src, &Options{
		Get:             []string{"*", "keyframes", "timecodes"},
		BinarySizeLimit: -1,
		KeepStreamOpen:  true,
	})
	if err != nil {
		if _, ok := err.(*AbortError); !ok {
			return nil, fmt.Errorf("failed to create parser: %w", err)
		}
	}
	d := &Demuxer{tree: tree}
	d.packets = collectPackets(tree)
	return d, nil
}

// Close closes a demuxer's underlying stream. The pure-Go parser does not
// hold any other resource needing explicit cleanup.
func (d *Demuxer) Close() {
	if d.tree != nil {
		_ = d.tree.ctx.Source.Close()
	}
}

// GetNumTracks gets the number of tracks available to a given demuxer.
func (d *Demuxer) GetNumTracks() (uint, error) {
	return uint(len(cookTracks(d.tree.Segment))), nil
}

// GetTrackInfo returns all track-level information available for a given
// track, where track is less than what is returned by GetNumTracks.
func (d *Demuxer) GetTrackInfo(track uint) (*TrackInfo, error) {
	tracks := cookTracks(d.tree.Segment)
	if int(track) >= len(tracks) {
		return nil, fmt.Errorf("track %d not found", track)
	}
	return tracks[track], nil
}

// GetFileInfo gets all top-level (whole file) info available for a given
// demuxer.
func (d *Demuxer) GetFileInfo() (*SegmentInfo, error) {
	info := cookSegmentInfo(d.tree.Segment, d.tree.ctx.TimecodeScale)
	if info == nil {
		return nil, fmt.Errorf("no file info available")
	}
	return info, nil
}

// GetAttachments returns information on all available attachments for a
// given demuxer. The returned slice may be of length 0.
func (d *Demuxer) GetAttachments() []*Attachment {
	return cookAttachments(d.tree.Segment)
}

// GetChapters returns all chapters for a given demuxer. The returned slice
// may be of length 0.
func (d *Demuxer) GetChapters() []*Chapter {
	return cookChapters(d.tree.Segment)
}

// GetTags returns all tags for a given demuxer. The returned slice may be
// of length 0.
func (d *Demuxer) GetTags() []*Tag {
	return cookTags(d.tree.Segment)
}

// GetCues returns all cues for a given demuxer. The returned slice may be
// of length 0.
func (d *Demuxer) GetCues() []*Cue {
	return cookCues(d.tree.Segment, d.tree.ctx.TimecodeScale)
}

// GetSegment returns the absolute byte position of the Segment element.
func (d *Demuxer) GetSegment() uint64 {
	return uint64(d.tree.Segment.Start)
}

// GetSegmentTop returns the position of the next byte after the Segment.
func (d *Demuxer) GetSegmentTop() uint64 {
	if d.tree.Segment.Size < 0 {
		return 0
	}
	return uint64(d.tree.Segment.DataStart + d.tree.Segment.Size)
}

// GetCuesPos returns the position of the Cues element in the stream, or 0
// if the file has none.
func (d *Demuxer) GetCuesPos() uint64 {
	cues, ok := d.tree.Segment.Children.Get(secCues)
	if !ok {
		return 0
	}
	return uint64(cues.Start)
}

// GetCuesTopPos returns the position of the byte after the end of the Cues.
func (d *Demuxer) GetCuesTopPos() uint64 {
	cues, ok := d.tree.Segment.Children.Get(secCues)
	if !ok || cues.Size < 0 {
		return 0
	}
	return uint64(cues.DataStart + cues.Size)
}

// Seek seeks to a given timecode.
//
// Flags here may be: 0 (normal seek), matroska.SeekToPrevKeyFrame, or
// matroska.SeekToPrevKeyFrameStrict.
func (d *Demuxer) Seek(timecode uint64, flags uint32) {
	// Random-access playback seeking is out of scope for this package; it
	// parses a file into a tree rather than driving a playback cursor.
}

// SeekCueAware seeks to a given timecode while taking cues into account.
//
// Flags here may be: 0 (normal seek), matroska.SeekToPrevKeyFrame, or
// matroska.SeekToPrevKeyFrameStrict. fuzzy defines whether a fuzzy seek
// will be used or not.
func (d *Demuxer) SeekCueAware(timecode uint64, flags uint32, fuzzy bool) {
}

// SkipToKeyframe skips to the next keyframe in a stream.
func (d *Demuxer) SkipToKeyframe() {
	for d.next < len(d.packets) && d.packets[d.next].Flags&KF == 0 {
		d.next++
	}
}

// GetLowestQTimecode returns the start time of the next packet that would
// be returned by ReadPacket, or 0 once exhausted.
func (d *Demuxer) GetLowestQTimecode() uint64 {
	if d.next >= len(d.packets) {
		return 0
	}
	return d.packets[d.next].StartTime
}

// SetTrackMask sets the demuxer's track mask; that is, it tells the demuxer
// which tracks to skip, and which to use. Any tracks with ones in their bit
// positions will be ignored. Calling this drops the queued packets of masked
// tracks; packets already returned by ReadPacket are discarded from the queue.
func (d *Demuxer) SetTrackMask(mask uint64) {
	var kept []Packet
	for _, p := range d.packets[d.next:] {
		if mask&(1<<uint(p.Track)) == 0 {
			kept = append(kept, p)
		}
	}
	d.packets = kept
	d.next = 0
}

// ReadPacketMask is the same as ReadPacket except packets belonging to a
// track whose bit is set in mask are skipped.
func (d *Demuxer) ReadPacketMask(mask uint64) (*Packet, error) {
	for d.next < len(d.packets) {
		p := d.packets[d.next]
		d.next++
		if mask&(1<<uint(p.Track)) != 0 {
			continue
		}
		return &p, nil
	}
	return nil, io.EOF
}

// ReadPacket returns the next packet from a demuxer, in file order.
func (d *Demuxer) ReadPacket() (*Packet, error) {
	return d.ReadPacketMask(0)
}

// collectPackets walks every materialized Cluster's SimpleBlock/BlockGroup
// children into a flat, file-ordered Packet list. Laced frames are not
// split into their sub-frames; each (Simple)Block becomes one Packet
// carrying its raw payload (see DESIGN.md for this scope decision).
func collectPackets(tree *Tree) []Packet {
	if tree == nil || tree.Segment == nil {
		return nil
	}
	var out []Packet
	for _, cluster := range tree.Segment.Children.GetAll(secCluster) {
		clusterTicks := uint64(0)
		if tc, ok := cluster.Children.Get("Timecode"); ok {
			clusterTicks = tc.U
		}
		type placed struct {
			at int64
			p  Packet
		}
		var inCluster []placed
		for _, sb := range cluster.Children.GetAll("SimpleBlock") {
			if p, ok := blockToPacket(sb.Bin, cluster.Start, clusterTicks, tree.ctx.TimecodeScale, true); ok {
				inCluster = append(inCluster, placed{sb.Start, p})
			}
		}
		for _, bg := range cluster.Children.GetAll("BlockGroup") {
			block, ok := bg.Children.Get("Block")
			if !ok {
				continue
			}
			keyframe := len(bg.Children.GetAll("ReferenceBlock")) == 0
			p, ok := blockToPacket(block.Bin, cluster.Start, clusterTicks, tree.ctx.TimecodeScale, false)
			if !ok {
				continue
			}
			if keyframe {
				p.Flags |= KF
			}
			if dur, ok := bg.Children.Get("BlockDuration"); ok {
				p.EndTime = p.StartTime + dur.U*tree.ctx.TimecodeScale
			}
			inCluster = append(inCluster, placed{bg.Start, p})
		}
		sort.SliceStable(inCluster, func(i, j int) bool { return inCluster[i].at < inCluster[j].at })
		for _, pp := range inCluster {
			out = append(out, pp.p)
		}
	}
	return out
}

func blockToPacket(data []byte, clusterPos int64, clusterTicks, scale uint64, simpleBlock bool) (Packet, bool) {
	track, rel, flags, ok := parseBlockHeader(data)
	if !ok {
		return Packet{}, false
	}
	_, width, _ := decodeVINT(data, false)

	p := Packet{
		Track:     uint8(track),
		StartTime: (clusterTicks + uint64(int64(rel))) * scale,
		FilePos:   uint64(clusterPos),
		Data:      data[width+3:],
	}
	if simpleBlock && flags&0x80 != 0 {
		p.Flags |= KF
	}
	if flags&0x01 != 0 {
		p.Flags |= Discardable
	}
	p.EndTime = p.StartTime
	return p, true
}
