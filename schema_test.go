package matroska

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSchemaPathsUnique verifies every non-global DTD entry occupies a
// unique (parent path, id) slot: two entries can't claim the same child
// identifier under the same parent, or resolution would be ambiguous.
func TestSchemaPathsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, e := range dtd {
		if e.global {
			continue
		}
		key := fmt.Sprintf("%s>%x", e.parent, e.id)
		require.False(t, seen[key], "duplicate schema entry for id 0x%X under parent %q", e.id, e.parent)
		seen[key] = true
	}
}

func TestSchemaResolveGlobal(t *testing.T) {
	tracks := &Element{Name: "Tracks"}
	se := defaultSchema.resolve(IDVoid, tracks)
	require.NotNil(t, se)
	require.Equal(t, "Void", se.name)
}

func TestSchemaResolveExactPath(t *testing.T) {
	segment := &Element{Name: "Segment"}
	se := defaultSchema.resolve(IDInfo, segment)
	require.NotNil(t, se)
	require.Equal(t, "Info", se.name)
}

func TestSchemaResolveRecursive(t *testing.T) {
	segment := &Element{Name: "Segment"}
	chapters := &Element{Name: "Chapters", Parent: segment}
	edition := &Element{Name: "EditionEntry", Parent: chapters}
	atom1 := &Element{Name: "ChapterAtom", ID: IDChapterAtom, Parent: edition}
	atom2 := &Element{Name: "ChapterAtom", ID: IDChapterAtom, Parent: atom1}

	se := defaultSchema.resolve(IDChapterAtom, atom1)
	require.NotNil(t, se)
	require.Equal(t, "ChapterAtom", se.name)

	se2 := defaultSchema.resolve(IDChapterUID, atom2)
	require.NotNil(t, se2)
	require.Equal(t, "ChapterUID", se2.name)
}

func TestSchemaResolveUnknown(t *testing.T) {
	segment := &Element{Name: "Segment"}
	se := defaultSchema.resolve(0x12345678, segment)
	require.Nil(t, se)
}

func TestTrackTypeName(t *testing.T) {
	require.Equal(t, TrackVideo, trackTypeName(1))
	require.Equal(t, TrackAudio, trackTypeName(2))
	require.Equal(t, TrackUnknown, trackTypeName(0x99))
}
