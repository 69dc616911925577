package matroska

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValueType tags the decoded payload of an element, replacing the dynamic
// typing of a scripting-language original with an explicit sum type
// (§9 "Dynamic typing → tagged variants").
type ValueType int

const (
	TypeContainer ValueType = iota
	TypeUInt
	TypeInt
	TypeFloat
	TypeString
	TypeDate
	TypeBinary
)

func (t ValueType) String() string {
	switch t {
	case TypeContainer:
		return "container"
	case TypeUInt:
		return "uint"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeBinary:
		return "binary"
	default:
		return fmt.Sprintf("valuetype(%d)", int(t))
	}
}

// Element is one decoded EBML element in the parse tree (§3 "Element").
// Containers additionally populate Children; leaves populate the Value
// fields matching Type. Unknown identifiers are preserved with Name "?"
// and Type TypeBinary.
type Element struct {
	Start     int64  // absolute offset of the identifier byte
	DataStart int64  // absolute offset of the first payload byte
	Size      int64  // payload size, or -1 when unknown (0xFF size byte)
	ID        uint32 // numeric identifier
	Name      string // schema name, or "?" when unresolved
	Type      ValueType
	Level     int
	Parent    *Element
	Root      *Element // enclosing EBML header or Segment
	Skipped   bool

	Children *ContainerMap // non-nil only when Type == TypeContainer

	U    uint64
	I    int64
	F    float64
	S    string
	Date time.Time
	Bin  []byte
}

// Path returns the element's absolute schema path, e.g. "Segment/Tracks/TrackEntry".
func (e *Element) Path() string {
	if e == nil {
		return ""
	}
	if e.Parent == nil {
		return e.Name
	}
	parent := e.Parent.Path()
	if parent == "" {
		return e.Name
	}
	return parent + "/" + e.Name
}

// UUID interprets a 16-byte binary payload as an RFC-4122 UUID. It applies
// to any element carrying a raw 128-bit UID, such as SegmentUID;
// SegmentInfo.UID16 converts its own copied UID with uuid.FromBytes.
func (e *Element) UUID() (uuid.UUID, error) {
	if e == nil || len(e.Bin) < 16 {
		return uuid.UUID{}, fmt.Errorf("element %s: not a 16-byte UID", e.Path())
	}
	return uuid.FromBytes(e.Bin[:16])
}

// ContainerMap is the ordered name → (element | []element) mapping backing
// a container element (§3 "Parse tree"). Ordering of distinct names is
// insertion order; ordering within a multi-valued name is file order.
type ContainerMap struct {
	order   []string
	single  map[string]*Element
	multi   map[string][]*Element
	isMulti map[string]bool
}

func newContainerMap() *ContainerMap {
	return &ContainerMap{
		single:  make(map[string]*Element),
		multi:   make(map[string][]*Element),
		isMulti: make(map[string]bool),
	}
}

// put attaches child under name, promoting to a sequence when multiple is
// true or when a second occurrence of a non-multiple name appears (§4.C
// step 5). It reports whether a diagnostic-worthy promotion occurred.
func (c *ContainerMap) put(name string, child *Element, multiple bool) (promoted bool) {
	if _, seen := c.single[name]; !seen && !c.isMulti[name] {
		c.order = append(c.order, name)
	}
	if multiple || c.isMulti[name] {
		c.isMulti[name] = true
		c.multi[name] = append(c.multi[name], child)
		return false
	}
	if existing, ok := c.single[name]; ok && existing != nil {
		c.isMulti[name] = true
		c.multi[name] = []*Element{existing, child}
		delete(c.single, name)
		return true
	}
	c.single[name] = child
	return false
}

// Get returns the single child stored under name, if any.
func (c *ContainerMap) Get(name string) (*Element, bool) {
	if c == nil {
		return nil, false
	}
	if e, ok := c.single[name]; ok {
		return e, true
	}
	if es, ok := c.multi[name]; ok && len(es) > 0 {
		return es[0], true
	}
	return nil, false
}

// GetAll returns every child stored under name, in file order.
func (c *ContainerMap) GetAll(name string) []*Element {
	if c == nil {
		return nil
	}
	if es, ok := c.multi[name]; ok {
		return es
	}
	if e, ok := c.single[name]; ok {
		return []*Element{e}
	}
	return nil
}

// Names returns the distinct child names in insertion order.
func (c *ContainerMap) Names() []string {
	if c == nil {
		return nil
	}
	return c.order
}

// IsMultiple reports whether name was promoted to (or declared as) a sequence.
func (c *ContainerMap) IsMultiple(name string) bool {
	if c == nil {
		return false
	}
	return c.isMulti[name]
}

// --- Legacy convenience surface -------------------------------------------
//
// The teacher repo's Demuxer/MatroskaParser façade returns typed structs
// rather than a raw element tree. That surface is kept (see matroska.go) so
// existing callers of the pure-Go bindings keep working; it is populated by
// walking the schema-driven tree built by Parse.

// SegmentInfo mirrors the Segment/Info element.
type SegmentInfo struct {
	UID            [16]byte
	Filename       string
	PrevUID        [16]byte
	PrevFilename   string
	NextUID        [16]byte
	NextFilename   string
	TimecodeScale  uint64
	Duration       uint64 // in ns (raw ticks scaled by TimecodeScale)
	DateUTC        int64
	DateUTCValid   bool
	Title          string
	MuxingApp      string
	WritingApp     string
}

// UID16 renders SegmentInfo.UID as an RFC-4122 UUID (§4.J).
func (s *SegmentInfo) UID16() (uuid.UUID, error) { return uuid.FromBytes(s.UID[:]) }

// Colour mirrors the Video/Colour element.
type Colour struct {
	MatrixCoefficients      uint32
	BitsPerChannel          uint32
	ChromaSubsamplingHorz   uint32
	ChromaSubsamplingVert   uint32
	CbSubsamplingHorz       uint32
	CbSubsamplingVert       uint32
	ChromaSitingHorz        uint32
	ChromaSitingVert        uint32
	Range                   uint32
	TransferCharacteristics uint32
	Primaries               uint32
	MaxCLL                  uint32
	MaxFALL                 uint32
	MasteringMetadata       MasteringMetadata
}

// MasteringMetadata mirrors Video/Colour/MasteringMetadata.
type MasteringMetadata struct {
	PrimaryRChromaticityX   float32
	PrimaryRChromaticityY   float32
	PrimaryGChromaticityX   float32
	PrimaryGChromaticityY   float32
	PrimaryBChromaticityX   float32
	PrimaryBChromaticityY   float32
	WhitePointChromaticityX float32
	WhitePointChromaticityY float32
	LuminanceMax            float32
	LuminanceMin            float32
}

// VideoInfo mirrors TrackEntry/Video.
type VideoInfo struct {
	Interlaced      bool
	StereoMode      uint8
	PixelWidth      uint32
	PixelHeight     uint32
	DisplayWidth    uint32
	DisplayHeight   uint32
	DisplayUnit     uint8
	AspectRatioType uint8
	CropL, CropT, CropR, CropB uint32
	ColourSpace     uint32
	GammaValue      float64
	Colour          Colour
	FPS             float64 // derived by value cooking, §4.E
}

// AudioInfo mirrors TrackEntry/Audio.
type AudioInfo struct {
	SamplingFreq       float64
	OutputSamplingFreq float64
	Channels           uint8
	BitDepth           uint8
}

// TrackType symbolically labels TrackEntry/TrackType (§4.B trackTypes map).
type TrackType string

const (
	TrackVideo    TrackType = "Video"
	TrackAudio    TrackType = "Audio"
	TrackLogo     TrackType = "Logo"
	TrackSubtitle TrackType = "Subtitle"
	TrackButtons  TrackType = "Buttons"
	TrackControl  TrackType = "Control"
	TrackUnknown  TrackType = "?"
)

// TrackInfo mirrors a single Tracks/TrackEntry.
type TrackInfo struct {
	Number             uint8
	UID                uint64
	Type               uint8
	TypeName           TrackType
	Name               string
	Language           string
	Enabled            bool
	Default            bool
	Forced             bool
	Lacing             bool
	MinCache           uint64
	MaxCache           uint64
	DefaultDuration    uint64 // ns/frame, raw
	DefaultFPS         float64
	CodecDelay         uint64
	SeekPreRoll        uint64
	TimecodeScale      float64
	MaxBlockAdditionID uint32
	CodecID            string
	CodecPrivate       []byte
	CompEnabled        bool
	CompMethod         uint32
	CompMethodPrivate  []byte
	Video              VideoInfo
	Audio              AudioInfo
}

// Chapter mirrors a single Chapters/EditionEntry/ChapterAtom.
type Chapter struct {
	UID       uint64
	TimeStart time.Duration
	TimeEnd   time.Duration
	Title     string
	Children  []*Chapter
}

// Tag mirrors a single SimpleTag of a Tags/Tag, carrying that Tag's
// TagTrackUID target.
type Tag struct {
	TargetTrackUID uint64
	Name           string
	Value          string
	Language       string
}

// Cue mirrors a single Cues/CuePoint/CueTrackPositions.
type Cue struct {
	Time     time.Duration
	Track    uint64
	Position uint64
}

// Attachment mirrors a single Attachments/AttachedFile.
type Attachment struct {
	UID         uint64
	Filename    string
	Description string
	MimeType    string
	Position    int64
	Size        int64 // declared size, may exceed len(Data) under BinarySizeLimit
	Data        []byte
}

// Packet is a single decoded media frame, produced by the legacy
// ReadPacket-style façade over Cluster/SimpleBlock and BlockGroup/Block.
type Packet struct {
	Track     uint8
	StartTime uint64
	EndTime   uint64
	FilePos   uint64
	Data      []byte
	Flags     uint32
}

// Flags bits for Packet.Flags, matching the well-known MatroskaParser.h
// convention this façade is compatible with.
const (
	KF          uint32 = 0x80
	Discardable uint32 = 0x100

	SeekToPrevKeyFrame       uint32 = 1
	SeekToPrevKeyFrameStrict uint32 = 2
)
