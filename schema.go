package matroska

// schema.go is the static description of every known element (§4.B): its
// identifier, name, payload type, default, multiplicity, global-vs-local
// scope, recursive-nesting flag, and where in the tree it may appear. It
// ships a representative subset of the official Matroska DTD covering
// every branch this parser materializes (EBML header, SeekHead, Info,
// Tracks, Cluster/Block family, Cues, Chapters, Tags, Attachments) rather
// than the full ~300-entry registry; see DESIGN.md for the scope decision.

// schemaEntry is one DTD row. parent is the full schema path of the
// element's enclosing container ("" for the two root-level kinds, EBML
// and Segment).
type schemaEntry struct {
	id        uint32
	name      string
	typ       ValueType
	parent    string
	multiple  bool
	global    bool
	recursive bool
	fixedSize int // 0 = variable-length payload
}

// defaultUint/defaultString carry §3's "default?" schema field for the
// handful of elements value cooking or the legacy façade care about.
var defaultUint = map[uint32]uint64{
	IDTimecodeScale: 1000000,
	IDFlagEnabled:   1,
	IDFlagDefault:   1,
	IDFlagLacing:    1,
}

var defaultString = map[uint32]string{
	IDLanguage: "eng",
}

// Element identifiers. Names mirror the spec's own vocabulary (e.g.
// "Timecode" for Cluster's 0xE7, per §GLOSSARY) rather than the newer
// Matroska spec's "Timestamp" rename.
const (
	// EBML header
	IDEBMLHeader             = 0x1A45DFA3
	IDEBMLVersion            = 0x4286
	IDEBMLReadVersion        = 0x42F7
	IDEBMLMaxIDLength        = 0x42F2
	IDEBMLMaxSizeLength      = 0x42F3
	IDEBMLDocType            = 0x4282
	IDEBMLDocTypeVersion     = 0x4287
	IDEBMLDocTypeReadVersion = 0x4285

	// Segment and its level-1 children
	IDSegment     = 0x18538067
	IDSeekHead    = 0x114D9B74
	IDInfo        = 0x1549A966
	IDTracks      = 0x1654AE6B
	IDCues        = 0x1C53BB6B
	IDChapters    = 0x1043A770
	IDAttachments = 0x1941A469
	IDTags        = 0x1254C367
	IDCluster     = 0x1F43B675

	// Global elements
	IDCRC32         = 0xBF
	IDVoid          = 0xEC
	IDSignatureSlot = 0x1B538667

	// SeekHead
	IDSeek         = 0x4DBB
	IDSeekID       = 0x53AB
	IDSeekPosition = 0x53AC

	// Info
	IDSegmentUID      = 0x73A4
	IDSegmentFilename = 0x7384
	IDPrevUID         = 0x3CB923
	IDPrevFilename    = 0x3C83AB
	IDNextUID         = 0x3EB923
	IDNextFilename    = 0x3E83BB
	IDSegmentFamily   = 0x4444
	IDTimecodeScale   = 0x2AD7B1
	IDDuration        = 0x4489
	IDDateUTC         = 0x4461
	IDTitle           = 0x7BA9
	IDMuxingApp       = 0x4D80
	IDWritingApp      = 0x5741

	// Tracks
	IDTrackEntry                = 0xAE
	IDTrackNumber                = 0xD7
	IDTrackUID                  = 0x73C5
	IDTrackType                 = 0x83
	IDFlagEnabled               = 0xB9
	IDFlagDefault               = 0x88
	IDFlagForced                = 0x55AA
	IDFlagLacing                = 0x9C
	IDMinCache                  = 0x6DE7
	IDMaxCache                  = 0x6DF8
	IDDefaultDuration           = 0x23E383
	IDDefaultDecodedFieldDuration = 0x234E7A
	IDTrackTimecodeScale        = 0x23314F
	IDMaxBlockAdditionID        = 0x55EE
	IDName                      = 0x536E
	IDLanguage                  = 0x22B59C
	IDCodecID                   = 0x86
	IDCodecPrivate              = 0x63A2
	IDCodecName                 = 0x258688
	IDCodecDelay                = 0x56AA
	IDSeekPreRoll               = 0x56BB
	IDVideo                     = 0xE0
	IDAudio                     = 0xE1
	IDContentEncodings          = 0x6D80

	// Video
	IDFlagInterlaced   = 0x9A
	IDStereoMode       = 0x53B8
	IDPixelWidth       = 0xB0
	IDPixelHeight      = 0xBA
	IDDisplayWidth     = 0x54B0
	IDDisplayHeight    = 0x54BA
	IDDisplayUnit      = 0x54B2
	IDAspectRatioType  = 0x54B3
	IDPixelCropBottom  = 0x54AA
	IDPixelCropTop     = 0x54BB
	IDPixelCropLeft    = 0x54CC
	IDPixelCropRight   = 0x54DD
	IDColourSpace      = 0x2EB524
	IDGammaValue       = 0x2FB523
	IDColour           = 0x55B0

	IDMatrixCoefficients      = 0x55B1
	IDBitsPerChannel          = 0x55B2
	IDChromaSubsamplingHorz   = 0x55B3
	IDChromaSubsamplingVert   = 0x55B4
	IDCbSubsamplingHorz       = 0x55B5
	IDCbSubsamplingVert       = 0x55B6
	IDChromaSitingHorz        = 0x55B7
	IDChromaSitingVert        = 0x55B8
	IDRange                   = 0x55B9
	IDTransferCharacteristics = 0x55BA
	IDPrimaries               = 0x55BB
	IDMaxCLL                  = 0x55BC
	IDMaxFALL                 = 0x55BD
	IDMasteringMetadata       = 0x55D0

	IDPrimaryRChromaticityX   = 0x55D1
	IDPrimaryRChromaticityY   = 0x55D2
	IDPrimaryGChromaticityX   = 0x55D3
	IDPrimaryGChromaticityY   = 0x55D4
	IDPrimaryBChromaticityX   = 0x55D5
	IDPrimaryBChromaticityY   = 0x55D6
	IDWhitePointChromaticityX = 0x55D7
	IDWhitePointChromaticityY = 0x55D8
	IDLuminanceMax            = 0x55D9
	IDLuminanceMin            = 0x55DA

	// Audio
	IDSamplingFrequency       = 0xB5
	IDOutputSamplingFrequency = 0x78B5
	IDChannels                = 0x9F
	IDBitDepth                = 0x6264

	// ContentEncodings
	IDContentEncoding       = 0x6240
	IDContentEncodingOrder  = 0x5031
	IDContentEncodingScope  = 0x5032
	IDContentEncodingType   = 0x5033
	IDContentCompression    = 0x5034
	IDContentCompAlgo       = 0x4254
	IDContentCompSettings   = 0x4255

	// Cluster
	IDTimecode    = 0xE7
	IDSimpleBlock = 0xA3
	IDBlockGroup  = 0xA0
	IDPosition    = 0xA7
	IDPrevSize    = 0xAB
	IDBlock       = 0xA1
	IDBlockDuration = 0x9B
	IDReferenceBlock = 0xFB
	IDCodecState  = 0xA4

	// Cues
	IDCuePoint           = 0xBB
	IDCueTime            = 0xB3
	IDCueTrackPositions  = 0xB7
	IDCueTrack           = 0xF7
	IDCueClusterPosition = 0xF1
	IDCueDuration        = 0xB2
	IDCueBlockNumber     = 0x5378

	// Chapters
	IDEditionEntry     = 0x45B9
	IDChapterAtom      = 0xB6
	IDChapterUID       = 0x73C4
	IDChapterTimeStart = 0x91
	IDChapterTimeEnd   = 0x92
	IDChapterDisplay   = 0x80
	IDChapString       = 0x85
	IDChapLanguage     = 0x437C

	// Tags
	IDTag            = 0x7373
	IDTargets        = 0x63C0
	IDTargetTypeValue = 0x68CA
	IDTagTrackUID    = 0x63C5
	IDSimpleTag      = 0x67C8
	IDTagName        = 0x45A3
	IDTagLanguage    = 0x447A
	IDTagString      = 0x4487
	IDTagDefault     = 0x4484

	// Attachments
	IDAttachedFile    = 0x61A7
	IDFileDescription = 0x467E
	IDFileName        = 0x466E
	IDFileMimeType    = 0x4660
	IDFileData        = 0x465C
	IDFileUID         = 0x46AE
)

// trackTypes maps TrackEntry/TrackType's numeric value to its symbolic
// label (§4.B).
var trackTypes = map[uint8]TrackType{
	1:    TrackVideo,
	2:    TrackAudio,
	0x10: TrackLogo,
	0x11: TrackSubtitle,
	0x12: TrackButtons,
	0x20: TrackControl,
}

func trackTypeName(v uint8) TrackType {
	if n, ok := trackTypes[v]; ok {
		return n
	}
	return TrackUnknown
}

var dtd = []schemaEntry{
	{id: IDEBMLHeader, name: "EBML", typ: TypeContainer, parent: ""},
	{id: IDEBMLVersion, name: "EBMLVersion", typ: TypeUInt, parent: "EBML"},
	{id: IDEBMLReadVersion, name: "EBMLReadVersion", typ: TypeUInt, parent: "EBML"},
	{id: IDEBMLMaxIDLength, name: "EBMLMaxIDLength", typ: TypeUInt, parent: "EBML"},
	{id: IDEBMLMaxSizeLength, name: "EBMLMaxSizeLength", typ: TypeUInt, parent: "EBML"},
	{id: IDEBMLDocType, name: "DocType", typ: TypeString, parent: "EBML"},
	{id: IDEBMLDocTypeVersion, name: "DocTypeVersion", typ: TypeUInt, parent: "EBML"},
	{id: IDEBMLDocTypeReadVersion, name: "DocTypeReadVersion", typ: TypeUInt, parent: "EBML"},

	{id: IDSegment, name: "Segment", typ: TypeContainer, parent: "", multiple: true},

	{id: IDSeekHead, name: "SeekHead", typ: TypeContainer, parent: "Segment", multiple: true},
	{id: IDInfo, name: "Info", typ: TypeContainer, parent: "Segment"},
	{id: IDTracks, name: "Tracks", typ: TypeContainer, parent: "Segment"},
	{id: IDCues, name: "Cues", typ: TypeContainer, parent: "Segment"},
	{id: IDChapters, name: "Chapters", typ: TypeContainer, parent: "Segment"},
	{id: IDAttachments, name: "Attachments", typ: TypeContainer, parent: "Segment"},
	{id: IDTags, name: "Tags", typ: TypeContainer, parent: "Segment", multiple: true},
	{id: IDCluster, name: "Cluster", typ: TypeContainer, parent: "Segment", multiple: true},

	{id: IDCRC32, name: "CRC-32", typ: TypeBinary, global: true},
	{id: IDVoid, name: "Void", typ: TypeBinary, global: true},
	{id: IDSignatureSlot, name: "SignatureSlot", typ: TypeContainer, global: true},

	{id: IDSeek, name: "Seek", typ: TypeContainer, parent: "Segment/SeekHead", multiple: true},
	{id: IDSeekID, name: "SeekID", typ: TypeBinary, parent: "Segment/SeekHead/Seek"},
	{id: IDSeekPosition, name: "SeekPosition", typ: TypeUInt, parent: "Segment/SeekHead/Seek"},

	{id: IDSegmentUID, name: "SegmentUID", typ: TypeBinary, parent: "Segment/Info"},
	{id: IDSegmentFilename, name: "SegmentFilename", typ: TypeString, parent: "Segment/Info"},
	{id: IDPrevUID, name: "PrevUID", typ: TypeBinary, parent: "Segment/Info"},
	{id: IDPrevFilename, name: "PrevFilename", typ: TypeString, parent: "Segment/Info"},
	{id: IDNextUID, name: "NextUID", typ: TypeBinary, parent: "Segment/Info"},
	{id: IDNextFilename, name: "NextFilename", typ: TypeString, parent: "Segment/Info"},
	{id: IDSegmentFamily, name: "SegmentFamily", typ: TypeBinary, parent: "Segment/Info", multiple: true},
	{id: IDTimecodeScale, name: "TimecodeScale", typ: TypeUInt, parent: "Segment/Info"},
	{id: IDDuration, name: "Duration", typ: TypeFloat, parent: "Segment/Info"},
	{id: IDDateUTC, name: "DateUTC", typ: TypeDate, parent: "Segment/Info", fixedSize: 8},
	{id: IDTitle, name: "Title", typ: TypeString, parent: "Segment/Info"},
	{id: IDMuxingApp, name: "MuxingApp", typ: TypeString, parent: "Segment/Info"},
	{id: IDWritingApp, name: "WritingApp", typ: TypeString, parent: "Segment/Info"},

	{id: IDTrackEntry, name: "TrackEntry", typ: TypeContainer, parent: "Segment/Tracks", multiple: true},
	{id: IDTrackNumber, name: "TrackNumber", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDTrackUID, name: "TrackUID", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDTrackType, name: "TrackType", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDFlagEnabled, name: "FlagEnabled", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDFlagDefault, name: "FlagDefault", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDFlagForced, name: "FlagForced", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDFlagLacing, name: "FlagLacing", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDMinCache, name: "MinCache", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDMaxCache, name: "MaxCache", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDDefaultDuration, name: "DefaultDuration", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDDefaultDecodedFieldDuration, name: "DefaultDecodedFieldDuration", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDTrackTimecodeScale, name: "TrackTimecodeScale", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry"},
	{id: IDMaxBlockAdditionID, name: "MaxBlockAdditionID", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDName, name: "Name", typ: TypeString, parent: "Segment/Tracks/TrackEntry"},
	{id: IDLanguage, name: "Language", typ: TypeString, parent: "Segment/Tracks/TrackEntry"},
	{id: IDCodecID, name: "CodecID", typ: TypeString, parent: "Segment/Tracks/TrackEntry"},
	{id: IDCodecPrivate, name: "CodecPrivate", typ: TypeBinary, parent: "Segment/Tracks/TrackEntry"},
	{id: IDCodecName, name: "CodecName", typ: TypeString, parent: "Segment/Tracks/TrackEntry"},
	{id: IDCodecDelay, name: "CodecDelay", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDSeekPreRoll, name: "SeekPreRoll", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry"},
	{id: IDVideo, name: "Video", typ: TypeContainer, parent: "Segment/Tracks/TrackEntry"},
	{id: IDAudio, name: "Audio", typ: TypeContainer, parent: "Segment/Tracks/TrackEntry"},
	{id: IDContentEncodings, name: "ContentEncodings", typ: TypeContainer, parent: "Segment/Tracks/TrackEntry"},

	{id: IDFlagInterlaced, name: "FlagInterlaced", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDStereoMode, name: "StereoMode", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDPixelWidth, name: "PixelWidth", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDPixelHeight, name: "PixelHeight", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDDisplayWidth, name: "DisplayWidth", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDDisplayHeight, name: "DisplayHeight", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDDisplayUnit, name: "DisplayUnit", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDAspectRatioType, name: "AspectRatioType", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDPixelCropBottom, name: "PixelCropBottom", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDPixelCropTop, name: "PixelCropTop", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDPixelCropLeft, name: "PixelCropLeft", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDPixelCropRight, name: "PixelCropRight", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDColourSpace, name: "ColourSpace", typ: TypeBinary, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDGammaValue, name: "GammaValue", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video"},
	{id: IDColour, name: "Colour", typ: TypeContainer, parent: "Segment/Tracks/TrackEntry/Video"},

	{id: IDMatrixCoefficients, name: "MatrixCoefficients", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDBitsPerChannel, name: "BitsPerChannel", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDChromaSubsamplingHorz, name: "ChromaSubsamplingHorz", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDChromaSubsamplingVert, name: "ChromaSubsamplingVert", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDCbSubsamplingHorz, name: "CbSubsamplingHorz", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDCbSubsamplingVert, name: "CbSubsamplingVert", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDChromaSitingHorz, name: "ChromaSitingHorz", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDChromaSitingVert, name: "ChromaSitingVert", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDRange, name: "Range", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDTransferCharacteristics, name: "TransferCharacteristics", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDPrimaries, name: "Primaries", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDMaxCLL, name: "MaxCLL", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDMaxFALL, name: "MaxFALL", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Video/Colour"},
	{id: IDMasteringMetadata, name: "MasteringMetadata", typ: TypeContainer, parent: "Segment/Tracks/TrackEntry/Video/Colour"},

	{id: IDPrimaryRChromaticityX, name: "PrimaryRChromaticityX", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video/Colour/MasteringMetadata"},
	{id: IDPrimaryRChromaticityY, name: "PrimaryRChromaticityY", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video/Colour/MasteringMetadata"},
	{id: IDPrimaryGChromaticityX, name: "PrimaryGChromaticityX", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video/Colour/MasteringMetadata"},
	{id: IDPrimaryGChromaticityY, name: "PrimaryGChromaticityY", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video/Colour/MasteringMetadata"},
	{id: IDPrimaryBChromaticityX, name: "PrimaryBChromaticityX", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video/Colour/MasteringMetadata"},
	{id: IDPrimaryBChromaticityY, name: "PrimaryBChromaticityY", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video/Colour/MasteringMetadata"},
	{id: IDWhitePointChromaticityX, name: "WhitePointChromaticityX", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video/Colour/MasteringMetadata"},
	{id: IDWhitePointChromaticityY, name: "WhitePointChromaticityY", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video/Colour/MasteringMetadata"},
	{id: IDLuminanceMax, name: "LuminanceMax", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video/Colour/MasteringMetadata"},
	{id: IDLuminanceMin, name: "LuminanceMin", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Video/Colour/MasteringMetadata"},

	{id: IDSamplingFrequency, name: "SamplingFrequency", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Audio"},
	{id: IDOutputSamplingFrequency, name: "OutputSamplingFrequency", typ: TypeFloat, parent: "Segment/Tracks/TrackEntry/Audio"},
	{id: IDChannels, name: "Channels", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Audio"},
	{id: IDBitDepth, name: "BitDepth", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/Audio"},

	{id: IDContentEncoding, name: "ContentEncoding", typ: TypeContainer, parent: "Segment/Tracks/TrackEntry/ContentEncodings", multiple: true},
	{id: IDContentEncodingOrder, name: "ContentEncodingOrder", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/ContentEncodings/ContentEncoding"},
	{id: IDContentEncodingScope, name: "ContentEncodingScope", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/ContentEncodings/ContentEncoding"},
	{id: IDContentEncodingType, name: "ContentEncodingType", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/ContentEncodings/ContentEncoding"},
	{id: IDContentCompression, name: "ContentCompression", typ: TypeContainer, parent: "Segment/Tracks/TrackEntry/ContentEncodings/ContentEncoding"},
	{id: IDContentCompAlgo, name: "ContentCompAlgo", typ: TypeUInt, parent: "Segment/Tracks/TrackEntry/ContentEncodings/ContentEncoding/ContentCompression"},
	{id: IDContentCompSettings, name: "ContentCompSettings", typ: TypeBinary, parent: "Segment/Tracks/TrackEntry/ContentEncodings/ContentEncoding/ContentCompression"},

	{id: IDTimecode, name: "Timecode", typ: TypeUInt, parent: "Segment/Cluster"},
	{id: IDSimpleBlock, name: "SimpleBlock", typ: TypeBinary, parent: "Segment/Cluster", multiple: true},
	{id: IDBlockGroup, name: "BlockGroup", typ: TypeContainer, parent: "Segment/Cluster", multiple: true},
	{id: IDPosition, name: "Position", typ: TypeUInt, parent: "Segment/Cluster"},
	{id: IDPrevSize, name: "PrevSize", typ: TypeUInt, parent: "Segment/Cluster"},
	{id: IDBlock, name: "Block", typ: TypeBinary, parent: "Segment/Cluster/BlockGroup"},
	{id: IDBlockDuration, name: "BlockDuration", typ: TypeUInt, parent: "Segment/Cluster/BlockGroup"},
	{id: IDReferenceBlock, name: "ReferenceBlock", typ: TypeInt, parent: "Segment/Cluster/BlockGroup", multiple: true},
	{id: IDCodecState, name: "CodecState", typ: TypeBinary, parent: "Segment/Cluster/BlockGroup"},

	{id: IDCuePoint, name: "CuePoint", typ: TypeContainer, parent: "Segment/Cues", multiple: true},
	{id: IDCueTime, name: "CueTime", typ: TypeUInt, parent: "Segment/Cues/CuePoint"},
	{id: IDCueTrackPositions, name: "CueTrackPositions", typ: TypeContainer, parent: "Segment/Cues/CuePoint", multiple: true},
	{id: IDCueTrack, name: "CueTrack", typ: TypeUInt, parent: "Segment/Cues/CuePoint/CueTrackPositions"},
	{id: IDCueClusterPosition, name: "CueClusterPosition", typ: TypeUInt, parent: "Segment/Cues/CuePoint/CueTrackPositions"},
	{id: IDCueDuration, name: "CueDuration", typ: TypeUInt, parent: "Segment/Cues/CuePoint/CueTrackPositions"},
	{id: IDCueBlockNumber, name: "CueBlockNumber", typ: TypeUInt, parent: "Segment/Cues/CuePoint/CueTrackPositions"},

	{id: IDEditionEntry, name: "EditionEntry", typ: TypeContainer, parent: "Segment/Chapters", multiple: true},
	{id: IDChapterAtom, name: "ChapterAtom", typ: TypeContainer, parent: "Segment/Chapters/EditionEntry", multiple: true, recursive: true},
	{id: IDChapterUID, name: "ChapterUID", typ: TypeUInt, parent: "Segment/Chapters/EditionEntry/ChapterAtom"},
	{id: IDChapterTimeStart, name: "ChapterTimeStart", typ: TypeUInt, parent: "Segment/Chapters/EditionEntry/ChapterAtom"},
	{id: IDChapterTimeEnd, name: "ChapterTimeEnd", typ: TypeUInt, parent: "Segment/Chapters/EditionEntry/ChapterAtom"},
	{id: IDChapterDisplay, name: "ChapterDisplay", typ: TypeContainer, parent: "Segment/Chapters/EditionEntry/ChapterAtom", multiple: true},
	{id: IDChapString, name: "ChapString", typ: TypeString, parent: "Segment/Chapters/EditionEntry/ChapterAtom/ChapterDisplay"},
	{id: IDChapLanguage, name: "ChapLanguage", typ: TypeString, parent: "Segment/Chapters/EditionEntry/ChapterAtom/ChapterDisplay"},

	{id: IDTag, name: "Tag", typ: TypeContainer, parent: "Segment/Tags", multiple: true},
	{id: IDTargets, name: "Targets", typ: TypeContainer, parent: "Segment/Tags/Tag"},
	{id: IDTargetTypeValue, name: "TargetTypeValue", typ: TypeUInt, parent: "Segment/Tags/Tag/Targets"},
	{id: IDTagTrackUID, name: "TagTrackUID", typ: TypeUInt, parent: "Segment/Tags/Tag/Targets", multiple: true},
	{id: IDSimpleTag, name: "SimpleTag", typ: TypeContainer, parent: "Segment/Tags/Tag", multiple: true, recursive: true},
	{id: IDTagName, name: "TagName", typ: TypeString, parent: "Segment/Tags/Tag/SimpleTag"},
	{id: IDTagLanguage, name: "TagLanguage", typ: TypeString, parent: "Segment/Tags/Tag/SimpleTag"},
	{id: IDTagString, name: "TagString", typ: TypeString, parent: "Segment/Tags/Tag/SimpleTag"},
	{id: IDTagDefault, name: "TagDefault", typ: TypeUInt, parent: "Segment/Tags/Tag/SimpleTag"},

	{id: IDAttachedFile, name: "AttachedFile", typ: TypeContainer, parent: "Segment/Attachments", multiple: true},
	{id: IDFileDescription, name: "FileDescription", typ: TypeString, parent: "Segment/Attachments/AttachedFile"},
	{id: IDFileName, name: "FileName", typ: TypeString, parent: "Segment/Attachments/AttachedFile"},
	{id: IDFileMimeType, name: "FileMimeType", typ: TypeString, parent: "Segment/Attachments/AttachedFile"},
	{id: IDFileData, name: "FileData", typ: TypeBinary, parent: "Segment/Attachments/AttachedFile"},
	{id: IDFileUID, name: "FileUID", typ: TypeUInt, parent: "Segment/Attachments/AttachedFile"},
}

// Schema is the initialized DTD: two derived indices built once per
// process (§4.B) plus a by-ID lookup used to test an ancestor's own entry
// for the recursive flag during resolution (§4.C step 1).
type Schema struct {
	globalIDs map[uint32]*schemaEntry
	byPath    map[string]map[uint32]*schemaEntry
	byID      map[uint32]*schemaEntry
}

var defaultSchema = buildSchema()

func buildSchema() *Schema {
	s := &Schema{
		globalIDs: make(map[uint32]*schemaEntry),
		byPath:    make(map[string]map[uint32]*schemaEntry),
		byID:      make(map[uint32]*schemaEntry),
	}
	for i := range dtd {
		e := &dtd[i]
		s.byID[e.id] = e
		if e.global {
			s.globalIDs[e.id] = e
			continue
		}
		if s.byPath[e.parent] == nil {
			s.byPath[e.parent] = make(map[uint32]*schemaEntry)
		}
		s.byPath[e.parent][e.id] = e
	}
	return s
}

// resolve implements §4.C step 1's three-tier lookup: global scope, then
// the exact parent path, then an ancestor walk honoring recursive nesting.
// It returns nil when the identifier is genuinely unknown at this position.
func (s *Schema) resolve(id uint32, parent *Element) *schemaEntry {
	if e, ok := s.globalIDs[id]; ok {
		return e
	}
	parentPath := ""
	if parent != nil {
		parentPath = parent.Path()
	}
	if kids, ok := s.byPath[parentPath]; ok {
		if e, ok2 := kids[id]; ok2 {
			return e
		}
	}
	// suffix is the path from the current ancestor down to parent; below a
	// recursive ancestor it is looked up under that ancestor's canonical path.
	suffix := ""
	for anc := parent; anc != nil; anc = anc.Parent {
		if se, ok := s.byID[anc.ID]; ok && se.recursive {
			if se.id == id {
				return se
			}
			if kids, ok := s.byPath[se.parent+"/"+se.name+suffix]; ok {
				if e, ok2 := kids[id]; ok2 {
					return e
				}
			}
		}
		suffix = "/" + anc.Name + suffix
	}
	return nil
}
