package matroska

import (
	"fmt"
	"io"
)

// readVINTAt reads a single VINT from src at offset without knowing its
// width in advance: it reads up to 8 bytes (the maximum VINT width) and
// lets decodeVINT figure out how many it actually needed.
func readVINTAt(src Source, offset int64, keepMarker bool) (value uint64, width int, err error) {
	var buf [8]byte
	n, rerr := src.ReadAt(buf[:], offset)
	if n == 0 {
		if rerr != nil {
			return 0, 0, rerr
		}
		return 0, 0, io.ErrUnexpectedEOF
	}
	value, width, err = decodeVINT(buf[:n], keepMarker)
	if err != nil {
		return 0, 0, err
	}
	return value, width, nil
}

// isUnknownSize reports whether a size VINT's payload is all 1-bits, the
// "unknown size" marker (§4.A).
func isUnknownSize(sizeVal uint64, width int) bool {
	payloadBits := uint(width) * 7
	if payloadBits >= 64 {
		return sizeVal == ^uint64(0)
	}
	return sizeVal == (uint64(1)<<payloadBits)-1
}

// elementHeader is the identifier + size pair read from a fixed offset,
// before any payload decoding happens.
type elementHeader struct {
	id         uint32
	dataStart  int64
	size       int64 // -1 when unknown
	headerSize int64 // idWidth + sizeWidth, i.e. dataStart - start
}

// readHeader reads just the identifier and size VINTs at pos (§4.C steps
// 1-2). It never looks at the schema; callers resolve identifiers
// afterwards since resolution needs the parent element for path context.
func readHeader(src Source, pos int64) (*elementHeader, error) {
	id, idWidth, err := readVINTAt(src, pos, true)
	if err != nil {
		return nil, err
	}
	if id == 0 || id == 0xFF {
		return nil, &FormatError{Offset: pos, Expected: "element identifier", Actual: fmt.Sprintf("reserved 0x%X", id)}
	}
	sizePos := pos + int64(idWidth)
	sizeVal, sizeWidth, err := readVINTAt(src, sizePos, false)
	if err != nil {
		return nil, fmt.Errorf("reading size at offset %d: %w", sizePos, err)
	}
	dataStart := sizePos + int64(sizeWidth)
	size := int64(-1)
	if !isUnknownSize(sizeVal, sizeWidth) {
		size = int64(sizeVal)
	}
	return &elementHeader{
		id:         uint32(id),
		dataStart:  dataStart,
		size:       size,
		headerSize: dataStart - pos,
	}, nil
}

// newElement builds the Element shell for hdr under parent, resolving its
// schema entry (§4.C step 1) and, for leaves, decoding the typed payload
// (§4.A). Containers get an empty Children map; the traversal engine fills
// it in by recursing.
func newElement(ctx *ParseContext, parent, root *Element, hdr *elementHeader) (*Element, error) {
	se := defaultSchema.resolve(hdr.id, parent)

	e := &Element{
		Start:     hdr.dataStart - hdr.headerSize,
		DataStart: hdr.dataStart,
		Size:      hdr.size,
		ID:        hdr.id,
		Parent:    parent,
		Root:      root,
	}
	if parent != nil {
		e.Level = parent.Level + 1
	}

	if se == nil {
		e.Name = "?"
		e.Type = TypeBinary
		if hdr.size >= 0 {
			if err := readBinaryPayload(ctx, e, int(ctx.Opts.binarySizeLimit())); err != nil {
				return nil, err
			}
		}
		return e, nil
	}

	e.Name = se.name
	e.Type = se.typ

	if se.typ == TypeContainer {
		e.Children = newContainerMap()
		return e, nil
	}

	if hdr.size < 0 {
		return nil, &FormatError{Offset: e.Start, Expected: "sized leaf payload", Actual: "unknown size on non-container"}
	}
	if se.fixedSize != 0 && int64(se.fixedSize) != hdr.size {
		fields := withElement(e)
		fields["expected"] = se.fixedSize
		fields["actual"] = hdr.size
		ctx.warn("schema mismatch: unexpected payload width", fields)
	}
	if err := decodeLeaf(ctx, e, se); err != nil {
		return nil, err
	}
	return e, nil
}

// decodeLeaf reads and decodes a non-container element's payload in place,
// applying schema defaults for an empty payload (§4.A "Empty payload").
func decodeLeaf(ctx *ParseContext, e *Element, se *schemaEntry) error {
	if e.Size == 0 {
		applyDefault(e, se)
		return nil
	}

	switch e.Type {
	case TypeUInt:
		data, err := readFull(ctx.Source, e.DataStart, int(e.Size))
		if err != nil {
			return err
		}
		if len(data) > 8 {
			ctx.warn("uint payload wider than 8 bytes, truncating", withElement(e))
			data = data[len(data)-8:]
		}
		e.U = decodeUint(data)
	case TypeInt:
		data, err := readFull(ctx.Source, e.DataStart, int(e.Size))
		if err != nil {
			return err
		}
		if len(data) > 8 {
			data = data[len(data)-8:]
		}
		e.I = decodeInt(data)
	case TypeFloat:
		data, err := readFull(ctx.Source, e.DataStart, int(e.Size))
		if err != nil {
			return err
		}
		f, ferr := decodeFloat(data)
		if ferr != nil {
			fields := withElement(e)
			fields["err"] = ferr.Error()
			ctx.warn("unexpected float width, using zero", fields)
			f = 0
		}
		e.F = f
	case TypeString:
		data, err := readFull(ctx.Source, e.DataStart, int(e.Size))
		if err != nil {
			return err
		}
		e.S = string(data)
	case TypeDate:
		data, err := readFull(ctx.Source, e.DataStart, int(e.Size))
		if err != nil {
			return err
		}
		t, derr := decodeDate(data)
		if derr != nil {
			ctx.warn("DATE width != 8, using epoch", withElement(e))
		}
		e.Date = t
	case TypeBinary:
		return readBinaryPayload(ctx, e, int(ctx.Opts.binarySizeLimit()))
	}
	return nil
}

// readBinaryPayload applies BinarySizeLimit (§4.A): the declared size is
// always preserved in e.Size, but e.Bin may be truncated, except for
// SeekID which is always read in full regardless of the caller's limit.
func readBinaryPayload(ctx *ParseContext, e *Element, limit int) error {
	n := int(e.Size)
	if e.Name != "SeekID" && limit >= 0 && n > limit {
		n = limit
	}
	if n <= 0 {
		return nil
	}
	data, err := readFull(ctx.Source, e.DataStart, n)
	if err != nil {
		return err
	}
	e.Bin = data
	return nil
}

func readFull(src Source, offset int64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := src.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", n, offset, err)
	}
	return buf, nil
}

// applyDefault fills an empty-payload leaf with its schema default
// (§4.A "Empty payload") or the type-appropriate zero value.
func applyDefault(e *Element, se *schemaEntry) {
	switch e.Type {
	case TypeUInt:
		e.U = defaultUint[se.id]
	case TypeString:
		e.S = defaultString[se.id]
	}
}
