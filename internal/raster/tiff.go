package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TIFF tag numbers used by the GeoTIFF reader and writer.
const (
	tagImageWidth        = 256
	tagImageLength       = 257
	tagBitsPerSample     = 258
	tagCompression       = 259
	tagPhotometric       = 262
	tagStripOffsets      = 273
	tagSamplesPerPixel   = 277
	tagRowsPerStrip      = 278
	tagStripByteCounts   = 279
	tagPlanarConfig      = 284
	tagTileOffsets       = 324
	tagSampleFormat      = 339
	tagModelPixelScale   = 33550
	tagModelTiepoint     = 33922
	tagModelTransform    = 34264
	tagGeoKeyDirectory   = 34735
	tagGeoDoubleParams   = 34736
	tagGeoASCIIParams    = 34737
	tagGDALNoData        = 42113
	sampleFormatUint     = 1
	sampleFormatInt      = 2
	sampleFormatIEEEFP   = 3
	compressionNone      = 1
	planarConfigChunky   = 1
	photometricBlackZero = 1
	photometricRGB       = 2
)

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
)

var typeSizes = map[uint16]int{
	typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4, typeRational: 8,
	typeSByte: 1, typeUndefined: 1, typeSShort: 2, typeSLong: 4,
	typeSRational: 8, typeFloat: 4, typeDouble: 8,
}

// ifdEntry is one decoded directory entry with its value bytes resolved.
type ifdEntry struct {
	typ   uint16
	count uint32
	raw   []byte
	order binary.ByteOrder
}

func (e ifdEntry) uints() []uint64 {
	out := make([]uint64, 0, e.count)
	for i := 0; i < int(e.count); i++ {
		switch e.typ {
		case typeByte, typeUndefined:
			out = append(out, uint64(e.raw[i]))
		case typeShort:
			out = append(out, uint64(e.order.Uint16(e.raw[2*i:])))
		case typeLong:
			out = append(out, uint64(e.order.Uint32(e.raw[4*i:])))
		}
	}
	return out
}

func (e ifdEntry) floats() []float64 {
	out := make([]float64, 0, e.count)
	for i := 0; i < int(e.count); i++ {
		switch e.typ {
		case typeDouble:
			out = append(out, math.Float64frombits(e.order.Uint64(e.raw[8*i:])))
		case typeFloat:
			out = append(out, float64(math.Float32frombits(e.order.Uint32(e.raw[4*i:]))))
		}
	}
	return out
}

func (e ifdEntry) ascii() string {
	return strings.TrimRight(string(e.raw), "\x00")
}

// tiffDirectory is the first IFD of a TIFF file.
type tiffDirectory struct {
	order   binary.ByteOrder
	entries map[uint16]ifdEntry
}

func (d *tiffDirectory) uint(tag uint16, def uint64) uint64 {
	e, ok := d.entries[tag]
	if !ok {
		return def
	}
	v := e.uints()
	if len(v) == 0 {
		return def
	}
	return v[0]
}

// parseDirectory reads the header and first IFD of a classic (non-Big) TIFF.
func parseDirectory(data []byte) (*tiffDirectory, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("failed to parse TIFF: file too short")
	}

	var order binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("failed to parse TIFF: bad byte order marker")
	}

	switch order.Uint16(data[2:4]) {
	case 42:
	case 43:
		return nil, fmt.Errorf("%w: BigTIFF", ErrUnsupported)
	default:
		return nil, fmt.Errorf("failed to parse TIFF: bad magic number")
	}

	off := int(order.Uint32(data[4:8]))
	if off+2 > len(data) {
		return nil, fmt.Errorf("failed to parse TIFF: IFD offset out of range")
	}
	n := int(order.Uint16(data[off:]))
	if off+2+12*n > len(data) {
		return nil, fmt.Errorf("failed to parse TIFF: IFD truncated")
	}

	dir := &tiffDirectory{order: order, entries: make(map[uint16]ifdEntry, n)}
	for i := 0; i < n; i++ {
		p := off + 2 + 12*i
		tag := order.Uint16(data[p:])
		typ := order.Uint16(data[p+2:])
		count := order.Uint32(data[p+4:])

		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		total := size * int(count)
		var raw []byte
		if total <= 4 {
			raw = data[p+8 : p+8+total]
		} else {
			vo := int(order.Uint32(data[p+8:]))
			if vo+total > len(data) {
				return nil, fmt.Errorf("failed to parse TIFF: tag %d value out of range", tag)
			}
			raw = data[vo : vo+total]
		}
		dir.entries[tag] = ifdEntry{typ: typ, count: count, raw: raw, order: order}
	}
	return dir, nil
}

// georef extracts the transform, resolution, GeoKeys and nodata value.
func (d *tiffDirectory) georef() Georef {
	var g Georef

	if e, ok := d.entries[tagModelTransform]; ok {
		m := e.floats()
		if len(m) >= 8 {
			g.Transform = Affine{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}
			g.HasTransform = true
		}
	} else {
		scale, hasScale := d.entries[tagModelPixelScale]
		tie, hasTie := d.entries[tagModelTiepoint]
		if hasScale && hasTie {
			s := scale.floats()
			tp := tie.floats()
			if len(s) >= 2 && len(tp) >= 6 {
				g.Transform = Affine{
					A: s[0],
					C: tp[3] - tp[0]*s[0],
					E: -s[1],
					F: tp[4] + tp[1]*s[1],
				}
				g.HasTransform = true
				g.ResX, g.ResY = s[0], s[1]
			}
		}
	}
	if !g.HasTransform {
		g.Transform = Identity
	}

	if e, ok := d.entries[tagGeoKeyDirectory]; ok {
		keys := &GeoKeys{}
		for _, v := range e.uints() {
			keys.Directory = append(keys.Directory, uint16(v))
		}
		if p, ok := d.entries[tagGeoDoubleParams]; ok {
			keys.Doubles = p.floats()
		}
		if p, ok := d.entries[tagGeoASCIIParams]; ok {
			keys.ASCII = p.ascii()
		}
		g.GeoKeys = keys
	}

	if e, ok := d.entries[tagGDALNoData]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(e.ascii()), 64); err == nil {
			g.NoData = &v
		}
	}
	return g
}

// rawSamples reports whether the directory should bypass golang.org/x/image/tiff:
// floats and signed integers, and uncompressed chunky stacks of more than one
// sample that are not plain RGB(A), which that decoder rejects.
func (d *tiffDirectory) rawSamples() bool {
	if d.uint(tagSampleFormat, sampleFormatUint) != sampleFormatUint {
		return true
	}
	spp := d.uint(tagSamplesPerPixel, 1)
	if spp <= 1 {
		return false
	}
	if d.uint(tagCompression, compressionNone) != compressionNone ||
		d.uint(tagPlanarConfig, planarConfigChunky) != planarConfigChunky {
		return false
	}
	return d.uint(tagPhotometric, photometricBlackZero) != photometricRGB || spp > 4
}

// decodeRawStrips decodes uncompressed, chunky, strip-organised samples and
// returns the bands with the full-scale value of unsigned samples (1 for
// signed and floating point data).
func (d *tiffDirectory) decodeRawStrips(data []byte) ([]*Grid, float64, error) {
	width := int(d.uint(tagImageWidth, 0))
	height := int(d.uint(tagImageLength, 0))
	spp := int(d.uint(tagSamplesPerPixel, 1))
	bits := int(d.uint(tagBitsPerSample, 8))
	format := d.uint(tagSampleFormat, sampleFormatUint)

	if d.uint(tagCompression, compressionNone) != compressionNone {
		return nil, 0, fmt.Errorf("%w: compressed %d-bit format %d samples (build with -tags gdal)", ErrUnsupported, bits, format)
	}
	if d.uint(tagPlanarConfig, planarConfigChunky) != planarConfigChunky {
		return nil, 0, fmt.Errorf("%w: planar-separate samples", ErrUnsupported)
	}
	if _, tiled := d.entries[tagTileOffsets]; tiled {
		return nil, 0, fmt.Errorf("%w: tiled layout", ErrUnsupported)
	}

	var sample func([]byte) float64
	maxValue := 1.0
	switch {
	case format == sampleFormatUint && bits == 8:
		sample = func(b []byte) float64 { return float64(b[0]) }
		maxValue = math.MaxUint8
	case format == sampleFormatUint && bits == 16:
		sample = func(b []byte) float64 { return float64(d.order.Uint16(b)) }
		maxValue = math.MaxUint16
	case format == sampleFormatUint && bits == 32:
		sample = func(b []byte) float64 { return float64(d.order.Uint32(b)) }
		maxValue = math.MaxUint32
	case format == sampleFormatIEEEFP && bits == 32:
		sample = func(b []byte) float64 { return float64(math.Float32frombits(d.order.Uint32(b))) }
	case format == sampleFormatIEEEFP && bits == 64:
		sample = func(b []byte) float64 { return math.Float64frombits(d.order.Uint64(b)) }
	case format == sampleFormatInt && bits == 16:
		sample = func(b []byte) float64 { return float64(int16(d.order.Uint16(b))) }
	case format == sampleFormatInt && bits == 32:
		sample = func(b []byte) float64 { return float64(int32(d.order.Uint32(b))) }
	case format == sampleFormatInt && bits == 8:
		sample = func(b []byte) float64 { return float64(int8(b[0])) }
	default:
		return nil, 0, fmt.Errorf("%w: %d-bit sample format %d", ErrUnsupported, bits, format)
	}

	offsets, ok := d.entries[tagStripOffsets]
	if !ok {
		return nil, 0, fmt.Errorf("failed to parse TIFF: missing StripOffsets")
	}
	counts, ok := d.entries[tagStripByteCounts]
	if !ok {
		return nil, 0, fmt.Errorf("failed to parse TIFF: missing StripByteCounts")
	}

	var buf bytes.Buffer
	offs, cnts := offsets.uints(), counts.uints()
	for i := range offs {
		if i >= len(cnts) || int(offs[i]+cnts[i]) > len(data) {
			return nil, 0, fmt.Errorf("failed to parse TIFF: strip %d out of range", i)
		}
		buf.Write(data[offs[i] : offs[i]+cnts[i]])
	}

	bps := bits / 8
	pixels := buf.Bytes()
	if len(pixels) < width*height*spp*bps {
		return nil, 0, fmt.Errorf("failed to parse TIFF: %d bytes of pixel data, want %d", len(pixels), width*height*spp*bps)
	}

	bands := make([]*Grid, spp)
	for b := range bands {
		bands[b] = NewGrid(width, height)
	}
	for i := 0; i < width*height; i++ {
		for b := 0; b < spp; b++ {
			p := (i*spp + b) * bps
			bands[b].Data[i] = sample(pixels[p : p+bps])
		}
	}
	return bands, maxValue, nil
}

// tiffField is one entry queued for writing.
type tiffField struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shortField(tag uint16, vals ...uint16) tiffField {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return tiffField{tag: tag, typ: typeShort, count: uint32(len(vals)), data: b}
}

func repeat(v uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func longField(tag uint16, vals ...uint32) tiffField {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return tiffField{tag: tag, typ: typeLong, count: uint32(len(vals)), data: b}
}

func doubleField(tag uint16, vals ...float64) tiffField {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return tiffField{tag: tag, typ: typeDouble, count: uint32(len(vals)), data: b}
}

func asciiField(tag uint16, s string) tiffField {
	b := append([]byte(s), 0)
	return tiffField{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

// encodeMaskTIFF lays out a little-endian, uncompressed, single-strip uint8
// GeoTIFF.
func encodeMaskTIFF(width, height int, pix []uint8, ref Georef) []byte {
	return encodeStripTIFF(width, height, 1, 8, sampleFormatUint, pix, ref)
}

// encodeStripTIFF writes header, pixel data, IFD, then out-of-line tag
// values. pix holds little-endian, pixel-interleaved samples of the given
// width and format.
func encodeStripTIFF(width, height, samples, bits int, format uint16, pix []byte, ref Georef) []byte {
	const pixOffset = 8

	fields := []tiffField{
		longField(tagImageWidth, uint32(width)),
		longField(tagImageLength, uint32(height)),
		shortField(tagBitsPerSample, repeat(uint16(bits), samples)...),
		shortField(tagCompression, compressionNone),
		shortField(tagPhotometric, photometricBlackZero),
		longField(tagStripOffsets, pixOffset),
		shortField(tagSamplesPerPixel, uint16(samples)),
		longField(tagRowsPerStrip, uint32(height)),
		longField(tagStripByteCounts, uint32(len(pix))),
		shortField(tagPlanarConfig, planarConfigChunky),
		shortField(tagSampleFormat, repeat(format, samples)...),
	}

	if ref.HasTransform {
		t := ref.Transform
		if t.IsRectilinear() {
			fields = append(fields,
				doubleField(tagModelPixelScale, t.A, -t.E, 0),
				doubleField(tagModelTiepoint, 0, 0, 0, t.C, t.F, 0),
			)
		} else {
			fields = append(fields, doubleField(tagModelTransform,
				t.A, t.B, 0, t.C,
				t.D, t.E, 0, t.F,
				0, 0, 0, 0,
				0, 0, 0, 1,
			))
		}
	}
	if k := ref.GeoKeys; k != nil && len(k.Directory) > 0 {
		fields = append(fields, shortField(tagGeoKeyDirectory, k.Directory...))
		if len(k.Doubles) > 0 {
			fields = append(fields, doubleField(tagGeoDoubleParams, k.Doubles...))
		}
		if k.ASCII != "" {
			fields = append(fields, asciiField(tagGeoASCIIParams, k.ASCII))
		}
	}
	if ref.NoData != nil {
		fields = append(fields, asciiField(tagGDALNoData, strconv.FormatFloat(*ref.NoData, 'g', -1, 64)))
	}
	// Fields are appended in ascending tag order, as TIFF requires.

	ifdOffset := pixOffset + len(pix)
	if ifdOffset%2 == 1 {
		ifdOffset++
	}
	extraOffset := ifdOffset + 2 + 12*len(fields) + 4

	var out bytes.Buffer
	out.WriteString("II")
	_ = binary.Write(&out, binary.LittleEndian, uint16(42))
	_ = binary.Write(&out, binary.LittleEndian, uint32(ifdOffset))
	out.Write(pix)
	for out.Len() < ifdOffset {
		out.WriteByte(0)
	}

	var extra bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, uint16(len(fields)))
	for _, f := range fields {
		_ = binary.Write(&out, binary.LittleEndian, f.tag)
		_ = binary.Write(&out, binary.LittleEndian, f.typ)
		_ = binary.Write(&out, binary.LittleEndian, f.count)
		if len(f.data) <= 4 {
			var inline [4]byte
			copy(inline[:], f.data)
			out.Write(inline[:])
			continue
		}
		_ = binary.Write(&out, binary.LittleEndian, uint32(extraOffset+extra.Len()))
		extra.Write(f.data)
		if extra.Len()%2 == 1 {
			extra.WriteByte(0)
		}
	}
	_ = binary.Write(&out, binary.LittleEndian, uint32(0))
	out.Write(extra.Bytes())

	return out.Bytes()
}
