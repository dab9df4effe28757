package vector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// Snapshot layout, all integers little-endian:
//
//	magic "SMIX" | version u16 | variant u8 | metric u8 | dimension u32 | count u64
//	count x (id i64 | dimension x f32), ids strictly ascending
//	structure length u64 | structure bytes
//	crc32 (IEEE) of everything above
var snapshotMagic = [4]byte{'S', 'M', 'I', 'X'}

const (
	snapshotVersion uint16 = 1

	// maxSnapshotDimension bounds the allocation made for a decoded header.
	maxSnapshotDimension = 1 << 16

	variantCodeFlat uint8 = 1
	variantCodeHNSW uint8 = 2

	metricCodeInnerProduct uint8 = 1
)

type snapshotHeader struct {
	Version   uint16
	Variant   uint8
	Metric    uint8
	Dimension uint32
	Count     uint64
}

const (
	snapshotHeaderSize  = 2 + 1 + 1 + 4 + 8
	snapshotTrailerSize = 4
)

func encodeVariant(v Variant) (uint8, error) {
	switch v {
	case VariantFlat:
		return variantCodeFlat, nil
	case VariantHNSW:
		return variantCodeHNSW, nil
	}
	return 0, fmt.Errorf("%w: unknown index variant %q", ErrInvalidArgument, v)
}

func decodeVariant(code uint8) (Variant, bool) {
	switch code {
	case variantCodeFlat:
		return VariantFlat, true
	case variantCodeHNSW:
		return VariantHNSW, true
	}
	return "", false
}

// EncodeSnapshot serializes the full state of m.
func EncodeSnapshot(m *Manager) ([]byte, error) {
	variant, err := encodeVariant(m.variant)
	if err != nil {
		return nil, err
	}
	records := m.index.Records()

	var buf bytes.Buffer
	buf.Grow(len(snapshotMagic) + snapshotHeaderSize + len(records)*(8+4*m.dimension) + 8 + snapshotTrailerSize)
	buf.Write(snapshotMagic[:])
	hdr := snapshotHeader{
		Version:   snapshotVersion,
		Variant:   variant,
		Metric:    metricCodeInnerProduct,
		Dimension: uint32(m.dimension),
		Count:     uint64(len(records)),
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	var idBuf [8]byte
	for _, rec := range records {
		binary.LittleEndian.PutUint64(idBuf[:], uint64(rec.ID))
		buf.Write(idBuf[:])
		buf.Write(float32SliceToBytes(rec.Embedding))
	}

	var structure bytes.Buffer
	if err := m.index.ExportStructure(&structure); err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint64(idBuf[:], uint64(structure.Len()))
	buf.Write(idBuf[:])
	buf.Write(structure.Bytes())

	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc32.ChecksumIEEE(buf.Bytes()))
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorruptSnapshot}, args...)...)
}

// DecodeSnapshot parses data into a new Manager. opts tunes a restored graph index.
// Any malformed input yields ErrCorruptSnapshot and no partial state.
func DecodeSnapshot(data []byte, opts GraphOptions) (*Manager, error) {
	minSize := len(snapshotMagic) + snapshotHeaderSize + 8 + snapshotTrailerSize
	if len(data) < minSize {
		return nil, corrupt("truncated snapshot (%d bytes)", len(data))
	}
	body := data[:len(data)-snapshotTrailerSize]
	want := binary.LittleEndian.Uint32(data[len(data)-snapshotTrailerSize:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, corrupt("checksum mismatch")
	}
	if !bytes.Equal(body[:len(snapshotMagic)], snapshotMagic[:]) {
		return nil, corrupt("unrecognized format")
	}

	r := bytes.NewReader(body[len(snapshotMagic):])
	var hdr snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, corrupt("read header: %v", err)
	}
	if hdr.Version != snapshotVersion {
		return nil, corrupt("unsupported version %d", hdr.Version)
	}
	variant, ok := decodeVariant(hdr.Variant)
	if !ok {
		return nil, corrupt("unknown variant code %d", hdr.Variant)
	}
	if hdr.Metric != metricCodeInnerProduct {
		return nil, corrupt("unknown metric code %d", hdr.Metric)
	}
	if hdr.Dimension == 0 || hdr.Dimension > maxSnapshotDimension {
		return nil, corrupt("invalid dimension %d", hdr.Dimension)
	}
	dim := int(hdr.Dimension)
	recordSize := uint64(8 + 4*dim)
	if hdr.Count > uint64(r.Len())/recordSize {
		return nil, corrupt("record count %d exceeds payload", hdr.Count)
	}

	records := make([]Record, hdr.Count)
	vecBuf := make([]byte, 4*dim)
	var idBuf [8]byte
	for i := range records {
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return nil, corrupt("read record %d: %v", i, err)
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return nil, corrupt("read record %d: %v", i, err)
		}
		id := int64(binary.LittleEndian.Uint64(idBuf[:]))
		if i > 0 && id <= records[i-1].ID {
			return nil, corrupt("record ids out of order at %d", i)
		}
		records[i] = Record{ID: id, Embedding: bytesToFloat32Slice(vecBuf)}
	}

	if _, err := io.ReadFull(r, idBuf[:]); err != nil {
		return nil, corrupt("read structure length: %v", err)
	}
	if n := binary.LittleEndian.Uint64(idBuf[:]); n != uint64(r.Len()) {
		return nil, corrupt("structure length %d, %d bytes remain", n, r.Len())
	}

	index, err := NewVectorIndex(variant, dim, opts)
	if err != nil {
		return nil, corrupt("%v", err)
	}
	if err := index.ImportStructure(r, records); err != nil {
		return nil, corrupt("%v", err)
	}
	if r.Len() != 0 {
		return nil, corrupt("%d trailing bytes", r.Len())
	}
	return &Manager{
		dimension: dim,
		metric:    MetricInnerProduct,
		variant:   variant,
		opts:      opts,
		index:     index,
	}, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
