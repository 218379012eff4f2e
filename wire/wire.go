// Package wire implements the byte-exact binary framing the replication
// core reads and writes: a growable cursor-addressed buffer with typed
// reads/writes, little-endian integers, unsigned LEB128 varints, and
// IEEE-754 floats.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// Writer is a growable byte buffer with typed append operations.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the given initial capacity hint.
func NewWriter(capHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capHint)}
}

// Bytes returns the accumulated buffer. The slice is owned by the caller.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Reset empties the writer for reuse.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

func (w *Writer) WriteUint8(v uint8)  { w.buf = append(w.buf, v) }
func (w *Writer) WriteBytes(p []byte) { w.buf = append(w.buf, p...) }

func (w *Writer) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteFloat32(v float32) { w.WriteUint32(math.Float32bits(v)) }
func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

// WriteVarint appends v as an unsigned LEB128 varint.
func (w *Writer) WriteVarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

// Reader is a cursor over a byte slice with typed read operations.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential typed reads.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// ErrTruncated is returned whenever a read runs past the end of the buffer.
// Per the serde failure policy, a truncated buffer is a corrupt frame: the
// caller must drop it without partial state mutation.
var ErrTruncated = fmt.Errorf("wire: truncated buffer")

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Pos reports the reader's current cursor offset, used by callers (netproto's
// command decoder) that need to slice out a sub-message's raw bytes for
// deferred serde decoding.
func (r *Reader) Pos() int { return r.pos }

// Slice returns the raw bytes between two cursor offsets previously
// observed via Pos, without advancing the reader.
func (r *Reader) Slice(start, end int) []byte { return r.buf[start:end] }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return ErrTruncated
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadVarint decodes an unsigned LEB128 varint.
func (r *Reader) ReadVarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadUint8()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("wire: varint overflow")
		}
	}
}

var writerPool = sync.Pool{
	New: func() any { return NewWriter(256) },
}

// AcquireWriter returns a pooled Writer for hot encode paths. Callers must
// call ReleaseWriter when done; the returned Writer is reset before use.
func AcquireWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// ReleaseWriter returns w to the pool.
func ReleaseWriter(w *Writer) {
	writerPool.Put(w)
}
