package engine

import (
	"encoding/binary"
	"math"
	"slices"
	"unsafe"

	"github.com/hupe1980/annbind/capi"
	"github.com/hupe1980/annbind/internal/f16"
)

var nativeLittleEndian = func() bool {
	var x uint16 = 1
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// store holds the quantized vector payload, one flat array per scalar
// kind with only the active kind populated. Slots are dense; tombstoned
// slots keep their payload until reuse or compaction.
type store struct {
	kind  capi.ScalarKind
	dims  int
	words int // uint64 words per vector for b1

	f32  []float32
	f64  []float64
	f16v []f16.Bits
	bf16 []f16.BBits
	i8   []int8
	b1   []uint64

	// View mode: vectors are read straight out of a caller-owned buffer.
	// viewF32 is a direct cast of that buffer, set only when the platform
	// and payload alignment allow it.
	view    []byte
	viewN   int
	viewF32 []float32
}

func newStore(kind capi.ScalarKind, dims int) *store {
	return &store{kind: kind, dims: dims, words: (dims + 63) / 64}
}

// elems returns the flat-array elements occupied by one vector.
func (s *store) elems() int {
	if s.kind == capi.ScalarB1 {
		return s.words
	}
	return s.dims
}

// vectorBytes returns the serialized size of one vector.
func (s *store) vectorBytes() int {
	switch s.kind {
	case capi.ScalarF64:
		return s.dims * 8
	case capi.ScalarF16, capi.ScalarBF16:
		return s.dims * 2
	case capi.ScalarI8:
		return s.dims
	case capi.ScalarB1:
		return s.words * 8
	default:
		return s.dims * 4
	}
}

func (s *store) count() int {
	if s.view != nil {
		return s.viewN
	}
	e := s.elems()
	if e == 0 {
		return 0
	}
	switch s.kind {
	case capi.ScalarF64:
		return len(s.f64) / e
	case capi.ScalarF16:
		return len(s.f16v) / e
	case capi.ScalarBF16:
		return len(s.bf16) / e
	case capi.ScalarI8:
		return len(s.i8) / e
	case capi.ScalarB1:
		return len(s.b1) / e
	default:
		return len(s.f32) / e
	}
}

func (s *store) capacity() int {
	e := s.elems()
	if e == 0 {
		return 0
	}
	switch s.kind {
	case capi.ScalarF64:
		return cap(s.f64) / e
	case capi.ScalarF16:
		return cap(s.f16v) / e
	case capi.ScalarBF16:
		return cap(s.bf16) / e
	case capi.ScalarI8:
		return cap(s.i8) / e
	case capi.ScalarB1:
		return cap(s.b1) / e
	default:
		return cap(s.f32) / e
	}
}

func (s *store) grow(vectors int) {
	if vectors <= s.capacity() {
		return
	}
	e := s.elems() * vectors
	switch s.kind {
	case capi.ScalarF64:
		s.f64 = slices.Grow(s.f64, e-len(s.f64))
	case capi.ScalarF16:
		s.f16v = slices.Grow(s.f16v, e-len(s.f16v))
	case capi.ScalarBF16:
		s.bf16 = slices.Grow(s.bf16, e-len(s.bf16))
	case capi.ScalarI8:
		s.i8 = slices.Grow(s.i8, e-len(s.i8))
	case capi.ScalarB1:
		s.b1 = slices.Grow(s.b1, e-len(s.b1))
	default:
		s.f32 = slices.Grow(s.f32, e-len(s.f32))
	}
}

// appendVector quantizes v into a fresh slot and returns its index.
func (s *store) appendVector(v []float32) int {
	slot := s.count()
	switch s.kind {
	case capi.ScalarF64:
		for _, x := range v {
			s.f64 = append(s.f64, float64(x))
		}
	case capi.ScalarF16:
		for _, x := range v {
			s.f16v = append(s.f16v, f16.FromFloat32(x))
		}
	case capi.ScalarBF16:
		for _, x := range v {
			s.bf16 = append(s.bf16, f16.BFromFloat32(x))
		}
	case capi.ScalarI8:
		for _, x := range v {
			s.i8 = append(s.i8, quantizeI8(x))
		}
	case capi.ScalarB1:
		s.b1 = append(s.b1, packBits(v, s.words)...)
	default:
		s.f32 = append(s.f32, v...)
	}
	return slot
}

// setVector quantizes v into an existing slot (tombstone reuse).
func (s *store) setVector(slot int, v []float32) {
	e := s.elems()
	off := slot * e
	switch s.kind {
	case capi.ScalarF64:
		for i, x := range v {
			s.f64[off+i] = float64(x)
		}
	case capi.ScalarF16:
		for i, x := range v {
			s.f16v[off+i] = f16.FromFloat32(x)
		}
	case capi.ScalarBF16:
		for i, x := range v {
			s.bf16[off+i] = f16.BFromFloat32(x)
		}
	case capi.ScalarI8:
		for i, x := range v {
			s.i8[off+i] = quantizeI8(x)
		}
	case capi.ScalarB1:
		copy(s.b1[off:off+e], packBits(v, s.words))
	default:
		copy(s.f32[off:off+e], v)
	}
}

// at decodes the vector in slot into float32 form. The returned slice
// aliases owned storage when no conversion is needed, otherwise scratch.
// scratch must hold at least dims elements.
func (s *store) at(slot int, scratch []float32) []float32 {
	if s.view != nil {
		return s.viewAt(slot, scratch)
	}
	d := s.dims
	dst := scratch[:d]
	switch s.kind {
	case capi.ScalarF64:
		src := s.f64[slot*d : (slot+1)*d]
		for i, x := range src {
			dst[i] = float32(x)
		}
	case capi.ScalarF16:
		f16.Decode(dst, s.f16v[slot*d:(slot+1)*d])
	case capi.ScalarBF16:
		f16.BDecode(dst, s.bf16[slot*d:(slot+1)*d])
	case capi.ScalarI8:
		src := s.i8[slot*d : (slot+1)*d]
		for i, x := range src {
			dst[i] = dequantizeI8(x)
		}
	case capi.ScalarB1:
		unpackBits(dst, s.b1[slot*s.words:(slot+1)*s.words])
	default:
		return s.f32[slot*d : (slot+1)*d]
	}
	return dst
}

func (s *store) viewAt(slot int, scratch []float32) []float32 {
	d := s.dims
	if s.viewF32 != nil {
		return s.viewF32[slot*d : (slot+1)*d]
	}
	vb := s.vectorBytes()
	raw := s.view[slot*vb : (slot+1)*vb]
	dst := scratch[:d]
	switch s.kind {
	case capi.ScalarF64:
		for i := 0; i < d; i++ {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
	case capi.ScalarF16:
		for i := 0; i < d; i++ {
			dst[i] = f16.ToFloat32(f16.Bits(binary.LittleEndian.Uint16(raw[i*2:])))
		}
	case capi.ScalarBF16:
		for i := 0; i < d; i++ {
			dst[i] = f16.BToFloat32(f16.BBits(binary.LittleEndian.Uint16(raw[i*2:])))
		}
	case capi.ScalarI8:
		for i := 0; i < d; i++ {
			dst[i] = dequantizeI8(int8(raw[i]))
		}
	case capi.ScalarB1:
		words := make([]uint64, s.words)
		for i := range words {
			words[i] = binary.LittleEndian.Uint64(raw[i*8:])
		}
		unpackBits(dst, words)
	default:
		for i := 0; i < d; i++ {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	}
	return dst
}

// wordsAt returns the packed-bit form of the vector in slot for the bit
// metrics. Direct for b1 storage, binarized through scratch otherwise.
func (s *store) wordsAt(slot int, f32scratch []float32, wordScratch []uint64) []uint64 {
	if s.kind == capi.ScalarB1 && s.view == nil {
		return s.b1[slot*s.words : (slot+1)*s.words]
	}
	v := s.at(slot, f32scratch)
	w := wordScratch[:s.words]
	packBitsInto(w, v)
	return w
}

// clear drops every vector but keeps allocated capacity.
func (s *store) clear() {
	s.f32 = s.f32[:0]
	s.f64 = s.f64[:0]
	s.f16v = s.f16v[:0]
	s.bf16 = s.bf16[:0]
	s.i8 = s.i8[:0]
	s.b1 = s.b1[:0]
	s.view = nil
	s.viewN = 0
	s.viewF32 = nil
}

// memory returns the approximate heap bytes held by the store.
func (s *store) memory() uint64 {
	return uint64(cap(s.f32))*4 + uint64(cap(s.f64))*8 +
		uint64(cap(s.f16v))*2 + uint64(cap(s.bf16))*2 +
		uint64(cap(s.i8)) + uint64(cap(s.b1))*8
}

// appendPayload serializes the vector in slot, little-endian, into dst.
func (s *store) appendPayload(dst []byte, slot int) []byte {
	e := s.elems()
	off := slot * e
	if s.view != nil {
		vb := s.vectorBytes()
		return append(dst, s.view[slot*vb:(slot+1)*vb]...)
	}
	switch s.kind {
	case capi.ScalarF64:
		for _, x := range s.f64[off : off+e] {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(x))
		}
	case capi.ScalarF16:
		for _, x := range s.f16v[off : off+e] {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(x))
		}
	case capi.ScalarBF16:
		for _, x := range s.bf16[off : off+e] {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(x))
		}
	case capi.ScalarI8:
		for _, x := range s.i8[off : off+e] {
			dst = append(dst, byte(x))
		}
	case capi.ScalarB1:
		for _, x := range s.b1[off : off+e] {
			dst = binary.LittleEndian.AppendUint64(dst, x)
		}
	default:
		for _, x := range s.f32[off : off+e] {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(x))
		}
	}
	return dst
}

// readPayload decodes count serialized vectors into owned storage.
func (s *store) readPayload(data []byte, count int) {
	s.clear()
	s.grow(count)
	e := s.elems()
	switch s.kind {
	case capi.ScalarF64:
		for i := 0; i < count*e; i++ {
			s.f64 = append(s.f64, math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:])))
		}
	case capi.ScalarF16:
		for i := 0; i < count*e; i++ {
			s.f16v = append(s.f16v, f16.Bits(binary.LittleEndian.Uint16(data[i*2:])))
		}
	case capi.ScalarBF16:
		for i := 0; i < count*e; i++ {
			s.bf16 = append(s.bf16, f16.BBits(binary.LittleEndian.Uint16(data[i*2:])))
		}
	case capi.ScalarI8:
		for i := 0; i < count*e; i++ {
			s.i8 = append(s.i8, int8(data[i]))
		}
	case capi.ScalarB1:
		for i := 0; i < count*e; i++ {
			s.b1 = append(s.b1, binary.LittleEndian.Uint64(data[i*8:]))
		}
	default:
		for i := 0; i < count*e; i++ {
			s.f32 = append(s.f32, math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
	}
}

// setView points the store at a caller-owned payload without copying.
// The f32 fast path engages only when the buffer is element-aligned on a
// little-endian platform; otherwise vectors decode through scratch.
func (s *store) setView(data []byte, count int) {
	s.clear()
	s.view = data
	s.viewN = count
	if s.kind == capi.ScalarF32 && len(data) > 0 && nativeLittleEndian &&
		uintptr(unsafe.Pointer(&data[0]))%4 == 0 {
		s.viewF32 = unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), count*s.dims)
	}
}

// writeOut encodes the vector in slot into an ABI output buffer of the
// requested kind. Only the storage kind itself and f32 are supported.
func (s *store) writeOut(slot int, out unsafe.Pointer, idx int, kind capi.ScalarKind, scratch []float32) bool {
	if kind == capi.ScalarF32 {
		dst := unsafe.Slice((*float32)(out), (idx+1)*s.dims)[idx*s.dims:]
		copy(dst, s.at(slot, scratch))
		return true
	}
	if kind != s.kind || s.view != nil {
		return false
	}
	e := s.elems()
	switch kind {
	case capi.ScalarF64:
		dst := unsafe.Slice((*float64)(out), (idx+1)*e)[idx*e:]
		copy(dst, s.f64[slot*e:(slot+1)*e])
	case capi.ScalarF16:
		dst := unsafe.Slice((*uint16)(out), (idx+1)*e)[idx*e:]
		for i, x := range s.f16v[slot*e : (slot+1)*e] {
			dst[i] = uint16(x)
		}
	case capi.ScalarBF16:
		dst := unsafe.Slice((*uint16)(out), (idx+1)*e)[idx*e:]
		for i, x := range s.bf16[slot*e : (slot+1)*e] {
			dst[i] = uint16(x)
		}
	case capi.ScalarI8:
		dst := unsafe.Slice((*int8)(out), (idx+1)*e)[idx*e:]
		copy(dst, s.i8[slot*e:(slot+1)*e])
	case capi.ScalarB1:
		dst := unsafe.Slice((*uint64)(out), (idx+1)*e)[idx*e:]
		copy(dst, s.b1[slot*e:(slot+1)*e])
	default:
		return false
	}
	return true
}

// decodeRow decodes one contiguous ABI vector of the given kind into
// dst. Returns false for an unknown scalar kind.
func decodeRow(p unsafe.Pointer, kind capi.ScalarKind, dst []float32) bool {
	d := len(dst)
	switch kind {
	case capi.ScalarF32:
		copy(dst, unsafe.Slice((*float32)(p), d))
	case capi.ScalarF64:
		src := unsafe.Slice((*float64)(p), d)
		for i, v := range src {
			dst[i] = float32(v)
		}
	case capi.ScalarF16:
		src := unsafe.Slice((*uint16)(p), d)
		for i, v := range src {
			dst[i] = f16.ToFloat32(f16.Bits(v))
		}
	case capi.ScalarBF16:
		src := unsafe.Slice((*uint16)(p), d)
		for i, v := range src {
			dst[i] = f16.BToFloat32(f16.BBits(v))
		}
	case capi.ScalarI8:
		src := unsafe.Slice((*int8)(p), d)
		for i, v := range src {
			dst[i] = dequantizeI8(v)
		}
	case capi.ScalarB1:
		unpackBits(dst, unsafe.Slice((*uint64)(p), (d+63)/64))
	default:
		return false
	}
	return true
}

func quantizeI8(x float32) int8 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int8(math.RoundToEven(float64(x) * 127))
}

func dequantizeI8(c int8) float32 {
	return float32(c) / 127
}

// packBits binarizes v by sign into words uint64 words.
func packBits(v []float32, words int) []uint64 {
	out := make([]uint64, words)
	packBitsInto(out, v)
	return out
}

func packBitsInto(dst []uint64, v []float32) {
	clear(dst)
	for i, x := range v {
		if x > 0 {
			dst[i>>6] |= 1 << (uint(i) & 63)
		}
	}
}

// unpackBits expands packed bits into 0/1 float32 values.
func unpackBits(dst []float32, words []uint64) {
	for i := range dst {
		if words[i>>6]&(1<<(uint(i)&63)) != 0 {
			dst[i] = 1
		} else {
			dst[i] = 0
		}
	}
}
