package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/annbind/capi"
	"github.com/hupe1980/annbind/internal/crc32c"
	"github.com/hupe1980/annbind/internal/mmap"
)

// Snapshot layout, little-endian throughout:
//
//	magic "ANNBIX", version u16
//	metric u8, scalar u8, multi u8, pad u8
//	dims, connectivity, expansionAdd, expansionSearch u64
//	count, maxLevel, entry u64
//	graph: per node key u64, level u16, then per level count u16 + slots u32
//	payload: count quantized vectors
//	crc32c u32 over everything above
//
// Tombstoned slots are compacted away on write: live slots renumber
// densely and links into removed slots are dropped.
const (
	snapshotMagic   = "ANNBIX"
	snapshotVersion = 1
	headerSize      = 68
	footerSize      = 4
)

const deadSlot = ^uint32(0)

// remapSlots assigns dense ids to live slots. Dead slots map to deadSlot.
func (x *index) remapSlots() ([]uint32, int) {
	remap := make([]uint32, len(x.nodes))
	live := 0
	for slot := range x.nodes {
		if x.tombs.Contains(uint32(slot)) {
			remap[slot] = deadSlot
			continue
		}
		remap[slot] = uint32(live)
		live++
	}
	return remap, live
}

// snapshotEntry picks the serialized entry point: the current one when it
// survives compaction, otherwise the highest-level live node.
func (x *index) snapshotEntry(remap []uint32) (entry uint64, maxLevel uint64) {
	if x.hasEntry && remap[x.entry] != deadSlot {
		return uint64(remap[x.entry]), uint64(x.maxLevel)
	}
	best := -1
	for slot := range x.nodes {
		if remap[slot] == deadSlot {
			continue
		}
		if l := x.nodes[slot].level(); l > best {
			best = l
			entry = uint64(remap[slot])
		}
	}
	if best < 0 {
		return 0, 0
	}
	return entry, uint64(best)
}

func (x *index) serializedLength() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.snapshotSize()
}

// snapshotSize computes the exact byte length saveInto will produce.
// Callers hold at least a read lock.
func (x *index) snapshotSize() uint64 {
	remap, live := x.remapSlots()
	size := uint64(headerSize)
	for slot := range x.nodes {
		if remap[slot] == deadSlot {
			continue
		}
		size += 8 + 2
		for _, links := range x.nodes[slot].links {
			size += 2
			for _, nb := range links {
				if remap[nb] != deadSlot {
					size += 4
				}
			}
		}
	}
	size += uint64(live) * uint64(x.vs.vectorBytes())
	return size + footerSize
}

func (x *index) saveBuffer(buf []byte) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	need := x.snapshotSize()
	if uint64(len(buf)) < need {
		return fmt.Errorf(msgBufferTooSmall, need, len(buf))
	}
	x.saveInto(buf[:need])
	return nil
}

func (x *index) saveFile(path string) error {
	if path == "" {
		return errors.New(msgEmptyPath)
	}
	x.mu.RLock()
	buf := make([]byte, x.snapshotSize())
	x.saveInto(buf)
	x.mu.RUnlock()
	return os.WriteFile(path, buf, 0o644)
}

func (x *index) saveInto(buf []byte) {
	remap, live := x.remapSlots()
	entry, maxLevel := x.snapshotEntry(remap)

	copy(buf, snapshotMagic)
	binary.LittleEndian.PutUint16(buf[6:], snapshotVersion)
	buf[8] = byte(x.metric)
	buf[9] = byte(x.quant)
	if x.multi {
		buf[10] = 1
	} else {
		buf[10] = 0
	}
	buf[11] = 0
	binary.LittleEndian.PutUint64(buf[12:], uint64(x.dims))
	binary.LittleEndian.PutUint64(buf[20:], uint64(x.conn))
	binary.LittleEndian.PutUint64(buf[28:], uint64(x.expansionAdd))
	binary.LittleEndian.PutUint64(buf[36:], uint64(x.expansionSearch))
	binary.LittleEndian.PutUint64(buf[44:], uint64(live))
	binary.LittleEndian.PutUint64(buf[52:], maxLevel)
	binary.LittleEndian.PutUint64(buf[60:], entry)

	off := headerSize
	for slot := range x.nodes {
		if remap[slot] == deadSlot {
			continue
		}
		n := &x.nodes[slot]
		binary.LittleEndian.PutUint64(buf[off:], n.key)
		off += 8
		binary.LittleEndian.PutUint16(buf[off:], uint16(n.level()))
		off += 2
		for _, links := range n.links {
			cntOff := off
			off += 2
			cnt := 0
			for _, nb := range links {
				if remap[nb] == deadSlot {
					continue
				}
				binary.LittleEndian.PutUint32(buf[off:], remap[nb])
				off += 4
				cnt++
			}
			binary.LittleEndian.PutUint16(buf[cntOff:], uint16(cnt))
		}
	}

	payload := buf[off:off]
	for slot := range x.nodes {
		if remap[slot] == deadSlot {
			continue
		}
		payload = x.vs.appendPayload(payload, slot)
	}
	off += len(payload)

	binary.LittleEndian.PutUint32(buf[off:], crc32c.Sum(buf[:off]))
}

// snapshotHeader is the decoded fixed prefix of a snapshot.
type snapshotHeader struct {
	metric capi.MetricKind
	quant  capi.ScalarKind
	multi  bool

	dims, conn, expAdd, expSearch uint64
	count, maxLevel, entry        uint64
}

func parseHeader(data []byte) (*snapshotHeader, error) {
	if len(data) < headerSize+footerSize {
		return nil, fmt.Errorf(msgBadSnapshot, "truncated header")
	}
	if string(data[:6]) != snapshotMagic {
		return nil, fmt.Errorf(msgBadSnapshot, "bad magic")
	}
	if v := binary.LittleEndian.Uint16(data[6:]); v != snapshotVersion {
		return nil, fmt.Errorf(msgBadSnapshot, fmt.Sprintf("unsupported version %d", v))
	}
	h := &snapshotHeader{
		metric:    capi.MetricKind(data[8]),
		quant:     capi.ScalarKind(data[9]),
		multi:     data[10] != 0,
		dims:      binary.LittleEndian.Uint64(data[12:]),
		conn:      binary.LittleEndian.Uint64(data[20:]),
		expAdd:    binary.LittleEndian.Uint64(data[28:]),
		expSearch: binary.LittleEndian.Uint64(data[36:]),
		count:     binary.LittleEndian.Uint64(data[44:]),
		maxLevel:  binary.LittleEndian.Uint64(data[52:]),
		entry:     binary.LittleEndian.Uint64(data[60:]),
	}
	if h.dims == 0 {
		return nil, fmt.Errorf(msgBadSnapshot, "zero dimensions")
	}
	return h, nil
}

// readMetadata decodes just the configuration prefix of a snapshot.
func readMetadata(data []byte) (*capi.InitOptions, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	return &capi.InitOptions{
		Metric:          h.metric,
		Quantization:    h.quant,
		Dimensions:      h.dims,
		Connectivity:    h.conn,
		ExpansionAdd:    h.expAdd,
		ExpansionSearch: h.expSearch,
		Multi:           h.multi,
	}, nil
}

func readMetadataFile(path string) (*capi.InitOptions, error) {
	if path == "" {
		return nil, errors.New(msgEmptyPath)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, headerSize+footerSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf(msgBadSnapshot, "truncated header")
	}
	return readMetadata(buf)
}

// restore parses a full snapshot and swaps it into the index. When view
// is true the payload stays referenced, not copied, and the index
// becomes immutable.
func (x *index) restore(data []byte, view bool, m *mmap.Mapping) error {
	h, err := parseHeader(data)
	if err != nil {
		return err
	}
	if got, want := crc32c.Sum(data[:len(data)-footerSize]), binary.LittleEndian.Uint32(data[len(data)-footerSize:]); got != want {
		return errors.New(msgChecksum)
	}

	vs := newStore(h.quant, int(h.dims))
	count := int(h.count)
	payloadLen := count * vs.vectorBytes()

	nodes := make([]node, count)
	byKey := make(map[uint64][]uint32, count)
	off := headerSize
	graphEnd := len(data) - footerSize - payloadLen
	if graphEnd < headerSize {
		return fmt.Errorf(msgBadSnapshot, "truncated graph")
	}
	for slot := 0; slot < count; slot++ {
		if off+10 > graphEnd {
			return fmt.Errorf(msgBadSnapshot, "truncated graph")
		}
		key := binary.LittleEndian.Uint64(data[off:])
		off += 8
		level := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if level > maxGraphLevel {
			return fmt.Errorf(msgBadSnapshot, "level out of range")
		}
		links := make([][]uint32, level+1)
		for l := 0; l <= level; l++ {
			if off+2 > graphEnd {
				return fmt.Errorf(msgBadSnapshot, "truncated graph")
			}
			cnt := int(binary.LittleEndian.Uint16(data[off:]))
			off += 2
			if off+cnt*4 > graphEnd {
				return fmt.Errorf(msgBadSnapshot, "truncated graph")
			}
			lst := make([]uint32, cnt)
			for i := 0; i < cnt; i++ {
				nb := binary.LittleEndian.Uint32(data[off:])
				off += 4
				if nb >= uint32(count) {
					return fmt.Errorf(msgBadSnapshot, "link out of range")
				}
				lst[i] = nb
			}
			links[l] = lst
		}
		nodes[slot] = node{key: key, links: links}
		byKey[key] = append(byKey[key], uint32(slot))
	}
	if off != graphEnd {
		return fmt.Errorf(msgBadSnapshot, "graph and payload overlap")
	}
	if h.entry >= uint64(count) && count > 0 {
		return fmt.Errorf(msgBadSnapshot, "entry out of range")
	}

	payload := data[graphEnd : graphEnd+payloadLen]
	if view {
		vs.setView(payload, count)
	} else {
		vs.readPayload(payload, count)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.releaseView()
	conn := int(h.conn)
	if conn < 2 {
		conn = 2
	}
	x.metric = h.metric
	x.quant = h.quant
	x.dims = int(h.dims)
	x.conn = conn
	x.expansionAdd = int(h.expAdd)
	x.expansionSearch = int(h.expSearch)
	x.multi = h.multi
	x.ml = 1 / math.Log(float64(conn))
	x.rng = rand.New(rand.NewSource(42))
	x.vs = vs
	x.nodes = nodes
	x.byKey = byKey
	x.tombs = roaring.New()
	x.free = nil
	x.reserved = count
	x.entry = uint32(h.entry)
	x.maxLevel = int(h.maxLevel)
	x.hasEntry = count > 0
	x.viewMode = view
	x.viewMap = m
	return nil
}

func (x *index) loadFile(path string) error {
	if path == "" {
		return errors.New(msgEmptyPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return x.restore(data, false, nil)
}

// loadBuffer copies the snapshot out of the caller's buffer. The buffer
// may be reused or freed as soon as the call returns.
func (x *index) loadBuffer(data []byte) error {
	return x.restore(data, false, nil)
}

func (x *index) viewFile(path string) error {
	if path == "" {
		return errors.New(msgEmptyPath)
	}
	m, err := mmap.Open(path)
	if err != nil {
		return err
	}
	if err := x.restore(m.Bytes(), true, m); err != nil {
		_ = m.Close()
		return err
	}
	return nil
}

// viewBuffer serves vectors straight out of the caller's buffer. The
// caller must keep the buffer alive and unchanged for the life of the
// index.
func (x *index) viewBuffer(data []byte) error {
	return x.restore(data, true, nil)
}
