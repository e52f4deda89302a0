package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/kvdown/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasTable    uint16 = 1 << 0
	hasKey      uint16 = 1 << 1
	hasValue    uint16 = 1 << 2
	hasKind     uint16 = 1 << 3
	hasFilters  uint16 = 1 << 4
	hasOrder    uint16 = 1 << 5
	hasLimit    uint16 = 1 << 6
	hasCursorID uint16 = 1 << 7
	hasOps      uint16 = 1 << 8
	hasFlags    uint16 = 1 << 9
	hasConflict uint16 = 1 << 10
	hasDurable  uint16 = 1 << 11
	hasCount    uint16 = 1 << 12
	hasResult   uint16 = 1 << 13
	hasCode     uint16 = 1 << 14
	hasErr      uint16 = 1 << 15
)

// header is MsgType (1 byte) + flags (2 bytes)
const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	w := &writer{buf: make([]byte, headerSize, b.sizeBytes(msg))}

	// Write message type
	w.buf[0] = byte(msg.MsgType)

	// Initialize flags
	var flags uint16

	if msg.Table != "" {
		flags |= hasTable
		w.putBytes([]byte(msg.Table))
	}
	if msg.Key != nil {
		flags |= hasKey
		w.putBytes(msg.Key)
	}
	if msg.Value != nil {
		flags |= hasValue
		w.putBytes(msg.Value)
	}
	if msg.Kind != common.KindNil {
		flags |= hasKind
		w.putByte(byte(msg.Kind))
	}
	if len(msg.Filters) > 0 {
		flags |= hasFilters
		w.putUint32(uint32(len(msg.Filters)))
		for _, f := range msg.Filters {
			w.putByte(f.Op)
			w.putBytes(f.Value)
		}
	}
	if msg.Order != 0 {
		flags |= hasOrder
		w.putByte(msg.Order)
	}
	if msg.Limit != 0 {
		flags |= hasLimit
		w.putUint64(uint64(msg.Limit))
	}
	if msg.CursorID != 0 {
		flags |= hasCursorID
		w.putUint64(msg.CursorID)
	}
	if len(msg.Ops) > 0 {
		flags |= hasOps
		w.putUint32(uint32(len(msg.Ops)))
		for _, op := range msg.Ops {
			w.putByte(op.Type)
			w.putByte(byte(op.Kind))
			w.putBytes(op.Key)
			if op.Kind != common.KindNil {
				w.putBytes(op.Value)
			}
		}
	}
	if msg.Flags != 0 {
		flags |= hasFlags
		w.putByte(msg.Flags)
	}
	if msg.Conflict != 0 {
		flags |= hasConflict
		w.putByte(msg.Conflict)
	}
	if msg.Durable {
		flags |= hasDurable
	}
	if msg.Count != 0 {
		flags |= hasCount
		w.putUint64(msg.Count)
	}
	if msg.Result != nil {
		flags |= hasResult
		w.putUint32(msg.Result.Inserted)
		w.putUint32(msg.Result.Replaced)
		w.putUint32(msg.Result.Deleted)
		w.putUint32(msg.Result.Errors)
		w.putByte(msg.Result.FirstCode)
		w.putBytes([]byte(msg.Result.FirstError))
	}
	if msg.Code != 0 {
		flags |= hasCode
		w.putByte(msg.Code)
	}
	if msg.Err != "" {
		flags |= hasErr
		w.putBytes([]byte(msg.Err))
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(w.buf[1:3], flags)

	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{}

	// Read message type and flags
	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])

	r := &reader{data: data, pos: headerSize}

	if flags&hasTable != 0 {
		msg.Table = string(r.bytes("table"))
	}
	if flags&hasKey != 0 {
		msg.Key = r.bytes("key")
	}
	if flags&hasValue != 0 {
		msg.Value = r.bytes("value")
	}
	if flags&hasKind != 0 {
		msg.Kind = common.ValueKind(r.byte("kind"))
	}
	if flags&hasFilters != 0 {
		n := r.uint32("filter count")
		if r.err == nil && int(n) > r.remaining() {
			r.fail("filters")
		}
		if r.err == nil {
			msg.Filters = make([]common.Filter, n)
			for i := range msg.Filters {
				msg.Filters[i].Op = r.byte("filter op")
				msg.Filters[i].Value = r.bytes("filter value")
			}
		}
	}
	if flags&hasOrder != 0 {
		msg.Order = r.byte("order")
	}
	if flags&hasLimit != 0 {
		msg.Limit = int64(r.uint64("limit"))
	}
	if flags&hasCursorID != 0 {
		msg.CursorID = r.uint64("cursor id")
	}
	if flags&hasOps != 0 {
		n := r.uint32("op count")
		if r.err == nil && int(n) > r.remaining() {
			r.fail("ops")
		}
		if r.err == nil {
			msg.Ops = make([]common.Op, n)
			for i := range msg.Ops {
				msg.Ops[i].Type = r.byte("op type")
				msg.Ops[i].Kind = common.ValueKind(r.byte("op kind"))
				msg.Ops[i].Key = r.bytes("op key")
				if msg.Ops[i].Kind != common.KindNil {
					msg.Ops[i].Value = r.bytes("op value")
				}
			}
		}
	}
	if flags&hasFlags != 0 {
		msg.Flags = r.byte("flags")
	}
	if flags&hasConflict != 0 {
		msg.Conflict = r.byte("conflict")
	}
	msg.Durable = flags&hasDurable != 0
	if flags&hasCount != 0 {
		msg.Count = r.uint64("count")
	}
	if flags&hasResult != 0 {
		msg.Result = &common.Result{
			Inserted: r.uint32("inserted"),
			Replaced: r.uint32("replaced"),
			Deleted:  r.uint32("deleted"),
			Errors:   r.uint32("errors"),
		}
		msg.Result.FirstCode = r.byte("first error code")
		msg.Result.FirstError = string(r.bytes("first error"))
	}
	if flags&hasCode != 0 {
		msg.Code = r.byte("code")
	}
	if flags&hasErr != 0 {
		msg.Err = string(r.bytes("error"))
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	// 4 bytes for length + data
	if msg.Table != "" {
		size += 4 + len(msg.Table)
	}
	if msg.Key != nil {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Kind != common.KindNil {
		size += 1
	}
	if len(msg.Filters) > 0 {
		size += 4
		for _, f := range msg.Filters {
			size += 1 + 4 + len(f.Value)
		}
	}
	if msg.Order != 0 {
		size += 1
	}
	if msg.Limit != 0 {
		size += 8
	}
	if msg.CursorID != 0 {
		size += 8
	}
	if len(msg.Ops) > 0 {
		size += 4
		for _, op := range msg.Ops {
			size += 2 + 4 + len(op.Key)
			if op.Kind != common.KindNil {
				size += 4 + len(op.Value)
			}
		}
	}
	if msg.Flags != 0 {
		size += 1
	}
	if msg.Conflict != 0 {
		size += 1
	}
	if msg.Count != 0 {
		size += 8
	}
	if msg.Result != nil {
		size += 4*4 + 1 + 4 + len(msg.Result.FirstError)
	}
	if msg.Code != 0 {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}

// writer appends fields to a buffer
type writer struct {
	buf []byte
}

func (w *writer) putByte(v byte) {
	w.buf = append(w.buf, v)
}

func (w *writer) putUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) putUint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// putBytes writes the length followed by the data
func (w *writer) putBytes(v []byte) {
	w.putUint32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

// reader reads fields from a buffer. After the first failure every read
// returns the zero value and err keeps the failure.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) fail(field string) {
	if r.err == nil {
		r.err = fmt.Errorf("data too short for %s", field)
	}
}

func (r *reader) byte(field string) byte {
	if r.err != nil || r.remaining() < 1 {
		r.fail(field)
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) uint32(field string) uint32 {
	if r.err != nil || r.remaining() < 4 {
		r.fail(field)
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *reader) uint64(field string) uint64 {
	if r.err != nil || r.remaining() < 8 {
		r.fail(field)
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v
}

// bytes reads a length prefixed field. The result is a copy and never nil.
func (r *reader) bytes(field string) []byte {
	n := r.uint32(field + " length")
	if r.err != nil {
		return nil
	}
	if r.remaining() < int(n) {
		r.fail(field + " data")
		return nil
	}
	v := make([]byte, n)
	copy(v, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return v
}
