package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/kvdown/lib/query"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Table string    `json:"table,omitempty"` // Used for: all table operations and Run
	Key   []byte    `json:"key,omitempty"`   // Used for: Get, Insert, Delete, Count (low), Get + CursorNext (response)
	Value []byte    `json:"value,omitempty"` // Used for: Insert, Count (high), Get + CursorNext (response)
	Kind  ValueKind `json:"kind,omitempty"`  // Representation of Value

	// Query fields
	Filters  []Filter `json:"filters,omitempty"`  // Used for: Run
	Order    uint8    `json:"order,omitempty"`    // Used for: Run
	Limit    int64    `json:"limit,omitempty"`    // Used for: Run (negative means no limit)
	CursorID uint64   `json:"cursor,omitempty"`   // Used for: CursorNext, CursorClose, Run (response)
	Ops      []Op     `json:"ops,omitempty"`      // Used for: Apply
	Flags    uint8    `json:"flags,omitempty"`    // Used for: OpenTable (FlagCreateIfMissing, FlagErrorIfExists)
	Conflict uint8    `json:"conflict,omitempty"` // Used for: Insert, Delete, Apply
	Durable  bool     `json:"durable,omitempty"`  // Used for: Insert, Delete, Apply

	// Response only fields
	Count  uint64  `json:"count,omitempty"`  // Used for: Count response
	Result *Result `json:"result,omitempty"` // Used for: Insert, Delete, Apply responses
	Code   uint8   `json:"code,omitempty"`   // query.ErrCode of Err
	Err    string  `json:"err,omitempty"`    // Empty if no error, otherwise contains the error message
}

// Filter is a primary key predicate of a query.
type Filter struct {
	Op    uint8  `json:"op"`
	Value []byte `json:"value,omitempty"`
}

// Op is a single write of an Apply request.
type Op struct {
	Type  uint8     `json:"type"`
	Key   []byte    `json:"key,omitempty"`
	Value []byte    `json:"value,omitempty"`
	Kind  ValueKind `json:"kind,omitempty"`
}

// Result is the wire form of query.WriteResult.
type Result struct {
	Inserted   uint32 `json:"inserted,omitempty"`
	Replaced   uint32 `json:"replaced,omitempty"`
	Deleted    uint32 `json:"deleted,omitempty"`
	Errors     uint32 `json:"errors,omitempty"`
	FirstError string `json:"first_error,omitempty"`
	FirstCode  uint8  `json:"first_code,omitempty"`
}

// Flags of an OpenTable request
const (
	FlagCreateIfMissing uint8 = 1 << 0
	FlagErrorIfExists   uint8 = 1 << 1
)

// --------------------------------------------------------------------------
// Values
// --------------------------------------------------------------------------

// ValueKind tells whether a value was stored as text or as binary.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindText
	KindBinary
)

// EncodeValue converts a row value to its wire form.
func EncodeValue(v any) ([]byte, ValueKind) {
	switch v := v.(type) {
	case nil:
		return nil, KindNil
	case string:
		return []byte(v), KindText
	case []byte:
		if v == nil {
			return []byte{}, KindBinary
		}
		return v, KindBinary
	default:
		return []byte(fmt.Sprint(v)), KindText
	}
}

// DecodeValue restores a row value from its wire form.
func DecodeValue(b []byte, kind ValueKind) any {
	switch kind {
	case KindText:
		return string(b)
	case KindBinary:
		if b == nil {
			return []byte{}
		}
		return b
	default:
		return nil
	}
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewOpenTableRequest creates a new OpenTable request
func NewOpenTableRequest(table string, opts query.OpenOptions) *Message {
	var flags uint8
	if opts.CreateIfMissing {
		flags |= FlagCreateIfMissing
	}
	if opts.ErrorIfExists {
		flags |= FlagErrorIfExists
	}
	return &Message{
		MsgType: MsgTOpenTable,
		Table:   table,
		Flags:   flags,
	}
}

// NewDropTableRequest creates a new DropTable request
func NewDropTableRequest(table string) *Message {
	return &Message{
		MsgType: MsgTDropTable,
		Table:   table,
	}
}

// NewGetRequest creates a new Get request
func NewGetRequest(table string, key []byte) *Message {
	return &Message{
		MsgType: MsgTGet,
		Table:   table,
		Key:     key,
	}
}

// NewInsertRequest creates a new Insert request
func NewInsertRequest(table string, row query.Row, opts query.WriteOptions) *Message {
	value, kind := EncodeValue(row.Value)
	return &Message{
		MsgType:  MsgTInsert,
		Table:    table,
		Key:      row.Key,
		Value:    value,
		Kind:     kind,
		Conflict: uint8(opts.Conflict),
		Durable:  opts.Durability == query.DurabilityHard,
	}
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(table string, key []byte, opts query.WriteOptions) *Message {
	return &Message{
		MsgType:  MsgTDelete,
		Table:    table,
		Key:      key,
		Conflict: uint8(opts.Conflict),
		Durable:  opts.Durability == query.DurabilityHard,
	}
}

// NewApplyRequest creates a new Apply request
func NewApplyRequest(table string, ops []query.WriteOp, opts query.WriteOptions) *Message {
	wireOps := make([]Op, len(ops))
	for i, op := range ops {
		value, kind := EncodeValue(op.Value)
		wireOps[i] = Op{Type: uint8(op.Type), Key: op.Key, Value: value, Kind: kind}
	}
	return &Message{
		MsgType:  MsgTApply,
		Table:    table,
		Ops:      wireOps,
		Conflict: uint8(opts.Conflict),
		Durable:  opts.Durability == query.DurabilityHard,
	}
}

// NewRunRequest creates a new Run request
func NewRunRequest(q query.Query) *Message {
	filters := make([]Filter, 0, len(q.Filters))
	for _, f := range q.Filters {
		filters = append(filters, Filter{Op: uint8(f.Op), Value: f.Value})
	}
	return &Message{
		MsgType: MsgTRun,
		Table:   q.TableName,
		Filters: filters,
		Order:   uint8(q.Order),
		Limit:   int64(q.RowLimit),
	}
}

// NewCursorNextRequest creates a new CursorNext request
func NewCursorNextRequest(cursorID uint64) *Message {
	return &Message{
		MsgType:  MsgTCursorNext,
		CursorID: cursorID,
	}
}

// NewCursorCloseRequest creates a new CursorClose request
func NewCursorCloseRequest(cursorID uint64) *Message {
	return &Message{
		MsgType:  MsgTCursorClose,
		CursorID: cursorID,
	}
}

// NewCountRequest creates a new Count request
func NewCountRequest(table string, low, high []byte) *Message {
	return &Message{
		MsgType: MsgTCount,
		Table:   table,
		Key:     low,
		Value:   high,
	}
}

// NewAckResponse creates a response without payload (OpenTable, DropTable, CursorClose)
func NewAckResponse(msgType MessageType, err error) *Message {
	msg := &Message{
		MsgType: msgType,
	}
	msg.SetError(err)
	return msg
}

// NewRowResponse creates a Get or CursorNext response
func NewRowResponse(msgType MessageType, row query.Row, err error) *Message {
	msg := &Message{
		MsgType: msgType,
	}
	if err != nil {
		msg.SetError(err)
		return msg
	}
	msg.Key = row.Key
	msg.Value, msg.Kind = EncodeValue(row.Value)
	return msg
}

// NewWriteResponse creates an Insert, Delete or Apply response
func NewWriteResponse(msgType MessageType, res query.WriteResult, err error) *Message {
	msg := &Message{
		MsgType: msgType,
		Result: &Result{
			Inserted:   uint32(res.Inserted),
			Replaced:   uint32(res.Replaced),
			Deleted:    uint32(res.Deleted),
			Errors:     uint32(res.Errors),
			FirstError: res.FirstError,
			FirstCode:  uint8(res.FirstErrorCode),
		},
	}
	msg.SetError(err)
	return msg
}

// NewRunResponse creates a Run response carrying the id of the opened cursor
func NewRunResponse(cursorID uint64, err error) *Message {
	msg := &Message{
		MsgType:  MsgTRun,
		CursorID: cursorID,
	}
	msg.SetError(err)
	return msg
}

// NewCountResponse creates a Count response
func NewCountResponse(n uint64, err error) *Message {
	msg := &Message{
		MsgType: MsgTCount,
		Count:   n,
	}
	msg.SetError(err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    uint8(query.ErrCDriver),
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Accessors
// --------------------------------------------------------------------------

// SetError stores err and the code of the query sentinel it wraps. Driver
// errors keep only their message, the receiver wraps it again.
func (m *Message) SetError(err error) {
	if err == nil {
		return
	}
	m.Code = uint8(query.CodeOf(err))
	m.Err = err.Error()

	var driverErr interface{ DriverMessage() string }
	if m.Code == uint8(query.ErrCDriver) && errors.As(err, &driverErr) {
		m.Err = driverErr.DriverMessage()
	}
}

// Failure rebuilds the error carried by the message, nil if there is none.
func (m *Message) Failure() error {
	if m.Err == "" && m.Code == uint8(query.ErrCNone) {
		return nil
	}
	return query.ErrorFromCode(query.ErrCode(m.Code), m.Err)
}

// OpenOptions returns the options of an OpenTable request.
func (m *Message) OpenOptions() query.OpenOptions {
	return query.OpenOptions{
		CreateIfMissing: m.Flags&FlagCreateIfMissing != 0,
		ErrorIfExists:   m.Flags&FlagErrorIfExists != 0,
	}
}

// WriteOptions returns the options of a write request.
func (m *Message) WriteOptions() query.WriteOptions {
	opts := query.WriteOptions{Conflict: query.Conflict(m.Conflict), Durability: query.DurabilitySoft}
	if m.Durable {
		opts.Durability = query.DurabilityHard
	}
	return opts
}

// Row returns the row of an Insert request or of a Get/CursorNext response.
func (m *Message) Row() query.Row {
	return query.Row{Key: m.Key, Value: DecodeValue(m.Value, m.Kind)}
}

// WriteOps returns the ops of an Apply request.
func (m *Message) WriteOps() []query.WriteOp {
	ops := make([]query.WriteOp, len(m.Ops))
	for i, op := range m.Ops {
		ops[i] = query.WriteOp{Type: query.WriteOpType(op.Type), Key: op.Key, Value: DecodeValue(op.Value, op.Kind)}
	}
	return ops
}

// WriteResult returns the result of a write response.
func (m *Message) WriteResult() query.WriteResult {
	if m.Result == nil {
		return query.WriteResult{}
	}
	return query.WriteResult{
		Inserted:       int(m.Result.Inserted),
		Replaced:       int(m.Result.Replaced),
		Deleted:        int(m.Result.Deleted),
		Errors:         int(m.Result.Errors),
		FirstError:     m.Result.FirstError,
		FirstErrorCode: query.ErrCode(m.Result.FirstCode),
	}
}

// Query returns the query of a Run request.
func (m *Message) Query() query.Query {
	q := query.Table(m.Table).OrderBy(query.Order(m.Order)).Limit(int(m.Limit))
	for _, f := range m.Filters {
		q = q.Filter(query.Predicate{Field: query.PK, Op: query.Op(f.Op), Value: f.Value})
	}
	return q
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var msgTypeNames = map[MessageType]string{
	MsgTSuccess:     "success",
	MsgTError:       "error",
	MsgTOpenTable:   "openTable",
	MsgTDropTable:   "dropTable",
	MsgTGet:         "get",
	MsgTInsert:      "insert",
	MsgTDelete:      "delete",
	MsgTApply:       "apply",
	MsgTRun:         "run",
	MsgTCursorNext:  "cursorNext",
	MsgTCursorClose: "cursorClose",
	MsgTCount:       "count",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for msgType, name := range msgTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IBackend operations

	MsgTOpenTable // Create or check a table
	MsgTDropTable // Drop a table
	MsgTGet       // Get a row by key
	MsgTInsert    // Insert a row
	MsgTDelete    // Delete a row by key
	MsgTApply     // Apply a list of writes in one request
	MsgTCount     // Count the rows in a key range

	// ICursor operations

	MsgTRun         // Run a query and open a cursor
	MsgTCursorNext  // Fetch the next row of a cursor
	MsgTCursorClose // Close a cursor
)
