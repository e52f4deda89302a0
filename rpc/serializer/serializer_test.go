package serializer

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/ValentinKolb/kvdown/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// OpenTable request
		{
			MsgType: common.MsgTOpenTable,
			Table:   "test_table",
			Flags:   common.FlagCreateIfMissing | common.FlagErrorIfExists,
		},

		// Insert request with a text value
		{
			MsgType:  common.MsgTInsert,
			Table:    "test_table",
			Key:      []byte("test-key"),
			Value:    []byte("test-value"),
			Kind:     common.KindText,
			Conflict: 2,
			Durable:  true,
		},

		// Get response with a binary value
		{
			MsgType: common.MsgTGet,
			Key:     []byte("test-key"),
			Value:   []byte{0, 1, 2, 0xff},
			Kind:    common.KindBinary,
		},

		// Run request
		{
			MsgType: common.MsgTRun,
			Table:   "test_table",
			Filters: []common.Filter{{Op: 2, Value: []byte("a")}, {Op: 5, Value: []byte("m")}},
			Order:   1,
			Limit:   -1,
		},

		// Apply request
		{
			MsgType: common.MsgTApply,
			Table:   "test_table",
			Ops: []common.Op{
				{Type: 1, Key: []byte("a"), Value: []byte("1"), Kind: common.KindBinary},
				{Type: 2, Key: []byte("b")},
			},
		},

		// Apply response
		{
			MsgType: common.MsgTApply,
			Result: &common.Result{
				Inserted:   1,
				Deleted:    3,
				Errors:     1,
				FirstError: "Key b not found",
				FirstCode:  2,
			},
		},

		// Cursor and count messages
		{MsgType: common.MsgTCursorNext, CursorID: 42},
		{MsgType: common.MsgTCount, Count: 1 << 40},

		// Error response
		{
			MsgType: common.MsgTError,
			Code:    1,
			Err:     "test error message",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestDeserializeReusedMessage decodes into a message that still holds the
// fields of an earlier one
func TestDeserializeReusedMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(*common.NewCursorNextRequest(9))
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			msg := common.Message{
				MsgType: common.MsgTGet,
				Table:   "stale",
				Key:     []byte("stale"),
				Err:     "stale",
			}
			if err := serializer.Deserialize(data, &msg); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			want := *common.NewCursorNextRequest(9)
			if !reflect.DeepEqual(want, msg) {
				t.Errorf("Reused message keeps old fields:\nWant: %+v\nGot: %+v", want, msg)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTCursorClose; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty key and value but not nil",
			msg: common.Message{
				MsgType: common.MsgTInsert,
				Key:     []byte{},
				Value:   []byte{},
				Kind:    common.KindBinary,
			},
		},
		{
			name: "Nil value",
			msg: common.Message{
				MsgType: common.MsgTGet,
				Key:     []byte("k"),
				Value:   nil,
			},
		},
		{
			name: "Negative limit",
			msg: common.Message{
				MsgType: common.MsgTRun,
				Table:   "t",
				Limit:   -1,
			},
		},
		{
			name: "Zero result",
			msg: common.Message{
				MsgType: common.MsgTDelete,
				Result:  &common.Result{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// the binary format keeps nil and empty slices apart
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}
		})
	}
}

// TestAccessors tests that requests built from query types survive a round trip
func TestAccessors(t *testing.T) {
	q := query.Table("t").
		Filter(query.Field(query.PK).Gte([]byte("a"))).
		Filter(query.Field(query.PK).Lt([]byte("c"))).
		OrderBy(query.Desc).
		Limit(0)
	ops := []query.WriteOp{
		{Type: query.WriteOpInsert, Key: []byte("a"), Value: "text"},
		{Type: query.WriteOpInsert, Key: []byte("b"), Value: []byte{}},
		{Type: query.WriteOpInsert, Key: []byte("n"), Value: nil},
		{Type: query.WriteOpDelete, Key: []byte("c")},
	}
	opts := query.WriteOptions{Conflict: query.ConflictError, Durability: query.DurabilityHard}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			roundTrip := func(msg *common.Message) common.Message {
				data, err := serializer.Serialize(*msg)
				if err != nil {
					t.Fatalf("Failed to serialize: %v", err)
				}
				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Fatalf("Failed to deserialize: %v", err)
				}
				return result
			}

			run := roundTrip(common.NewRunRequest(q))
			if got := run.Query(); !reflect.DeepEqual(got, q) {
				t.Errorf("Query mismatch: expected %+v, got %+v", q, got)
			}

			apply := roundTrip(common.NewApplyRequest("t", ops, opts))
			got := apply.WriteOps()
			if len(got) != len(ops) {
				t.Fatalf("Expected %d ops, got %d", len(ops), len(got))
			}
			if got[0].Value != "text" {
				t.Errorf("Text value mismatch: got %#v", got[0].Value)
			}
			if b, ok := got[1].Value.([]byte); !ok || len(b) != 0 {
				t.Errorf("Empty binary value mismatch: got %#v", got[1].Value)
			}
			if got[2].Value != nil {
				t.Errorf("Nil value mismatch: got %#v", got[2].Value)
			}
			if got[3].Type != query.WriteOpDelete || string(got[3].Key) != "c" {
				t.Errorf("Delete op mismatch: got %+v", got[3])
			}
			if apply.WriteOptions() != opts {
				t.Errorf("WriteOptions mismatch: expected %+v, got %+v", opts, apply.WriteOptions())
			}

			res := query.WriteResult{Inserted: 1, Errors: 1, FirstError: "Key x not found", FirstErrorCode: query.ErrCNotFound}
			write := roundTrip(common.NewWriteResponse(common.MsgTApply, res, nil))
			if write.WriteResult() != res {
				t.Errorf("WriteResult mismatch: expected %+v, got %+v", res, write.WriteResult())
			}

			failed := roundTrip(common.NewRowResponse(common.MsgTGet, query.Row{}, query.ErrNotFound))
			if err := failed.Failure(); !errors.Is(err, query.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
			ok := roundTrip(common.NewAckResponse(common.MsgTOpenTable, nil))
			if err := ok.Failure(); err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Too short flags",
			data:        []byte{1, 0}, // Message type 1, half of the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 2, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 4, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Too many filters",
			data:        []byte{1, 0, 16, 0xff, 0xff, 0xff, 0xff}, // Claims 4 billion filters
			expectError: true,
		},
		{
			name:        "Truncated result",
			data:        []byte{1, 0x20, 0, 0, 0, 0, 1}, // Result flag but only part of the counters
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
