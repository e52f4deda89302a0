// Package serializer encodes the common.Message exchanged between the query
// store client and server.
//
// Three implementations of IRPCSerializer exist:
//
//   - NewBinarySerializer: compact format. A 3 byte header holds the message
//     type and a 16 bit mask of the fields that follow; only those fields are
//     written, each byte slice with a 4 byte length prefix. Batch ops carry a
//     value only when their kind is not nil, so a delete costs no value bytes.
//     This is the default of the CLI.
//
//   - NewJSONSerializer: readable on the wire, handy when debugging with curl
//     against the http transport.
//
//   - NewGOBSerializer: encoding/gob. Kept for completeness, it is the slowest
//     and largest of the three (see benchmark_test.go).
//
// Client and server must use the same serializer, the message does not say
// how it was encoded.
//
// All serializers are stateless and safe for concurrent use.
//
// Usage:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewGetRequest("users", []byte("alice")))
//	...
//	var resp common.Message
//	err = s.Deserialize(data, &resp)
package serializer
