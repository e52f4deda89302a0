package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ValentinKolb/kvdown/rpc/common"
)

// NewGOBSerializer creates a serializer using encoding/gob. Every message is
// encoded with its own encoder, so each payload carries the type description.
func NewGOBSerializer() IRPCSerializer {
	return gobSerializerImpl{}
}

type gobSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("gob: encode %s message: %w", msg.MsgType, err)
	}
	return buf.Bytes(), nil
}

// Deserialize replaces msg. gob skips zero fields on the wire, decoding into
// a used message would keep its old values.
func (gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(msg); err != nil {
		return fmt.Errorf("gob: decode message: %w", err)
	}
	return nil
}
