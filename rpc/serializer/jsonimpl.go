package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/kvdown/rpc/common"
)

// NewJSONSerializer creates a serializer writing messages as JSON objects.
// Byte fields (keys, values, filter operands) are base64 encoded.
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("json: encode %s message: %w", msg.MsgType, err)
	}
	return data, nil
}

// Deserialize replaces msg, fields missing in b are left zero
func (jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	if err := json.Unmarshal(b, msg); err != nil {
		return fmt.Errorf("json: decode message: %w", err)
	}
	return nil
}
