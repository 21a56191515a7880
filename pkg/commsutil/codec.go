package commsutil

import "encoding/json"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// DecodeMessage decodes one inbound message or batch into generic JSON values.
func DecodeMessage(data []byte) (any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
