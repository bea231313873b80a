package marc

import (
	"fmt"

	"github.com/DBCDK/opencat-business-connector/pkg/json"
)

// JSONCodec encodes records as JSON objects with the Record field layout.
type JSONCodec struct{}

// Name implements Codec.
func (JSONCodec) Name() string { return CodecJSON }

// Encode implements Codec.
func (JSONCodec) Encode(rec *Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("json codec: cannot encode nil record")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("json codec: %w", err)
	}
	return string(data), nil
}

// Decode implements Codec.
func (JSONCodec) Decode(data string) (*Record, error) {
	var rec *Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("json codec: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("json codec: null record")
	}
	return rec, nil
}
