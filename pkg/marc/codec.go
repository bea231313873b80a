package marc

import (
	"fmt"
	"strings"
)

// Codec converts records to and from the string form placed in request and
// response payloads. Implementations must be safe for concurrent use.
type Codec interface {
	// Name identifies the wire format, e.g. "marcxchange".
	Name() string
	Encode(rec *Record) (string, error)
	Decode(data string) (*Record, error)
}

const (
	// CodecMarcXchange is the MarcXchange XML format the service consumes.
	CodecMarcXchange = "marcxchange"
	// CodecJSON is the JSON-marshalled record format.
	CodecJSON = "json"
)

// DefaultCodec returns the MarcXchange codec.
func DefaultCodec() Codec {
	return MarcXchangeCodec{}
}

// CodecByName resolves a codec from its configured name. An empty name
// selects the default codec.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecMarcXchange:
		return MarcXchangeCodec{}, nil
	case CodecJSON:
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown record codec %q", name)
	}
}
