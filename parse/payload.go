package parse

import (
	"bytes"
	"encoding/json"
)

type PayloadKind int

const (
	PayloadUnparsable PayloadKind = iota
	PayloadEnvelope
	PayloadRaw
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadEnvelope:
		return "envelope"
	case PayloadRaw:
		return "raw"
	}
	return "unparsable"
}

// Fields of the JSON envelope that may hold the Push Port XML.
var envelopeFields = []string{"data", "message", "bytes"}

// A raw transport message, classified. XML is set unless Kind is
// PayloadUnparsable.
type Payload struct {
	Kind PayloadKind
	XML  []byte
}

// Classifies a raw message as a JSON envelope wrapping XML, as raw
// XML, or as neither.
func Classify(raw []byte) Payload {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Payload{Kind: PayloadUnparsable}
	}

	var envelope interface{}
	if json.Unmarshal(trimmed, &envelope) == nil {
		switch v := envelope.(type) {
		case map[string]interface{}:
			for _, field := range envelopeFields {
				if s, ok := v[field].(string); ok && s != "" {
					return Payload{Kind: PayloadEnvelope, XML: []byte(s)}
				}
			}
		case string:
			if v != "" {
				return Payload{Kind: PayloadEnvelope, XML: []byte(v)}
			}
		}

		// Valid JSON, but nothing to unwrap
		return Payload{Kind: PayloadUnparsable}
	}

	if trimmed[0] == '<' {
		return Payload{Kind: PayloadRaw, XML: trimmed}
	}

	return Payload{Kind: PayloadUnparsable}
}
