package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrMalformed indicates a request body that could not be parsed at
// all. Well-formed bodies always decode, whatever their payload types.
var ErrMalformed = errors.New("malformed request body")

// Request is the wire envelope: one sender call carrying one or more
// payloads plus sender-declared metadata.
type Request struct {
	UUID     string                 `json:"uuid"`
	Payloads []Payload              `json:"payloads"`
	Meta     map[string]interface{} `json:"meta"`
}

// Payload is one structured diagnostic unit. Content is kept as the
// decoded JSON value so unknown shapes survive verbatim.
type Payload struct {
	Kind    Kind
	RawType string
	Content interface{}
	Origin  *Origin
}

// Origin identifies the call site that emitted a payload.
type Origin struct {
	File       string `json:"file"`
	LineNumber int    `json:"line_number"`
	Hostname   string `json:"hostname"`
}

type wirePayload struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
	Origin  *Origin     `json:"origin"`
}

// UnmarshalJSON decodes a payload, classifying its type discriminator.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw wirePayload
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Kind = KindFromWire(raw.Type)
	p.RawType = raw.Type
	p.Content = raw.Content
	p.Origin = raw.Origin
	return nil
}

// MarshalJSON round-trips the payload in its wire form.
func (p Payload) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(wirePayload{
		Type:    p.RawType,
		Content: p.Content,
		Origin:  p.Origin,
	})
}

// ContentObject returns the content as an object, or nil when the
// content is absent or not an object.
func (p *Payload) ContentObject() map[string]interface{} {
	obj, _ := p.Content.(map[string]interface{})
	return obj
}

// ContentString returns the string value of a content field.
func (p *Payload) ContentString(key string) string {
	obj := p.ContentObject()
	if obj == nil {
		return ""
	}
	value, _ := obj[key].(string)
	return value
}

// ContentInt returns the integer value of a content field. JSON
// numbers decode as float64.
func (p *Payload) ContentInt(key string) (int, bool) {
	obj := p.ContentObject()
	if obj == nil {
		return 0, false
	}
	switch v := obj[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// Decode parses an inbound request body. It is a pure function: any
// well-formed envelope decodes successfully, unknown payload types
// included; only structurally invalid bodies fail.
func Decode(raw []byte) (*Request, error) {
	var req Request
	if err := sonic.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &req, nil
}

// MetaString returns a string-valued metadata field, "" when absent.
func (r *Request) MetaString(key string) string {
	if r.Meta == nil {
		return ""
	}
	value, _ := r.Meta[key].(string)
	return value
}
