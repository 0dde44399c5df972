// Package wire encodes calls and decodes events as typed envelopes carried in
// transport frames.
package wire

import (
	"encoding/json"
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"

	errs "github.com/c360/callbridge/errors"
)

// Content types understood by CodecFor.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Codec marshals envelopes and payloads.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

// JSON returns the encoding/json codec.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string                { return ContentTypeJSON }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a codec producing canonical CBOR, so equal values always encode to
// equal bytes.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) ContentType() string                { return ContentTypeCBOR }
func (c cborCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

// CodecFor returns the codec for a content type or a short name ("json", "cbor").
// An empty value selects JSON.
func CodecFor(contentType string) (Codec, error) {
	switch contentType {
	case "", "json", ContentTypeJSON:
		return JSON(), nil
	case "cbor", ContentTypeCBOR:
		return CBOR()
	default:
		return nil, errs.WrapInvalid(fmt.Errorf("%w: codec %q", errs.ErrInvalidConfig, contentType),
			"wire", "CodecFor", "select codec")
	}
}
