package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// DecodeStrict decodes a single JSON document into v, rejecting unknown
// fields and trailing content. Handlers treat any error here as a 400.
func DecodeStrict(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON document")
	}
	return nil
}

// DecodeStrictBytes is DecodeStrict over an in-memory payload.
func DecodeStrictBytes(data []byte, v interface{}) error {
	return DecodeStrict(bytes.NewReader(data), v)
}
