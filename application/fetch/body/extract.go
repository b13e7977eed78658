package body

import (
	"bytes"
	"io"
	"net/url"

	"github.com/pkg/errors"
)

const (
	ContentTypeText = "text/plain;charset=UTF-8"
	ContentTypeForm = "application/x-www-form-urlencoded;charset=UTF-8"
)

var ErrUnsupported = errors.New("unsupported body type")

// Extract converts v into a body and the content type derived from it.
// contentType is empty when none can be derived.
// Reference: https://fetch.spec.whatwg.org/#concept-bodyinit-extract
func Extract(v any) (b *Body, contentType string, err error) {
	switch v := v.(type) {
	case string:
		return FromBytes([]byte(v)), ContentTypeText, nil
	case []byte:
		return FromBytes(bytes.Clone(v)), "", nil
	case url.Values:
		return FromBytes([]byte(v.Encode())), ContentTypeForm, nil
	case *Body:
		if v.Disturbed() {
			return nil, "", ErrBodyUsed
		}
		return v, "", nil
	case io.Reader:
		return FromReader(v), "", nil
	default:
		return nil, "", errors.Wrapf(ErrUnsupported, "%T", v)
	}
}
