package device

import "bytes"

// Template is an opaque face template produced and consumed by a Gateway.
// facegate never interprets its bytes. Copying a Template value aliases the
// buffer; use Clone for an independent copy.
type Template struct {
	data []byte
}

// NewTemplate returns a template holding a private copy of b.
func NewTemplate(b []byte) Template {
	if len(b) == 0 {
		return Template{}
	}
	return Template{data: append([]byte(nil), b...)}
}

// Bytes returns a copy of the template contents.
func (t Template) Bytes() []byte {
	if len(t.data) == 0 {
		return nil
	}
	return append([]byte(nil), t.data...)
}

// Len reports the template size in bytes.
func (t Template) Len() int {
	return len(t.data)
}

// Empty reports whether the template holds no data or was released.
func (t Template) Empty() bool {
	return len(t.data) == 0
}

// Clone returns a deep copy.
func (t Template) Clone() Template {
	return NewTemplate(t.data)
}

// Equal reports whether both templates hold the same bytes.
func (t Template) Equal(other Template) bool {
	return bytes.Equal(t.data, other.data)
}

// Release zeroes and drops the buffer. Calling it more than once is a no-op.
func (t *Template) Release() {
	if t == nil || t.data == nil {
		return
	}
	clear(t.data)
	t.data = nil
}
