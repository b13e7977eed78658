// Package header implements the guarded header list shared by requests and responses.
//
// Reference: https://fetch.spec.whatwg.org/#headers-class
package header

import (
	"fetch-stack/application/util/rule"
	"iter"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

var (
	ErrReadOnly = errors.New("headers are read-only")
	ErrSyntax   = errors.New("invalid header syntax")
)

type Field struct{ Name, Value string }

// List is an ordered list of header fields.
// Names are compared case-insensitively but kept as they were given.
type List struct {
	guard  Guard
	fields []Field
}

// New creates a list guarded by guard and fills it with fields using append semantics.
// An immutable list is filled first and sealed afterwards.
func New(guard Guard, fields ...Field) (*List, error) {
	l := &List{guard: guard, fields: make([]Field, 0, len(fields))}
	if guard == GuardImmutable {
		l.guard = GuardNone
	}

	for _, f := range fields {
		if err := l.Append(f.Name, f.Value); err != nil {
			return nil, err
		}
	}

	l.guard = guard
	return l, nil
}

func (l *List) Guard() Guard { return l.guard }

// Seal makes the list immutable. Sealing can't be undone.
func (l *List) Seal() { l.guard = GuardImmutable }

func (l *List) Len() int { return len(l.fields) }

// Reference: https://fetch.spec.whatwg.org/#dom-headers-append
func (l *List) Append(name, value string) error {
	value, err := l.prepare(name, value)
	if err != nil {
		return err
	}

	if l.guard == GuardRequestNoCORS {
		combined := value
		if v, ok := l.Get(name); ok {
			combined = v + ", " + value
		}
		if !isNoCORSSafelisted(name, combined) {
			return nil
		}
	}

	l.fields = append(l.fields, Field{Name: name, Value: value})

	if l.guard == GuardRequestNoCORS {
		l.removePrivilegedNoCORS()
	}

	return nil
}

// Set replaces every field named name with a single field.
// The replacement takes the position of the first matching field.
// Reference: https://fetch.spec.whatwg.org/#dom-headers-set
func (l *List) Set(name, value string) error {
	value, err := l.prepare(name, value)
	if err != nil {
		return err
	}

	if l.guard == GuardRequestNoCORS && !isNoCORSSafelisted(name, value) {
		return nil
	}

	matches := func(f Field) bool { return strings.EqualFold(f.Name, name) }

	idx := slices.IndexFunc(l.fields, matches)
	if idx < 0 {
		l.fields = append(l.fields, Field{Name: name, Value: value})
	} else {
		l.fields[idx].Value = value
		rest := slices.DeleteFunc(l.fields[idx+1:], matches)
		l.fields = l.fields[:idx+1+len(rest)]
	}

	if l.guard == GuardRequestNoCORS {
		l.removePrivilegedNoCORS()
	}

	return nil
}

// Reference: https://fetch.spec.whatwg.org/#dom-headers-delete
func (l *List) Delete(name string) error {
	if l.guard == GuardImmutable {
		return ErrReadOnly
	}
	if !httpguts.ValidHeaderFieldName(name) {
		return errors.Wrapf(ErrSyntax, "invalid name %q", name)
	}

	if l.guard == GuardRequestNoCORS &&
		!isNoCORSSafelistedName(name) && !isPrivilegedNoCORS(name) {
		return nil
	}

	l.fields = slices.DeleteFunc(l.fields, func(f Field) bool {
		return strings.EqualFold(f.Name, name)
	})

	if l.guard == GuardRequestNoCORS {
		l.removePrivilegedNoCORS()
	}

	return nil
}

// Get returns values of the name joined with ", ".
// Reference: https://fetch.spec.whatwg.org/#concept-header-list-get
func (l *List) Get(name string) (string, bool) {
	values := l.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return strings.Join(values, ", "), true
}

func (l *List) Values(name string) []string {
	var values []string
	for _, f := range l.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// GetSetCookie returns Set-Cookie values without combining them,
// since a cookie value may contain commas.
func (l *List) GetSetCookie() []string { return l.Values("Set-Cookie") }

func (l *List) Has(name string) bool {
	return slices.ContainsFunc(l.fields, func(f Field) bool {
		return strings.EqualFold(f.Name, name)
	})
}

// All iterates fields in insertion order.
func (l *List) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, f := range l.Fields() {
			if !yield(f.Name, f.Value) {
				return
			}
		}
	}
}

// Fields returns a copy of every field in insertion order.
func (l *List) Fields() []Field { return slices.Clone(l.fields) }

// Clone returns an independent list guarded by guard.
// Fields are copied as-is. Guard restrictions only apply to later mutations.
func (l *List) Clone(guard Guard) *List {
	return &List{guard: guard, fields: slices.Clone(l.fields)}
}

// prepare checks the guard and the syntax of given field, and returns normalized value.
func (l *List) prepare(name, value string) (string, error) {
	if l.guard == GuardImmutable {
		return "", ErrReadOnly
	}

	value = rule.TrimHTTPWhitespace(value)
	if err := validate(name, value); err != nil {
		return "", err
	}

	return value, nil
}

func (l *List) removePrivilegedNoCORS() {
	l.fields = slices.DeleteFunc(l.fields, func(f Field) bool {
		return isPrivilegedNoCORS(f.Name)
	})
}

func validate(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return errors.Wrapf(ErrSyntax, "invalid name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return errors.Wrapf(ErrSyntax, "invalid value for %q", name)
	}
	return nil
}
