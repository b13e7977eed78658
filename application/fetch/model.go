package fetch

import (
	"fetch-stack/application/fetch/body"
	"fetch-stack/application/fetch/header"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
)

// ResponseType classifies a response by how it was obtained.
// Reference: https://fetch.spec.whatwg.org/#concept-response-type
type ResponseType uint8

const (
	TypeDefault ResponseType = iota
	TypeBasic
	TypeCORS
	TypeError
	TypeOpaque
	TypeOpaqueRedirect
)

func (t ResponseType) String() string {
	switch t {
	case TypeDefault:
		return "default"
	case TypeBasic:
		return "basic"
	case TypeCORS:
		return "cors"
	case TypeError:
		return "error"
	case TypeOpaque:
		return "opaque"
	case TypeOpaqueRedirect:
		return "opaqueredirect"
	default:
		return "unknown"
	}
}

// responseModel is the internal state of a response.
// A status in the null body set has no body, and a response of TypeError has status 0 and no body.
type responseModel struct {
	typ        ResponseType
	status     uint
	statusText string
	headers    *header.List
	body       *body.Body
	urlList    []*url.URL
	cacheState string
	aborted    atomic.Bool // set when aborted while the body was streaming.

	// internal is the unfiltered model of a filtered response.
	internal *responseModel
}

func (m *responseModel) url() string {
	if len(m.urlList) == 0 {
		return ""
	}
	return serializeURL(m.urlList[len(m.urlList)-1])
}

// clone copies m. The body is left for the caller to set.
func (m *responseModel) clone() *responseModel {
	c := &responseModel{
		typ:        m.typ,
		status:     m.status,
		statusText: m.statusText,
		headers:    m.headers.Clone(m.headers.Guard()),
		urlList:    slices.Clone(m.urlList),
		cacheState: m.cacheState,
	}
	c.aborted.Store(m.aborted.Load())
	if m.internal != nil {
		c.internal = m.internal.clone()
	}
	return c
}

func newErrorModel() *responseModel {
	headers, _ := header.New(header.GuardImmutable)
	return &responseModel{typ: TypeError, headers: headers}
}

// Response header names exposed to cross-origin callers without being listed.
// Reference: https://fetch.spec.whatwg.org/#cors-safelisted-response-header-name
var corsSafelistedResponseHeaders = []string{
	"cache-control",
	"content-language",
	"content-length",
	"content-type",
	"expires",
	"last-modified",
	"pragma",
}

// Reference: https://fetch.spec.whatwg.org/#forbidden-response-header-name
func isForbiddenResponseHeader(name string) bool {
	return strings.EqualFold(name, "set-cookie") || strings.EqualFold(name, "set-cookie2")
}

// filter returns the model as seen by the caller for given type.
// Reference: https://fetch.spec.whatwg.org/#concept-filtered-response
func filter(internal *responseModel, typ ResponseType) *responseModel {
	m := &responseModel{
		typ:        typ,
		status:     internal.status,
		statusText: internal.statusText,
		body:       internal.body,
		urlList:    internal.urlList,
		cacheState: internal.cacheState,
		internal:   internal,
	}

	var keep func(header.Field) bool
	switch typ {
	case TypeBasic:
		keep = func(f header.Field) bool { return !isForbiddenResponseHeader(f.Name) }
	case TypeCORS:
		exposed := exposedHeaders(internal.headers)
		keep = func(f header.Field) bool {
			if isForbiddenResponseHeader(f.Name) {
				return false
			}
			return exposed["*"] || exposed[strings.ToLower(f.Name)] ||
				slices.Contains(corsSafelistedResponseHeaders, strings.ToLower(f.Name))
		}
	case TypeOpaque, TypeOpaqueRedirect:
		m.status, m.statusText, m.body, m.urlList = 0, "", nil, nil
		keep = func(header.Field) bool { return false }
	default:
		keep = func(header.Field) bool { return true }
	}

	var fields []header.Field
	for name, value := range internal.headers.All() {
		if f := (header.Field{Name: name, Value: value}); keep(f) {
			fields = append(fields, f)
		}
	}
	// Fields come from a valid list, so this can't fail.
	m.headers, _ = header.New(header.GuardImmutable, fields...)

	return m
}

// exposedHeaders parses Access-Control-Expose-Headers into a set of lowercase names.
func exposedHeaders(headers *header.List) map[string]bool {
	exposed := make(map[string]bool)
	for _, value := range headers.Values("Access-Control-Expose-Headers") {
		for name := range strings.SplitSeq(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				exposed[strings.ToLower(name)] = true
			}
		}
	}
	return exposed
}
