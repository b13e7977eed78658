package header

// Guard restricts which mutations are permitted on a [List].
// Reference: https://fetch.spec.whatwg.org/#concept-headers-guard
type Guard uint8

const (
	GuardNone Guard = iota
	GuardImmutable
	GuardRequest
	GuardRequestNoCORS
	GuardResponse
)

func (g Guard) String() string {
	switch g {
	case GuardNone:
		return "none"
	case GuardImmutable:
		return "immutable"
	case GuardRequest:
		return "request"
	case GuardRequestNoCORS:
		return "request-no-cors"
	case GuardResponse:
		return "response"
	}
	return "unknown"
}
