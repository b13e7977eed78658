package header

import (
	"mime"
	"strconv"
	"strings"
)

// Reference: https://fetch.spec.whatwg.org/#cors-safelisted-request-header
const maxSafelistedValueLen = 128

// Reference: https://fetch.spec.whatwg.org/#no-cors-safelisted-request-header-name
func isNoCORSSafelistedName(name string) bool {
	switch strings.ToLower(name) {
	case "accept", "accept-language", "content-language", "content-type":
		return true
	}
	return false
}

// Reference: https://fetch.spec.whatwg.org/#privileged-no-cors-request-header-name
func isPrivilegedNoCORS(name string) bool {
	return strings.EqualFold(name, "range")
}

// Reference: https://fetch.spec.whatwg.org/#no-cors-safelisted-request-header
func isNoCORSSafelisted(name, value string) bool {
	return isNoCORSSafelistedName(name) && IsCORSSafelisted(name, value)
}

// IsCORSSafelisted reports whether the field can be sent cross-origin without a preflight.
// Reference: https://fetch.spec.whatwg.org/#cors-safelisted-request-header
func IsCORSSafelisted(name, value string) bool {
	if len(value) > maxSafelistedValueLen {
		return false
	}

	switch strings.ToLower(name) {
	case "accept":
		return !containsCORSUnsafeByte(value)
	case "accept-language", "content-language":
		for idx := 0; idx < len(value); idx++ {
			if !isLanguageByte(value[idx]) {
				return false
			}
		}
		return true
	case "content-type":
		if containsCORSUnsafeByte(value) {
			return false
		}
		essence, _, err := mime.ParseMediaType(value)
		if err != nil {
			return false
		}
		switch essence {
		case "application/x-www-form-urlencoded", "multipart/form-data", "text/plain":
			return true
		}
		return false
	case "range":
		return isSimpleRange(value)
	}

	return false
}

// Reference: https://fetch.spec.whatwg.org/#cors-unsafe-request-header-byte
func containsCORSUnsafeByte(value string) bool {
	for idx := 0; idx < len(value); idx++ {
		c := value[idx]
		if c < 0x20 && c != '\t' {
			return true
		}
		switch c {
		case '"', '(', ')', ':', '<', '>', '?', '@', '[', '\\', ']', '{', '}', 0x7F:
			return true
		}
	}
	return false
}

func isLanguageByte(c byte) bool {
	switch {
	case '0' <= c && c <= '9', 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z':
		return true
	}
	switch c {
	case ' ', '*', ',', '-', '.', ';', '=':
		return true
	}
	return false
}

// isSimpleRange accepts a single "bytes=start-[end]" range.
// Reference: https://fetch.spec.whatwg.org/#simple-range-header-value
func isSimpleRange(value string) bool {
	spec, ok := strings.CutPrefix(value, "bytes=")
	if !ok {
		return false
	}

	first, last, found := strings.Cut(spec, "-")
	if !found || first == "" || !isDigits(first) {
		return false
	}
	if last == "" {
		return true
	}
	if !isDigits(last) {
		return false
	}

	start, err1 := strconv.ParseUint(first, 10, 64)
	end, err2 := strconv.ParseUint(last, 10, 64)
	if err1 != nil || err2 != nil {
		return false
	}

	return start <= end
}

func isDigits(s string) bool {
	for idx := 0; idx < len(s); idx++ {
		if s[idx] < '0' || s[idx] > '9' {
			return false
		}
	}
	return true
}
