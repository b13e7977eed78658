package rule

const (
	CR   byte = '\r'
	LF   byte = '\n'
	SP   byte = ' '
	HTAB byte = '\t'
	VT   byte = 0x0B
	FF   byte = 0x0C
	DEL  byte = 0x7F
)

var (
	OWS         = []byte{SP, HTAB}
	CRLF        = []byte{CR, LF}
	Whitespaces = []byte{SP, HTAB, VT, FF, CR}

	// Reference: https://fetch.spec.whatwg.org/#http-whitespace
	HTTPWhitespaces = []byte{SP, HTAB, CR, LF}
)

func IsWhitespace(r rune) bool {
	for _, ws := range Whitespaces {
		if r == rune(ws) {
			return true
		}
	}
	return false
}

func IsHTTPWhitespace(c byte) bool {
	for _, ws := range HTTPWhitespaces {
		if c == ws {
			return true
		}
	}
	return false
}

func IsAlpha(r rune) bool { return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') }
func IsDigit(r rune) bool { return '0' <= r && r <= '9' }
func IsHex(r rune) bool {
	return IsDigit(r) || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}

// Reference: https://datatracker.ietf.org/doc/html/rfc5234#appendix-B.1
func IsVChar(c byte) bool { return 0x21 <= c && c <= 0x7E }

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.5-2
func IsObsText(c byte) bool { return 0x80 <= c }
