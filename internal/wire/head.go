package wire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// parseHead parses the header block at the start of buf. onStartLine is
// called once the first line is complete. It returns the length of the block
// including the terminating blank line, or 0 if buf does not hold a complete
// block yet. Every complete line is validated, so garbage is rejected before
// the block ends.
func parseHead(
	buf []byte,
	malformed error,
	onStartLine func(line string) error,
) (Headers, int, error) {
	var headers Headers
	pos := 0

	for lineNo := 0; ; lineNo++ {
		idx := bytes.IndexByte(buf[pos:], '\n')
		if idx < 0 {
			return nil, 0, nil
		}

		line := string(bytes.TrimSuffix(buf[pos:pos+idx], []byte{'\r'}))
		pos += idx + 1

		switch {
		case lineNo == 0:
			if err := onStartLine(line); err != nil {
				return nil, 0, err
			}
		case line == "":
			return headers, pos, nil
		default:
			if len(headers) == MaxHeaders {
				return nil, 0, fmt.Errorf("%w: more than %d headers", malformed, MaxHeaders)
			}
			header, err := parseHeaderLine(line, malformed)
			if err != nil {
				return nil, 0, err
			}
			headers = append(headers, header)
		}
	}
}

func parseHeaderLine(line string, malformed error) (Header, error) {
	name, value, ok := strings.Cut(line, ":")
	if !ok || !isToken(name) {
		return Header{}, fmt.Errorf("%w: invalid header line %q", malformed, line)
	}

	value = strings.Trim(value, " \t")
	if !isFieldValue(value) {
		return Header{}, fmt.Errorf("%w: invalid value for header %q", malformed, name)
	}

	return Header{name, value}, nil
}

// contentLength returns the declared body length, and whether one was declared.
func contentLength(headers Headers) (int, bool, error) {
	values := headers.Values("Content-Length")
	if len(values) == 0 {
		return 0, false, nil
	}

	for _, v := range values[1:] {
		if v != values[0] {
			return 0, false, fmt.Errorf("%w: conflicting values %q", ErrInvalidLengthHeader, values)
		}
	}

	length, err := strconv.ParseUint(values[0], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrInvalidLengthHeader, err)
	}
	if length > MaxBodySize {
		return 0, false, fmt.Errorf("%w: declared %d bytes", ErrBodyTooLarge, length)
	}

	return int(length), true, nil
}

func isValidVersion(version string) bool {
	return version == Version11 || version == Version10
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := range len(s) {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

func isFieldValue(s string) bool {
	for i := range len(s) {
		c := s[i]
		if (c < 0x20 && c != '\t') || c == 0x7f {
			return false
		}
	}
	return true
}

func isRequestTarget(s string) bool {
	if s == "" {
		return false
	}
	for i := range len(s) {
		if s[i] <= 0x20 || s[i] == 0x7f {
			return false
		}
	}
	return true
}
