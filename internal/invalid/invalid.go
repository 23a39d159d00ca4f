package invalid

import (
	"fmt"
	"math/rand/v2"
	"unicode/utf8"
)

// UTF8Kind selects the shape of a malformed UTF-8 sequence.
type UTF8Kind int

const (
	IncompleteSequence UTF8Kind = iota
	ContinuationByteOnly
	OverlongSequence
	InvalidByteRange
	SurrogateHalf
	RandomInvalid
)

var kindNames = map[string]UTF8Kind{
	"incomplete":    IncompleteSequence,
	"continuation":  ContinuationByteOnly,
	"overlong":      OverlongSequence,
	"invalid_range": InvalidByteRange,
	"surrogate":     SurrogateHalf,
	"random":        RandomInvalid,
}

// ParseUTF8Kind maps a configuration name to a kind. Unknown names fall back
// to RandomInvalid.
func ParseUTF8Kind(name string) UTF8Kind {
	if kind, ok := kindNames[name]; ok {
		return kind
	}
	return RandomInvalid
}

// GenerateUTF8 returns bytes that never form valid UTF-8.
func GenerateUTF8(kind UTF8Kind) []byte {
	switch kind {
	case IncompleteSequence:
		return []byte{0xC2 + byte(rand.IntN(0x1E))}
	case ContinuationByteOnly:
		return []byte{0x80 + byte(rand.IntN(0x40))}
	case OverlongSequence:
		return []byte{0xC0, 0x81}
	case InvalidByteRange:
		return []byte{0xF5 + byte(rand.IntN(0x0B))}
	case SurrogateHalf:
		return []byte{0xED, 0xA0 + byte(rand.IntN(0x20))}
	case RandomInvalid:
		length := rand.IntN(4) + 1
		result := make([]byte, length)
		for i := range result {
			result[i] = byte(rand.IntN(256))
		}
		for utf8.Valid(result) {
			result[0] = 0x80 + byte(rand.IntN(0x40))
		}
		return result
	default:
		return []byte{0xC0}
	}
}

// UTF8String is GenerateUTF8 for a named kind, as a Go string.
func UTF8String(name string) string {
	out := GenerateUTF8(ParseUTF8Kind(name))
	if utf8.Valid(out) {
		out = []byte{0xC0, 0x80}
	}
	return string(out)
}

// UTF8Hex renders the bytes of a generated sequence in upper-case hex.
func UTF8Hex(kind UTF8Kind) string {
	return fmt.Sprintf("%X", GenerateUTF8(kind))
}

var validChars = []rune(
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789" +
		" !@#$%^&*()-_=+áéíóúñÑüÜ€£¥©®™",
)

// ValidUTF8 returns a random well-formed string of 5 to 24 characters.
func ValidUTF8() string {
	length := rand.IntN(20) + 5
	result := make([]rune, length)
	for i := range result {
		result[i] = validChars[rand.IntN(len(validChars))]
	}
	return string(result)
}
