package binread

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// lookupEncoding returns the decoder for an encoding name. A nil encoding
// with a nil error means the bytes are used as-is (UTF-8 and ASCII).
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.ReplaceAll(name, "_", "-")) {
	case "", "UTF-8", "UTF8", "ASCII":
		return nil, nil
	case "UTF-16LE":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case "UTF-16BE":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case "UTF-32LE":
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM), nil
	case "UTF-32BE":
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), nil
	case "ISO-8859-1", "LATIN1":
		return charmap.ISO8859_1, nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252, nil
	case "CP437", "IBM437":
		return charmap.CodePage437, nil
	case "SHIFT-JIS", "SJIS":
		return japanese.ShiftJIS, nil
	case "EUC-JP":
		return japanese.EUCJP, nil
	}
	return nil, fmt.Errorf("unsupported encoding: %s", name)
}

func decodeString(data []byte, encodingName string) (string, error) {
	if strings.EqualFold(encodingName, "ASCII") {
		for _, b := range data {
			if b > 127 {
				return "", fmt.Errorf("invalid ASCII character: %d", b)
			}
		}
	}

	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return "", err
	}
	if enc == nil {
		return string(data), nil
	}
	return enc.NewDecoder().String(string(data))
}

func utf16Encoding(e Endian) encoding.Encoding {
	if e.Resolve() == Big {
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
}
