package direntry

import (
	"fmt"
	"strings"
	"unicode/utf16"

	fatErrors "github.com/dargueta/gofat/errors"
)

// NameCodec converts between long names and 8.3 short names, enforces FAT
// naming legality, and uniquifies generated short names within a directory.
type NameCodec struct{}

var illegalShortChars = "\"*+,./:;<=>?[\\]|"

var reservedDeviceBases = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
}

func isReservedDeviceBase(base string) bool {
	if reservedDeviceBases[base] {
		return true
	}
	if len(base) == 4 && (strings.HasPrefix(base, "COM") || strings.HasPrefix(base, "LPT")) {
		return base[3] >= '0' && base[3] <= '9'
	}
	return false
}

// LegalLong reports whether name is an acceptable long filename: none of
// \ / : * ? " < > | , no control bytes, not empty, and not composed solely
// of dots and spaces (the engine handles "." and ".." itself).
func (NameCodec) LegalLong(name string) bool {
	if name == "" {
		return false
	}
	onlyDotsAndSpaces := true
	for _, r := range name {
		switch r {
		case '\\', '/', ':', '*', '?', '"', '<', '>', '|':
			return false
		}
		if r < 0x20 {
			return false
		}
		if r != '.' && r != ' ' {
			onlyDotsAndSpaces = false
		}
	}
	return !onlyDotsAndSpaces
}

// LegalShort reports whether an 11-byte raw short name is acceptable,
// rejecting the MS-reserved device names CON/PRN/AUX/NUL/COM0-9/LPT0-9
// regardless of extension.
func (NameCodec) LegalShort(raw [11]byte) bool {
	base := strings.TrimRight(string(raw[0:8]), " ")
	return !isReservedDeviceBase(strings.ToUpper(base))
}

func sanitizeShortChar(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	if b < 0x20 || strings.IndexByte(illegalShortChars, b) >= 0 {
		return '_'
	}
	return b
}

// basisName splits name into an 8-char base and 3-char extension basis,
// using the final '.' as the split point, upper-casing and sanitizing
// illegal characters to '_'.
func basisName(name string) (base, ext string) {
	upper := strings.ToUpper(name)
	dot := strings.LastIndexByte(upper, '.')
	rawBase, rawExt := upper, ""
	if dot > 0 {
		rawBase, rawExt = upper[:dot], upper[dot+1:]
	}
	rawBase = strings.ReplaceAll(rawBase, " ", "")
	rawExt = strings.ReplaceAll(rawExt, " ", "")

	baseBytes := make([]byte, 0, 8)
	for i := 0; i < len(rawBase) && len(baseBytes) < 8; i++ {
		baseBytes = append(baseBytes, sanitizeShortChar(rawBase[i]))
	}
	extBytes := make([]byte, 0, 3)
	for i := 0; i < len(rawExt) && len(extBytes) < 3; i++ {
		extBytes = append(extBytes, sanitizeShortChar(rawExt[i]))
	}
	if len(baseBytes) == 0 {
		baseBytes = []byte{'_'}
	}
	return string(baseBytes), string(extBytes)
}

func packShort(base, ext string) [11]byte {
	var raw [11]byte
	for i := range raw {
		raw[i] = ' '
	}
	copy(raw[0:8], base)
	copy(raw[8:11], ext)
	return raw
}

// LongToShort derives a short name for name that does not collide with any
// existing name in the directory (tested via exists). It tries the
// unmodified basis with ~1..~4, then a rehashed 2+4 hex-digit basis with
// ~N for N >= 5, mirroring the Windows short-name uniquification algorithm
// and the ordering rule in spec.md section 4.5.
func (NameCodec) LongToShort(name string, exists func(raw [11]byte) bool) ([11]byte, fatErrors.DriverError) {
	base, ext := basisName(name)

	plain := packShort(base, ext)
	if !exists(plain) && len(base) <= 8 && !needsLFN(name, base, ext) {
		return plain, nil
	}

	for n := 1; n <= 4; n++ {
		tail := fmt.Sprintf("~%d", n)
		truncated := base
		if len(truncated)+len(tail) > 8 {
			truncated = truncated[:8-len(tail)]
		}
		candidate := packShort(truncated+tail, ext)
		if !exists(candidate) {
			return candidate, nil
		}
	}

	hash := shortNameHash(name)
	for n := 5; n <= 999999; n++ {
		tail := fmt.Sprintf("%04X~%d", hash, n)
		if len(tail) > 8 {
			tail = tail[len(tail)-8:]
		}
		truncated := base
		if len(truncated)+len(tail) > 8 {
			truncated = truncated[:8-len(tail)]
		}
		candidate := packShort(truncated+tail, ext)
		if !exists(candidate) {
			return candidate, nil
		}
	}

	return [11]byte{}, fatErrors.NameTaken.WithMessage("short-name uniquification space exhausted")
}

func needsLFN(original, base, ext string) bool {
	rebuilt := base
	if ext != "" {
		rebuilt += "." + ext
	}
	return strings.ToUpper(original) != rebuilt
}

func shortNameHash(name string) uint16 {
	var h uint16 = 0
	for _, r := range name {
		h = h<<5 ^ h>>11
		h += uint16(r)
	}
	return h
}

// ToUTF16 converts name to UTF-16LE code units for LFN slot encoding.
func ToUTF16(name string) []uint16 {
	return utf16.Encode([]rune(name))
}

// FromUTF16 reassembles UTF-16LE code units back into a string, stopping at
// the first NUL or FFFF terminator.
func FromUTF16(units []uint16) string {
	trimmed := make([]uint16, 0, len(units))
	for _, u := range units {
		if u == 0x0000 || u == 0xFFFF {
			break
		}
		trimmed = append(trimmed, u)
	}
	return string(utf16.Decode(trimmed))
}
