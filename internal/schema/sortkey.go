// Package schema holds the Arrow schema declarations and shared types for
// legislative data: the columnar table layouts, provision sort keys, and the
// DRRP exchange records used by the sync layer.
package schema

import (
	"fmt"
	"strings"
)

// NormalizeProvision converts a bare UK provision number (e.g. "3", "3A",
// "41ZA", "19DZA") into a lexicographically-sortable string so that
// ORDER BY sort_key recovers correct document order.
//
// UK numbering conventions:
//   - Plain numeric: s.1, s.2, ..., s.10
//   - Letter suffix (amendment insertion): s.3A between s.3 and s.4
//   - Z-prefix (pre-insertion): s.3ZA between s.3 and s.3A
//   - Double letter: s.3AA, s.3AB after s.3A
//   - Combined: s.19DZA = section 19, suffix D, then Z-prefix A
//
// The output is three dot-joined zero-padded segments: the base number, then
// up to two suffix groups. Z-prefix groups map ZA=001..ZZ=026 so they sort
// before plain letters, which map A=010..Z=260 (gaps of 10 leave room for
// future insertions).
func NormalizeProvision(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "000.000.000"
	}

	digitEnd := 0
	for digitEnd < len(s) && s[digitEnd] >= '0' && s[digitEnd] <= '9' {
		digitEnd++
	}

	var base uint32
	if digitEnd > 0 {
		var n uint64
		for i := 0; i < digitEnd; i++ {
			n = n*10 + uint64(s[i]-'0')
			if n > 999 {
				n = 999
				break
			}
		}
		base = uint32(n)
	}

	segments := []uint32{base}
	suffix := s[digitEnd:]
	i := 0
	for i < len(suffix) && len(segments) < 3 {
		c := suffix[i]
		switch {
		case c == 'Z' && i+1 < len(suffix) && isUpper(suffix[i+1]):
			// Z-prefix group: ZA=001, ZB=002, ..., ZZ=026.
			segments = append(segments, uint32(suffix[i+1]-'A')+1)
			i += 2
		case isUpper(c):
			// Plain letter: A=010, B=020, ..., Z=260.
			segments = append(segments, (uint32(c-'A')+1)*10)
			i++
		default:
			// Stop on unexpected character.
			i = len(suffix)
		}
	}

	for len(segments) < 3 {
		segments = append(segments, 0)
	}

	return fmt.Sprintf("%03d.%03d.%03d", segments[0], segments[1], segments[2])
}

// WithExtent appends an extent qualifier to a sort key so parallel territorial
// provisions sort together: "003.010.000" + "E+W" -> "003.010.000~E+W".
func WithExtent(sortKey, extent string) string {
	return sortKey + "~" + extent
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}
