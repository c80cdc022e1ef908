package resourcerepo

import (
	"crypto/rand"
	"strings"

	"github.com/vigneshm/keel/internal/clock"
)

// crockford is the Crockford base32 alphabet, chosen for its case
// insensitivity and exclusion of visually ambiguous characters.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// newUID generates a lexicographically sortable unique id: a 48-bit
// millisecond timestamp from clk, followed by 80 bits of crypto/rand,
// both base32-encoded. Sorting uids as strings sorts them by creation
// time, ties broken by the random suffix.
func newUID(clk clock.Clock) (string, error) {
	ms := uint64(clk.Now().UnixMilli())

	var buf [16]byte // 6 bytes timestamp + 10 bytes randomness
	buf[0] = byte(ms >> 40)
	buf[1] = byte(ms >> 32)
	buf[2] = byte(ms >> 24)
	buf[3] = byte(ms >> 16)
	buf[4] = byte(ms >> 8)
	buf[5] = byte(ms)

	if _, err := rand.Read(buf[6:]); err != nil {
		return "", err
	}

	return encodeCrockford(buf[:]), nil
}

// encodeCrockford encodes b as base32 using the Crockford alphabet,
// packing 5-bit groups across byte boundaries.
func encodeCrockford(b []byte) string {
	var sb strings.Builder
	var bits uint
	var acc uint32
	for _, by := range b {
		acc = acc<<8 | uint32(by)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(crockford[(acc>>bits)&0x1F])
		}
	}
	if bits > 0 {
		sb.WriteByte(crockford[(acc<<(5-bits))&0x1F])
	}
	return sb.String()
}
