package eportal

import (
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf16"
)

// FallbackMAC is sent in place of the client MAC when the query string has
// none.
const FallbackMAC = "111111111"

// DefaultPrecision is the working width, in 16-bit digits, of the portal's
// client-side RSA code.
const DefaultPrecision = 130

// The portal page needs a ? or & in front of mac; a query that starts with
// mac= gets the fallback.
var macParam = regexp.MustCompile(`[?&]mac=([^&]*)`)

// ExtractMAC finds the mac parameter of an encoded query string.
func ExtractMAC(encodedQuery string) string {
	decoded, err := url.PathUnescape(encodedQuery)
	if err != nil {
		return FallbackMAC
	}
	if m := macParam.FindStringSubmatch(decoded); len(m) > 1 && m[1] != "" {
		return m[1]
	}
	return FallbackMAC
}

// RSAKey is a public key in the portal's block convention.
type RSAKey struct {
	E         *big.Int
	M         *big.Int
	ChunkSize int
}

// ParseRSAKey decodes hex key material. precision is the number of 16-bit
// digits the arithmetic may use; a modulus whose Barrett products would not
// fit is rejected.
func ParseRSAKey(exponentHex, modulusHex string, precision int) (RSAKey, error) {
	if exponentHex == "" {
		return RSAKey{}, fmt.Errorf("%w: empty public key exponent", ErrProtocolFormat)
	}
	if modulusHex == "" {
		return RSAKey{}, fmt.Errorf("%w: empty public key modulus", ErrProtocolFormat)
	}
	e, ok := new(big.Int).SetString(exponentHex, 16)
	if !ok {
		return RSAKey{}, fmt.Errorf("%w: public key exponent %q is not hex", ErrProtocolFormat, exponentHex)
	}
	m, ok := new(big.Int).SetString(modulusHex, 16)
	if !ok {
		return RSAKey{}, fmt.Errorf("%w: public key modulus is not hex", ErrProtocolFormat)
	}
	if e.Sign() <= 0 || m.Sign() <= 0 {
		return RSAKey{}, fmt.Errorf("%w: public key must be positive", ErrProtocolFormat)
	}

	digits := digitCount(m)
	if 2*digits+1 > precision {
		return RSAKey{}, fmt.Errorf("%w: %d-digit modulus exceeds precision %d", ErrValidation, digits, precision)
	}
	// Two bytes per digit, minus the top digit so every block is below m.
	chunk := 2 * (digits - 1)
	if chunk <= 0 {
		return RSAKey{}, fmt.Errorf("%w: public key modulus too small", ErrProtocolFormat)
	}
	return RSAKey{E: e, M: m, ChunkSize: chunk}, nil
}

// digitCount is the number of 16-bit digits in x, at least one.
func digitCount(x *big.Int) int {
	n := (x.BitLen() + 15) / 16
	if n == 0 {
		return 1
	}
	return n
}

// EncryptPassword produces the hex ciphertext the portal expects for
// password bound to mac. It is textbook RSA over the portal's own encoding
// and must not be replaced by a padded scheme.
func EncryptPassword(password, mac, exponentHex, modulusHex string, precision int) (string, error) {
	key, err := ParseRSAKey(exponentHex, modulusHex, precision)
	if err != nil {
		return "", err
	}
	units := utf16.Encode([]rune(password + ">" + mac))
	reverseUnits(units)
	return strings.Join(key.encryptBlocks(units), ""), nil
}

// EncryptString encrypts s as-is, without the password transform.
func (k RSAKey) EncryptString(s string) string {
	return strings.Join(k.encryptBlocks(utf16.Encode([]rune(s))), "")
}

func (k RSAKey) encryptBlocks(units []uint16) []string {
	padded := make([]uint16, len(units))
	copy(padded, units)
	for len(padded)%k.ChunkSize != 0 {
		padded = append(padded, 0)
	}

	blocks := make([]string, 0, len(padded)/k.ChunkSize)
	for i := 0; i < len(padded); i += k.ChunkSize {
		block := littleEndianBlock(padded[i : i+k.ChunkSize])
		crypt := new(big.Int).Exp(block, k.E, k.M)
		blocks = append(blocks, digitHex(crypt))
	}
	return blocks
}

// littleEndianBlock weighs unit i by 256^i, as the legacy code packs two
// characters into each 16-bit digit low byte first.
func littleEndianBlock(units []uint16) *big.Int {
	block := new(big.Int)
	term := new(big.Int)
	for i := len(units) - 1; i >= 0; i-- {
		block.Lsh(block, 8)
		block.Add(block, term.SetUint64(uint64(units[i])))
	}
	return block
}

// digitHex renders x with four lowercase hex characters per 16-bit digit.
func digitHex(x *big.Int) string {
	h := x.Text(16)
	width := 4 * digitCount(x)
	if len(h) < width {
		h = strings.Repeat("0", width-len(h)) + h
	}
	return h
}

// reverseUnits reverses in place by UTF-16 code unit, which splits
// surrogate pairs exactly as the portal page does.
func reverseUnits(units []uint16) {
	for i, j := 0, len(units)-1; i < j; i, j = i+1, j-1 {
		units[i], units[j] = units[j], units[i]
	}
}
