package srp

import (
	"math/big"
	"strings"
)

// Group is an SRP group: a safe prime N and a generator g. Both sides of an
// exchange must use the same group; the group is public protocol data.
type Group struct {
	N *big.Int
	G *big.Int
}

// byteLen is the length values are padded to before hashing, per RFC 5054.
func (g *Group) byteLen() int {
	return (g.N.BitLen() + 7) / 8
}

// pad left-pads the big-endian encoding of v to the group size.
func (g *Group) pad(v *big.Int) []byte {
	b := v.Bytes()
	size := g.byteLen()
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

func mustGroup(nHex string, g int64) *Group {
	n, ok := new(big.Int).SetString(strings.ReplaceAll(nHex, " ", ""), 16)
	if !ok {
		panic("srp: bad group modulus")
	}
	return &Group{N: n, G: big.NewInt(g)}
}

// RFC5054Group1024 is the 1024-bit group from RFC 5054 appendix A, the group
// its test vectors are written against. The group is a protocol parameter:
// every ephemeral, verifier, and proof is computed relative to it, so both
// sides must be configured with the same one.
var RFC5054Group1024 = mustGroup(
	"EEAF0AB9ADB38DD69C33F80AFA8FC5E86072618775FF3C0B9EA2314C"+
		"9C256576D674DF7496EA81D3383B4813D692C6E0E0D5D8E250B98BE4"+
		"8E495C1D6089DAD15DC7D7B46154D6B6CE8EF4AD69B15D4982559B29"+
		"7BCF1885C529F566660E57EC68EDBC3C05726CC02FD4CBF4976EAA9A"+
		"FD5138FE8376435B9FC61D2FC0EB06E3", 2)

// DefaultGroup is the group vaultsync clients and servers use unless
// configured otherwise.
var DefaultGroup = RFC5054Group1024
