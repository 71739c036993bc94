// Package srp implements the Secure Remote Password protocol (SRP-6a,
// RFC 5054 framing, SHA-256) for both sides of an exchange.
//
// The server stores only (salt, verifier) and, per login attempt, a short
// lived secret ephemeral. Neither the password nor anything derivable into
// it ever crosses the wire: the client proves knowledge of the password via
// the session proof M1, and the server proves knowledge of the verifier via
// the counter-proof M2, so a relay posing as the server is detected too.
package srp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"math/big"
)

var (
	// ErrInvalidEphemeral is returned when the peer's public ephemeral is
	// outside the group (A or B congruent to 0 mod N), which would let an
	// attacker force a known session key.
	ErrInvalidEphemeral = errors.New("srp: invalid public ephemeral")

	// ErrProofMismatch is returned when a session proof does not match the
	// locally derived session.
	ErrProofMismatch = errors.New("srp: session proof mismatch")
)

// ephemeralSize is the byte length of the random secret ephemerals a and b.
const ephemeralSize = 32

func hash(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// computeX derives the client's private key x = H(salt | H(username ":" password)).
// The password bytes here are the argon2-derived auth key, not the raw
// master password, so x inherits the KDF's brute-force cost.
func computeX(username string, password, salt []byte) *big.Int {
	inner := hash([]byte(username), []byte(":"), password)
	return new(big.Int).SetBytes(hash(salt, inner))
}

// multiplier computes the SRP-6a parameter k = H(N | pad(g)).
func multiplier(g *Group) *big.Int {
	return new(big.Int).SetBytes(hash(g.N.Bytes(), g.pad(g.G)))
}

// scrambler computes u = H(pad(A) | pad(B)).
func scrambler(g *Group, a, b *big.Int) *big.Int {
	return new(big.Int).SetBytes(hash(g.pad(a), g.pad(b)))
}

// ComputeVerifier derives the verifier v = g^x mod N stored server-side at
// registration. Recovering the password from v requires solving a discrete
// logarithm, which is the protocol's zero-knowledge foundation.
func (g *Group) ComputeVerifier(username string, password, salt []byte) []byte {
	x := computeX(username, password, salt)
	return new(big.Int).Exp(g.G, x, g.N).Bytes()
}

func randomEphemeral() (*big.Int, error) {
	b := make([]byte, ephemeralSize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// clientEvidence computes M1 = H((H(N) xor H(g)) | H(I) | salt | pad(A) | pad(B) | K).
func clientEvidence(g *Group, username string, salt []byte, bigA, bigB *big.Int, key []byte) []byte {
	hn := hash(g.N.Bytes())
	hg := hash(g.G.Bytes())
	xor := make([]byte, len(hn))
	for i := range hn {
		xor[i] = hn[i] ^ hg[i]
	}
	return hash(xor, hash([]byte(username)), salt, g.pad(bigA), g.pad(bigB), key)
}

// serverEvidence computes M2 = H(pad(A) | M1 | K).
func serverEvidence(g *Group, bigA *big.Int, m1, key []byte) []byte {
	return hash(g.pad(bigA), m1, key)
}

// ServerSession is the server half of one SRP exchange. Only Secret needs to
// survive between the login-initiation and validation calls; everything else
// is re-derived from stored account data.
type ServerSession struct {
	group    *Group
	username string
	salt     []byte
	v        *big.Int
	b        *big.Int
	bigB     *big.Int
}

// NewServerSession generates a fresh server ephemeral pair against the
// stored verifier: B = k*v + g^b mod N.
func NewServerSession(g *Group, username string, salt, verifier []byte) (*ServerSession, error) {
	b, err := randomEphemeral()
	if err != nil {
		return nil, err
	}
	return buildServerSession(g, username, salt, verifier, b), nil
}

// RestoreServerSession rebuilds a server session from the cached secret
// ephemeral. The public ephemeral B is deterministic given b, so the cache
// only has to hold the secret half.
func RestoreServerSession(g *Group, username string, salt, verifier, secret []byte) *ServerSession {
	return buildServerSession(g, username, salt, verifier, new(big.Int).SetBytes(secret))
}

func buildServerSession(g *Group, username string, salt, verifier []byte, b *big.Int) *ServerSession {
	v := new(big.Int).SetBytes(verifier)
	k := multiplier(g)

	bigB := new(big.Int).Exp(g.G, b, g.N)
	bigB.Add(bigB, new(big.Int).Mul(k, v))
	bigB.Mod(bigB, g.N)

	return &ServerSession{group: g, username: username, salt: salt, v: v, b: b, bigB: bigB}
}

// Secret returns the secret ephemeral b for caching between calls.
func (s *ServerSession) Secret() []byte {
	return s.b.Bytes()
}

// PublicEphemeral returns B in the padded wire encoding.
func (s *ServerSession) PublicEphemeral() []byte {
	return s.group.pad(s.bigB)
}

// VerifyClientProof checks the client's session proof M1 against the session
// derived from the stored verifier and, on success, returns the server's
// counter-proof M2. The premaster secret is S = (A * v^u)^b mod N.
func (s *ServerSession) VerifyClientProof(clientPublic, clientProof []byte) ([]byte, error) {
	g := s.group
	bigA := new(big.Int).SetBytes(clientPublic)
	if new(big.Int).Mod(bigA, g.N).Sign() == 0 {
		return nil, ErrInvalidEphemeral
	}
	u := scrambler(g, bigA, s.bigB)
	if u.Sign() == 0 {
		return nil, ErrInvalidEphemeral
	}

	premaster := new(big.Int).Exp(s.v, u, g.N)
	premaster.Mul(premaster, bigA)
	premaster.Exp(premaster, s.b, g.N)

	key := hash(g.pad(premaster))
	expected := clientEvidence(g, s.username, s.salt, bigA, s.bigB, key)
	if subtle.ConstantTimeCompare(expected, clientProof) != 1 {
		return nil, ErrProofMismatch
	}
	return serverEvidence(g, bigA, expected, key), nil
}

// ClientSession is the client half of one SRP exchange.
type ClientSession struct {
	group *Group
	a     *big.Int
	bigA  *big.Int
	key   []byte
	m2    []byte
}

// NewClientSession generates a fresh client ephemeral pair A = g^a mod N.
func NewClientSession(g *Group) (*ClientSession, error) {
	a, err := randomEphemeral()
	if err != nil {
		return nil, err
	}
	return &ClientSession{group: g, a: a, bigA: new(big.Int).Exp(g.G, a, g.N)}, nil
}

// PublicEphemeral returns A in the padded wire encoding.
func (c *ClientSession) PublicEphemeral() []byte {
	return c.group.pad(c.bigA)
}

// ComputeProof derives the shared session from the server's public ephemeral
// and returns the client's session proof M1. The premaster secret is
// S = (B - k*g^x)^(a + u*x) mod N.
func (c *ClientSession) ComputeProof(username string, password, salt, serverPublic []byte) ([]byte, error) {
	g := c.group
	bigB := new(big.Int).SetBytes(serverPublic)
	if new(big.Int).Mod(bigB, g.N).Sign() == 0 {
		return nil, ErrInvalidEphemeral
	}
	u := scrambler(g, c.bigA, bigB)
	if u.Sign() == 0 {
		return nil, ErrInvalidEphemeral
	}

	x := computeX(username, password, salt)
	k := multiplier(g)

	// base = B - k*g^x mod N
	base := new(big.Int).Exp(g.G, x, g.N)
	base.Mul(base, k)
	base.Sub(bigB, base)
	base.Mod(base, g.N)

	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, c.a)

	premaster := new(big.Int).Exp(base, exp, g.N)
	c.key = hash(g.pad(premaster))

	m1 := clientEvidence(g, username, salt, c.bigA, bigB, c.key)
	c.m2 = serverEvidence(g, c.bigA, m1, c.key)
	return m1, nil
}

// VerifyServerProof checks the server's counter-proof M2. Clients must not
// treat a login as successful until this returns true; a server that cannot
// produce M2 does not hold the account's verifier.
func (c *ClientSession) VerifyServerProof(proof []byte) bool {
	if c.m2 == nil {
		return false
	}
	return subtle.ConstantTimeCompare(c.m2, proof) == 1
}

// Key returns the shared session key K, available after ComputeProof.
func (c *ClientSession) Key() []byte {
	return c.key
}
