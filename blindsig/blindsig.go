package blindsig

import (
	"bytes"
	"crypto/subtle"
	"errors"

	"github.com/bwesterb/go-ristretto"
	"golang.org/x/crypto/blake2b"
)

// ValueSize is the encoded size of every protocol value (point or scalar).
const ValueSize = 32

var (
	// ErrMalformedInput indicates a wire value that does not decode to a
	// valid curve point or scalar, or decodes to the identity element.
	ErrMalformedInput = errors.New("blindsig: malformed curve input")

	// ErrVerificationFailed indicates a signature or response that does not
	// satisfy the scheme's verification equation.
	ErrVerificationFailed = errors.New("blindsig: verification failed")
)

// PrivateKey is the signer's secret scalar x.
type PrivateKey struct {
	x ristretto.Scalar
}

// PublicKey is the signer's public point X = xG.
type PublicKey struct {
	p ristretto.Point
}

// GenerateKey returns a fresh Schnorr keypair (x, X = xG).
func GenerateKey() (*PrivateKey, *PublicKey) {
	priv := new(PrivateKey)
	priv.x.Rand()

	pub := new(PublicKey)
	pub.p.ScalarMultBase(&priv.x)
	return priv, pub
}

// NewPrivateKeyFromBytes restores a private key from its 32-byte encoding.
func NewPrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	s, err := decodeScalar(b)
	if err != nil {
		return nil, err
	}
	priv := new(PrivateKey)
	priv.x = *s
	return priv, nil
}

// Bytes returns the 32-byte encoding of the private scalar.
func (p *PrivateKey) Bytes() []byte {
	return p.x.Bytes()
}

// Public returns the public key corresponding to p.
func (p *PrivateKey) Public() *PublicKey {
	pub := new(PublicKey)
	pub.p.ScalarMultBase(&p.x)
	return pub
}

// NewPublicKeyFromBytes restores a public key from its 32-byte encoding.
func NewPublicKeyFromBytes(b []byte) (*PublicKey, error) {
	pt, err := decodePoint(b)
	if err != nil {
		return nil, err
	}
	pub := new(PublicKey)
	pub.p = *pt
	return pub, nil
}

// Bytes returns the 32-byte encoding of the public point.
func (p *PublicKey) Bytes() []byte {
	return p.p.Bytes()
}

// SessionSecret is the signer's ephemeral nonce r for one issuance session.
// It is exclusively owned by the session store entry and must be zeroed once
// the session finishes.
type SessionSecret struct {
	r ristretto.Scalar
}

// Zero overwrites the nonce. A zeroed secret makes IssueChallenge useless to
// an attacker holding a stale reference.
func (s *SessionSecret) Zero() {
	s.r.SetZero()
}

// InitSession starts an issuance session: r ← S, R := rG. It returns the
// secret nonce to retain server-side and the serialized commitment R for the
// client.
func InitSession() (*SessionSecret, []byte) {
	secret := new(SessionSecret)
	secret.r.Rand()

	var R ristretto.Point
	R.ScalarMultBase(&secret.r)
	return secret, R.Bytes()
}

// IssueChallenge computes the signer's response s = r + c·x to a blinded
// challenge. It is a deterministic function of its inputs and fails with
// ErrMalformedInput if the challenge does not decode.
func IssueChallenge(priv *PrivateKey, secret *SessionSecret, blindedChallenge []byte) ([]byte, error) {
	c, err := decodeScalar(blindedChallenge)
	if err != nil {
		return nil, err
	}

	var s ristretto.Scalar
	s.Mul(c, &priv.x)
	s.Add(&s, &secret.r)
	return s.Bytes(), nil
}

// Signature is an unblinded signature σ = (R', s').
type Signature struct {
	Commitment []byte // R'
	Response   []byte // s'
}

// VerifyFinalization checks a finalized signature against the public key and
// message. The verification equation s'G == R' + c'X is evaluated with a
// constant-time comparison of the encoded points.
func VerifyFinalization(pub *PublicKey, msg []byte, sig *Signature) (bool, error) {
	RPrime, err := decodePoint(sig.Commitment)
	if err != nil {
		return false, err
	}
	sPrime, err := decodeScalar(sig.Response)
	if err != nil {
		return false, err
	}

	cPrime := hashToScalar(sig.Commitment, msg)

	var lhs, rhs ristretto.Point
	lhs.ScalarMultBase(sPrime)
	rhs.ScalarMult(&pub.p, cPrime)
	rhs.Add(&rhs, RPrime)

	return subtle.ConstantTimeCompare(lhs.Bytes(), rhs.Bytes()) == 1, nil
}

// BlindingState holds the client's per-session blinding material between
// legs 2 and 3.
type BlindingState struct {
	alpha  ristretto.Scalar
	c      ristretto.Scalar
	r      ristretto.Point // server's commitment R
	rPrime ristretto.Point // blinded commitment R'
}

// Blind is the client half of leg 2: given the server's commitment R it picks
// blinding factors α, β, computes R' = R + αG + βX and the blinded challenge
// c = H(R', m) + β. It returns the retained state and the serialized c.
func Blind(pub *PublicKey, msg, commitment []byte) (*BlindingState, []byte, error) {
	R, err := decodePoint(commitment)
	if err != nil {
		return nil, nil, err
	}

	var alpha, beta ristretto.Scalar
	alpha.Rand()
	beta.Rand()

	var alphaG, betaX, RPrime ristretto.Point
	alphaG.ScalarMultBase(&alpha)
	betaX.ScalarMult(&pub.p, &beta)
	RPrime.Add(R, &alphaG)
	RPrime.Add(&RPrime, &betaX)

	cPrime := hashToScalar(RPrime.Bytes(), msg)

	var c ristretto.Scalar
	c.Add(cPrime, &beta)

	state := &BlindingState{alpha: alpha, c: c, r: *R, rPrime: RPrime}
	return state, c.Bytes(), nil
}

// Unblind is the client half of leg 3: it checks the signer's response
// against sG == R + cX, then removes the blinding: s' = s + α. Returns
// ErrVerificationFailed if the signer's response is invalid.
func Unblind(pub *PublicKey, state *BlindingState, response []byte) (*Signature, error) {
	s, err := decodeScalar(response)
	if err != nil {
		return nil, err
	}

	var sG, cX ristretto.Point
	sG.ScalarMultBase(s)
	cX.ScalarMult(&pub.p, &state.c)
	cX.Add(&cX, &state.r)
	if !sG.Equals(&cX) {
		return nil, ErrVerificationFailed
	}

	var sPrime ristretto.Scalar
	sPrime.Add(s, &state.alpha)

	return &Signature{
		Commitment: state.rPrime.Bytes(),
		Response:   sPrime.Bytes(),
	}, nil
}

// Verify checks a complete signature. It is the same equation as
// VerifyFinalization with the error folded into the boolean.
func Verify(pub *PublicKey, msg []byte, sig *Signature) bool {
	ok, err := VerifyFinalization(pub, msg, sig)
	return err == nil && ok
}

// hashToScalar computes H(R' || m) as a scalar: Blake2b-512 reduced modulo
// the group order.
func hashToScalar(commitment, msg []byte) *ristretto.Scalar {
	h, _ := blake2b.New512(nil)
	h.Write(commitment)
	h.Write(msg)

	var digest [64]byte
	copy(digest[:], h.Sum(nil))

	var s ristretto.Scalar
	s.SetReduced(&digest)
	return &s
}

func decodePoint(b []byte) (*ristretto.Point, error) {
	if len(b) != ValueSize {
		return nil, ErrMalformedInput
	}
	var buf [ValueSize]byte
	copy(buf[:], b)

	var p ristretto.Point
	if !p.SetBytes(&buf) {
		return nil, ErrMalformedInput
	}

	// The identity element is a valid encoding but never a legal protocol
	// value: it would make the verification equation trivially satisfiable.
	var zero ristretto.Point
	zero.SetZero()
	if p.Equals(&zero) {
		return nil, ErrMalformedInput
	}
	return &p, nil
}

func decodeScalar(b []byte) (*ristretto.Scalar, error) {
	if len(b) != ValueSize {
		return nil, ErrMalformedInput
	}
	var buf [ValueSize]byte
	copy(buf[:], b)

	var s ristretto.Scalar
	s.SetBytes(&buf)

	// SetBytes reduces modulo the group order, so a non-canonical encoding
	// decodes without complaint but does not round-trip. Reject it: every
	// scalar has exactly one legal wire form.
	if !bytes.Equal(s.Bytes(), b) {
		return nil, ErrMalformedInput
	}
	return &s, nil
}
