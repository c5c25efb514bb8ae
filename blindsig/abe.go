package blindsig

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"github.com/bwesterb/go-ristretto"
	"golang.org/x/crypto/blake2b"
)

// The Abe blind signature scheme over Ristretto255, following the notation of
// https://www.iacr.org/archive/eurocrypt2001/20450135.pdf.
//
// Keys are (x, (y = xG, z = H₁(h‖y))) where h is a second generator with an
// unknown discrete log relative to G. Issuance maps onto the same three legs
// as Schnorr: the commitment carries (rnd, a, b₁, b₂), the blinded challenge
// is the scalar e, and the response carries (r, c, s₁, s₂, d). The final
// signature is (ζ, ζ₁) in the commitment slot and (ρ, ω, σ₁, σ₂, δ, μ) in
// the response slot.

// Domain-separation keys for the scheme's independent random oracles.
const (
	abeAltGenOracle = "abe-alt-generator"
	abeTagOracle    = "abe-tag-key"
	abeSubTagOracle = "abe-sub-tag"
	abeChalOracle   = "abe-challenge"
)

// Wire sizes, in 32-byte protocol values.
const (
	abeCommitmentValues    = 4 // rnd, a, b1, b2
	abeResponseValues      = 5 // r, c, s1, s2, d
	abeSigCommitmentValues = 2 // zeta, zeta1
	abeSigResponseValues   = 6 // rho, omega, sigma1, sigma2, delta, mu
)

// abeAltGen is h: a generator derived by hashing, so nobody knows its
// discrete log with respect to the basepoint.
var abeAltGen = pointFromHash(abeAltGenOracle)

// pointFromHash maps domain-separated input onto the group with a keyed
// Blake2b and Elligator.
func pointFromHash(oracle string, data ...[]byte) *ristretto.Point {
	h, _ := blake2b.New512([]byte(oracle))
	for _, d := range data {
		h.Write(d)
	}

	var buf [32]byte
	copy(buf[:], h.Sum(nil))

	var p ristretto.Point
	p.SetElligator(&buf)
	return &p
}

// scalarFromHash maps domain-separated input onto a scalar: keyed Blake2b-512
// reduced modulo the group order.
func scalarFromHash(oracle string, data ...[]byte) *ristretto.Scalar {
	h, _ := blake2b.New512([]byte(oracle))
	for _, d := range data {
		h.Write(d)
	}

	var digest [64]byte
	copy(digest[:], h.Sum(nil))

	var s ristretto.Scalar
	s.SetReduced(&digest)
	return &s
}

// AbePrivateKey is the signer's secret scalar x.
type AbePrivateKey struct {
	x ristretto.Scalar
}

// AbePublicKey is (y = xG, z = H₁(h‖y)). Only y goes on the wire; z is
// recomputed on parse.
type AbePublicKey struct {
	y ristretto.Point
	z ristretto.Point
}

// GenerateAbeKey returns a fresh Abe keypair.
func GenerateAbeKey() (*AbePrivateKey, *AbePublicKey) {
	for {
		priv := new(AbePrivateKey)
		priv.x.Rand()

		pub := abePublicFromScalar(&priv.x)
		if pub != nil {
			return priv, pub
		}
		// z hashed to the identity; draw a new key.
	}
}

// NewAbePrivateKeyFromBytes restores a private key from its 32-byte encoding.
func NewAbePrivateKeyFromBytes(b []byte) (*AbePrivateKey, error) {
	s, err := decodeScalar(b)
	if err != nil {
		return nil, err
	}
	priv := new(AbePrivateKey)
	priv.x = *s
	if abePublicFromScalar(&priv.x) == nil {
		return nil, ErrMalformedInput
	}
	return priv, nil
}

// Bytes returns the 32-byte encoding of the private scalar.
func (p *AbePrivateKey) Bytes() []byte {
	return p.x.Bytes()
}

// Public returns the public key corresponding to p.
func (p *AbePrivateKey) Public() *AbePublicKey {
	return abePublicFromScalar(&p.x)
}

// NewAbePublicKeyFromBytes restores a public key from the 32-byte encoding
// of y, rederiving the tag key z.
func NewAbePublicKeyFromBytes(b []byte) (*AbePublicKey, error) {
	y, err := decodePoint(b)
	if err != nil {
		return nil, err
	}
	pub := abePublicFromPoint(y)
	if pub == nil {
		return nil, ErrMalformedInput
	}
	return pub, nil
}

// Bytes returns the 32-byte encoding of y.
func (p *AbePublicKey) Bytes() []byte {
	return p.y.Bytes()
}

func abePublicFromScalar(x *ristretto.Scalar) *AbePublicKey {
	var y ristretto.Point
	y.ScalarMultBase(x)
	return abePublicFromPoint(&y)
}

func abePublicFromPoint(y *ristretto.Point) *AbePublicKey {
	z := pointFromHash(abeTagOracle, abeAltGen.Bytes(), y.Bytes())

	var zero ristretto.Point
	zero.SetZero()
	if z.Equals(&zero) {
		return nil
	}

	pub := new(AbePublicKey)
	pub.y = *y
	pub.z = *z
	return pub
}

// abeSecret is the signer's per-session state (u, s₁, s₂, d).
type abeSecret struct {
	u, s1, s2, d ristretto.Scalar
}

func (s *abeSecret) Zero() {
	s.u.SetZero()
	s.s1.SetZero()
	s.s2.SetZero()
	s.d.SetZero()
}

// abeBlindState is the client's retained state between legs 2 and 3.
type abeBlindState struct {
	zeta, zeta1        ristretto.Point
	gamma, tau         ristretto.Scalar
	t1, t2, t3, t4, t5 ristretto.Scalar
}

func (*abeBlindState) blindState() {}

// AbeServer is the signer half of the scheme.
type AbeServer struct {
	priv *AbePrivateKey
	pub  *AbePublicKey
}

// NewAbeServer wraps an Abe private key as a ServerScheme.
func NewAbeServer(priv *AbePrivateKey) *AbeServer {
	return &AbeServer{priv: priv, pub: priv.Public()}
}

func (s *AbeServer) Name() string { return SchemeAbe }

func (s *AbeServer) PublicKeyBytes() []byte { return s.pub.Bytes() }

// InitSession draws (u, s₁, s₂, d) and rnd, splits the tag key into
// z₁ = H₂(rnd), z₂ = z - z₁, and commits with a = uG, b₁ = s₁G + d·z₁,
// b₂ = s₂h + d·z₂.
func (s *AbeServer) InitSession() (Secret, []byte) {
	secret := new(abeSecret)
	secret.u.Rand()
	secret.s1.Rand()
	secret.s2.Rand()
	secret.d.Rand()

	var rnd [ValueSize]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		panic("blindsig: csprng failure: " + err.Error())
	}

	z1 := pointFromHash(abeSubTagOracle, rnd[:])
	var z2 ristretto.Point
	z2.Sub(&s.pub.z, z1)

	var a, b1, b2, tmp ristretto.Point
	a.ScalarMultBase(&secret.u)
	b1.ScalarMultBase(&secret.s1)
	tmp.ScalarMult(z1, &secret.d)
	b1.Add(&b1, &tmp)
	b2.ScalarMult(abeAltGen, &secret.s2)
	tmp.ScalarMult(&z2, &secret.d)
	b2.Add(&b2, &tmp)

	commitment := make([]byte, 0, abeCommitmentValues*ValueSize)
	commitment = append(commitment, rnd[:]...)
	commitment = append(commitment, a.Bytes()...)
	commitment = append(commitment, b1.Bytes()...)
	commitment = append(commitment, b2.Bytes()...)
	return secret, commitment
}

// IssueChallenge computes c = e - d and r = u - c·x.
func (s *AbeServer) IssueChallenge(secret Secret, blindedChallenge []byte) ([]byte, error) {
	sec, ok := secret.(*abeSecret)
	if !ok {
		return nil, errWrongSecretScheme
	}

	e, err := decodeScalar(blindedChallenge)
	if err != nil {
		return nil, err
	}

	var c, r ristretto.Scalar
	c.Sub(e, &sec.d)
	r.Mul(&c, &s.priv.x)
	r.Sub(&sec.u, &r)

	response := make([]byte, 0, abeResponseValues*ValueSize)
	response = append(response, r.Bytes()...)
	response = append(response, c.Bytes()...)
	response = append(response, sec.s1.Bytes()...)
	response = append(response, sec.s2.Bytes()...)
	response = append(response, sec.d.Bytes()...)
	return response, nil
}

func (s *AbeServer) VerifyFinalization(msg []byte, sig *Signature) (bool, error) {
	return abeVerify(s.pub, msg, sig)
}

// AbeClient is the client half of the scheme.
type AbeClient struct {
	pub *AbePublicKey
}

func (c *AbeClient) Name() string { return SchemeAbe }

// Blind consumes the commitment (rnd, a, b₁, b₂): it picks γ ∈ S*, blinds the
// tag pair into (ζ, ζ₁), masks the commitments with t₁..t₅ and τ, and returns
// the blinded challenge e = H₃(ζ, ζ₁, α, β₁, β₂, η, m) - t₂ - t₄.
func (c *AbeClient) Blind(msg, commitment []byte) (BlindState, []byte, error) {
	parts, err := splitValues(commitment, abeCommitmentValues)
	if err != nil {
		return nil, nil, err
	}
	rnd := parts[0]
	a, err := decodePoint(parts[1])
	if err != nil {
		return nil, nil, err
	}
	b1, err := decodePoint(parts[2])
	if err != nil {
		return nil, nil, err
	}
	b2, err := decodePoint(parts[3])
	if err != nil {
		return nil, nil, err
	}

	z1 := pointFromHash(abeSubTagOracle, rnd)

	state := new(abeBlindState)
	var zeroScalar ristretto.Scalar
	zeroScalar.SetZero()
	for {
		state.gamma.Rand()
		// γ must be a unit so the blinded tag pair stays non-degenerate.
		if !bytes.Equal(state.gamma.Bytes(), zeroScalar.Bytes()) {
			break
		}
	}
	state.tau.Rand()
	state.t1.Rand()
	state.t2.Rand()
	state.t3.Rand()
	state.t4.Rand()
	state.t5.Rand()

	state.zeta.ScalarMult(&c.pub.z, &state.gamma)
	state.zeta1.ScalarMult(z1, &state.gamma)
	var zeta2 ristretto.Point
	zeta2.Sub(&state.zeta, &state.zeta1)

	// α = a + t₁G + t₂y
	var alpha, tmp ristretto.Point
	alpha.ScalarMultBase(&state.t1)
	alpha.Add(&alpha, a)
	tmp.ScalarMult(&c.pub.y, &state.t2)
	alpha.Add(&alpha, &tmp)

	// β₁ = γb₁ + t₃G + t₄ζ₁
	var beta1 ristretto.Point
	beta1.ScalarMult(b1, &state.gamma)
	tmp.ScalarMultBase(&state.t3)
	beta1.Add(&beta1, &tmp)
	tmp.ScalarMult(&state.zeta1, &state.t4)
	beta1.Add(&beta1, &tmp)

	// β₂ = γb₂ + t₅h + t₄ζ₂
	var beta2 ristretto.Point
	beta2.ScalarMult(b2, &state.gamma)
	tmp.ScalarMult(abeAltGen, &state.t5)
	beta2.Add(&beta2, &tmp)
	tmp.ScalarMult(&zeta2, &state.t4)
	beta2.Add(&beta2, &tmp)

	// η = τz
	var eta ristretto.Point
	eta.ScalarMult(&c.pub.z, &state.tau)

	eps := scalarFromHash(abeChalOracle,
		state.zeta.Bytes(), state.zeta1.Bytes(),
		alpha.Bytes(), beta1.Bytes(), beta2.Bytes(), eta.Bytes(), msg)

	var e ristretto.Scalar
	e.Sub(eps, &state.t2)
	e.Sub(&e, &state.t4)

	return state, e.Bytes(), nil
}

// Unblind checks nothing server-side survives unvalidated: it strips the
// blinding (ρ, ω, σ₁, σ₂, δ, μ) and accepts only if the tentative signature
// verifies.
func (c *AbeClient) Unblind(state BlindState, msg, response []byte) (*Signature, error) {
	st, ok := state.(*abeBlindState)
	if !ok {
		return nil, errWrongStateScheme
	}

	parts, err := splitValues(response, abeResponseValues)
	if err != nil {
		return nil, err
	}
	scalars := make([]*ristretto.Scalar, abeResponseValues)
	for i, part := range parts {
		if scalars[i], err = decodeScalar(part); err != nil {
			return nil, err
		}
	}
	r, cc, s1, s2, d := scalars[0], scalars[1], scalars[2], scalars[3], scalars[4]

	var rho, omega, sigma1, sigma2, delta, mu ristretto.Scalar
	rho.Add(r, &st.t1)
	omega.Add(cc, &st.t2)
	sigma1.Mul(&st.gamma, s1)
	sigma1.Add(&sigma1, &st.t3)
	sigma2.Mul(&st.gamma, s2)
	sigma2.Add(&sigma2, &st.t5)
	delta.Add(d, &st.t4)
	mu.Mul(&delta, &st.gamma)
	mu.Sub(&st.tau, &mu)

	sigCommitment := make([]byte, 0, abeSigCommitmentValues*ValueSize)
	sigCommitment = append(sigCommitment, st.zeta.Bytes()...)
	sigCommitment = append(sigCommitment, st.zeta1.Bytes()...)

	sigResponse := make([]byte, 0, abeSigResponseValues*ValueSize)
	sigResponse = append(sigResponse, rho.Bytes()...)
	sigResponse = append(sigResponse, omega.Bytes()...)
	sigResponse = append(sigResponse, sigma1.Bytes()...)
	sigResponse = append(sigResponse, sigma2.Bytes()...)
	sigResponse = append(sigResponse, delta.Bytes()...)
	sigResponse = append(sigResponse, mu.Bytes()...)

	sig := &Signature{Commitment: sigCommitment, Response: sigResponse}
	ok2, err := abeVerify(c.pub, msg, sig)
	if err != nil {
		return nil, err
	}
	if !ok2 {
		return nil, ErrVerificationFailed
	}
	return sig, nil
}

func (c *AbeClient) Verify(msg []byte, sig *Signature) bool {
	ok, err := abeVerify(c.pub, msg, sig)
	return err == nil && ok
}

// abeVerify checks ω + δ == H₃(ζ, ζ₁, ρG + ωy, σ₁G + δζ₁, σ₂h + δζ₂,
// μz + δζ, m) with a constant-time comparison.
func abeVerify(pub *AbePublicKey, msg []byte, sig *Signature) (bool, error) {
	commitParts, err := splitValues(sig.Commitment, abeSigCommitmentValues)
	if err != nil {
		return false, err
	}
	zeta, err := decodePoint(commitParts[0])
	if err != nil {
		return false, err
	}
	zeta1, err := decodePoint(commitParts[1])
	if err != nil {
		return false, err
	}

	respParts, err := splitValues(sig.Response, abeSigResponseValues)
	if err != nil {
		return false, err
	}
	scalars := make([]*ristretto.Scalar, abeSigResponseValues)
	for i, part := range respParts {
		if scalars[i], err = decodeScalar(part); err != nil {
			return false, err
		}
	}
	rho, omega, sigma1, sigma2, delta, mu :=
		scalars[0], scalars[1], scalars[2], scalars[3], scalars[4], scalars[5]

	var zeta2 ristretto.Point
	zeta2.Sub(zeta, zeta1)

	var alpha, beta1, beta2, eta, tmp ristretto.Point
	alpha.ScalarMultBase(rho)
	tmp.ScalarMult(&pub.y, omega)
	alpha.Add(&alpha, &tmp)

	beta1.ScalarMultBase(sigma1)
	tmp.ScalarMult(zeta1, delta)
	beta1.Add(&beta1, &tmp)

	beta2.ScalarMult(abeAltGen, sigma2)
	tmp.ScalarMult(&zeta2, delta)
	beta2.Add(&beta2, &tmp)

	eta.ScalarMult(&pub.z, mu)
	tmp.ScalarMult(zeta, delta)
	eta.Add(&eta, &tmp)

	h3 := scalarFromHash(abeChalOracle,
		zeta.Bytes(), zeta1.Bytes(),
		alpha.Bytes(), beta1.Bytes(), beta2.Bytes(), eta.Bytes(), msg)

	var sum ristretto.Scalar
	sum.Add(omega, delta)
	return subtle.ConstantTimeCompare(sum.Bytes(), h3.Bytes()) == 1, nil
}

// splitValues cuts b into n protocol values, rejecting any other length.
func splitValues(b []byte, n int) ([][]byte, error) {
	if len(b) != n*ValueSize {
		return nil, ErrMalformedInput
	}
	parts := make([][]byte, n)
	for i := range parts {
		parts[i] = b[i*ValueSize : (i+1)*ValueSize]
	}
	return parts, nil
}

var (
	errWrongSecretScheme = errors.New("blindsig: session secret belongs to a different scheme")
	errWrongStateScheme  = errors.New("blindsig: blinding state belongs to a different scheme")
)
