package blindsig

import (
	"fmt"
)

// Scheme names accepted by the constructors.
const (
	SchemeSchnorr = "schnorr"
	SchemeAbe     = "abe"
)

// ErrUnknownScheme indicates a scheme name no constructor recognizes.
var ErrUnknownScheme = fmt.Errorf("blindsig: unknown scheme")

// Secret is a scheme's per-session server state. It is single-use: Zero is
// called when the session consumes or abandons it.
type Secret interface {
	Zero()
}

// BlindState is a scheme's per-session client state, retained between the
// challenge and the unblinding. Implementations live in this package.
type BlindState interface {
	blindState()
}

// ServerScheme is the signer-side face of one blind-signature scheme. All
// protocol values cross it as wire encodings, so callers stay scheme-agnostic.
type ServerScheme interface {
	Name() string

	// PublicKeyBytes returns the wire encoding of the verification key.
	PublicKeyBytes() []byte

	// InitSession starts an issuance session, returning the retained secret
	// and the serialized commitment for the client.
	InitSession() (Secret, []byte)

	// IssueChallenge answers a blinded challenge using the session secret.
	IssueChallenge(secret Secret, blindedChallenge []byte) ([]byte, error)

	// VerifyFinalization checks a finished signature over msg.
	VerifyFinalization(msg []byte, sig *Signature) (bool, error)
}

// ClientScheme is the client-side face of one blind-signature scheme, bound
// to a signer's public key.
type ClientScheme interface {
	Name() string

	// Blind consumes the signer's commitment and produces the blinded
	// challenge plus the state needed to unblind the response.
	Blind(msg, commitment []byte) (BlindState, []byte, error)

	// Unblind validates the signer's response and strips the blinding,
	// yielding the final signature.
	Unblind(state BlindState, msg, response []byte) (*Signature, error)

	// Verify checks a finished signature over msg.
	Verify(msg []byte, sig *Signature) bool
}

// NewServerScheme builds a signer for the named scheme from a serialized
// private key. A nil key generates a fresh one; an empty name means Schnorr.
func NewServerScheme(name string, priv []byte) (ServerScheme, error) {
	switch name {
	case "", SchemeSchnorr:
		if priv == nil {
			p, _ := GenerateKey()
			return NewSchnorrServer(p), nil
		}
		p, err := NewPrivateKeyFromBytes(priv)
		if err != nil {
			return nil, err
		}
		return NewSchnorrServer(p), nil
	case SchemeAbe:
		if priv == nil {
			p, _ := GenerateAbeKey()
			return NewAbeServer(p), nil
		}
		p, err := NewAbePrivateKeyFromBytes(priv)
		if err != nil {
			return nil, err
		}
		return NewAbeServer(p), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
}

// NewClientScheme builds a client for the named scheme from a signer's
// serialized public key. An empty name means Schnorr.
func NewClientScheme(name string, pub []byte) (ClientScheme, error) {
	switch name {
	case "", SchemeSchnorr:
		p, err := NewPublicKeyFromBytes(pub)
		if err != nil {
			return nil, err
		}
		return &SchnorrClient{pub: p}, nil
	case SchemeAbe:
		p, err := NewAbePublicKeyFromBytes(pub)
		if err != nil {
			return nil, err
		}
		return &AbeClient{pub: p}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
}

// SchnorrServer adapts the blind Schnorr signer half to ServerScheme.
type SchnorrServer struct {
	priv *PrivateKey
	pub  *PublicKey
}

// NewSchnorrServer wraps a Schnorr private key as a ServerScheme.
func NewSchnorrServer(priv *PrivateKey) *SchnorrServer {
	return &SchnorrServer{priv: priv, pub: priv.Public()}
}

func (s *SchnorrServer) Name() string { return SchemeSchnorr }

func (s *SchnorrServer) PublicKeyBytes() []byte { return s.pub.Bytes() }

func (s *SchnorrServer) InitSession() (Secret, []byte) {
	return InitSession()
}

func (s *SchnorrServer) IssueChallenge(secret Secret, blindedChallenge []byte) ([]byte, error) {
	sec, ok := secret.(*SessionSecret)
	if !ok {
		return nil, errWrongSecretScheme
	}
	return IssueChallenge(s.priv, sec, blindedChallenge)
}

func (s *SchnorrServer) VerifyFinalization(msg []byte, sig *Signature) (bool, error) {
	return VerifyFinalization(s.pub, msg, sig)
}

// SchnorrClient adapts the blind Schnorr client half to ClientScheme.
type SchnorrClient struct {
	pub *PublicKey
}

func (c *SchnorrClient) Name() string { return SchemeSchnorr }

func (c *SchnorrClient) Blind(msg, commitment []byte) (BlindState, []byte, error) {
	return Blind(c.pub, msg, commitment)
}

func (c *SchnorrClient) Unblind(state BlindState, msg, response []byte) (*Signature, error) {
	st, ok := state.(*BlindingState)
	if !ok {
		return nil, errWrongStateScheme
	}
	return Unblind(c.pub, st, response)
}

func (c *SchnorrClient) Verify(msg []byte, sig *Signature) bool {
	return Verify(c.pub, msg, sig)
}

func (*BlindingState) blindState() {}
