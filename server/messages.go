package server

import (
	"encoding/hex"

	"github.com/rozbb/blindsig-benches/blindsig"
)

// The three protocol legs carry 32-byte curve values hex-encoded in JSON.

// SessionResponse is the leg 1 response.
type SessionResponse struct {
	SessionID  string `json:"session_id"`
	Commitment string `json:"commitment"`
}

// ChallengeRequest is the leg 2 request.
type ChallengeRequest struct {
	SessionID        string `json:"session_id"`
	BlindedChallenge string `json:"blinded_challenge"`
}

// ChallengeResponse is the leg 2 response.
type ChallengeResponse struct {
	Response string `json:"response"`
}

// FinalizeRequest is the leg 3 request carrying the unblinded signature over
// the client's message.
type FinalizeRequest struct {
	SessionID     string `json:"session_id"`
	Message       string `json:"message"`
	SigCommitment string `json:"sig_commitment"`
	SigResponse   string `json:"sig_response"`
}

// FinalizeResponse is the leg 3 response.
type FinalizeResponse struct {
	Verified bool `json:"verified"`
}

// PublicKeyResponse carries the signer's public key and the scheme it runs,
// so clients can refuse a scheme mismatch up front.
type PublicKeyResponse struct {
	PublicKey string `json:"public_key"`
	Scheme    string `json:"scheme"`
}

// EncodeValue hex-encodes a protocol value for the wire.
func EncodeValue(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeValue decodes a hex protocol value, mapping any garbage to
// ErrMalformedInput.
func DecodeValue(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, blindsig.ErrMalformedInput
	}
	return b, nil
}
