// Package blindsig implements blind signature schemes over the Ristretto255
// group, issued through a three-message protocol between a signer and a
// client. Two schemes are provided behind the ServerScheme/ClientScheme
// interfaces: blind Schnorr (the default) and the Abe blind signature.
//
// For blind Schnorr, following the notation of
// https://eprint.iacr.org/2019/877.pdf, the signer holds (x, X=xG) and the
// client holds (X, m):
//
//  1. Signer picks a nonce r and sends the commitment R = rG.
//  2. Client picks blinding factors α, β, computes R' = R + αG + βX and the
//     blinded challenge c = H(R', m) + β, and sends c.
//  3. Signer responds with s = r + c·x. The client checks sG == R + cX,
//     unblinds s' = s + α and keeps the signature σ = (R', s').
//
// Verification recomputes c' = H(R', m) and checks s'G == R' + c'X.
//
// The Abe scheme (https://www.iacr.org/archive/eurocrypt2001/20450135.pdf)
// runs through the same three legs with larger multi-value messages; see
// abe.go for the full derivation.
//
// Hashing is Blake2b-512 reduced modulo the group order (domain-separated
// keyed instances for Abe's independent oracles). All values on the wire are
// concatenations of 32-byte encodings of Ristretto points and scalars, and
// every scalar must be in canonical form. Randomness is drawn from the
// process-wide CSPRNG; there is no package-level mutable state.
package blindsig
