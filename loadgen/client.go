package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rozbb/blindsig-benches/blindsig"
	"github.com/rozbb/blindsig-benches/server"
)

// ErrProtocolViolation indicates the server rejected a request for a
// non-transient reason (bad input, unknown or stale session). These are never
// retried: the session is gone and retrying the same leg cannot succeed.
var ErrProtocolViolation = errors.New("loadgen: protocol violation")

// Client performs full issuance round-trips against one signer.
type Client struct {
	http    *http.Client
	baseURL string
	scheme  blindsig.ClientScheme
	backoff *Backoff
	msg     []byte

	includeBackoffWait bool
}

// NewClient builds a client from the run config, fetching the signer's public
// key once up front. It fails if the signer runs a different scheme than the
// config names.
func NewClient(cfg *Config, baseURL string) (*Client, error) {
	c := &Client{
		http:               &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:            baseURL,
		backoff:            cfg.backoff(),
		msg:                []byte(cfg.Message),
		includeBackoffWait: cfg.IncludeBackoffWait,
	}

	scheme, err := c.fetchScheme(context.Background(), cfg.Scheme)
	if err != nil {
		return nil, fmt.Errorf("fetching signer public key: %w", err)
	}
	c.scheme = scheme
	return c, nil
}

// SchemeName returns the name of the scheme the client negotiated.
func (c *Client) SchemeName() string {
	return c.scheme.Name()
}

func (c *Client) fetchScheme(ctx context.Context, want string) (blindsig.ClientScheme, error) {
	var resp server.PublicKeyResponse
	if err := c.do(ctx, http.MethodGet, "/pubkey", nil, &resp); err != nil {
		return nil, err
	}
	if want != "" && resp.Scheme != "" && resp.Scheme != want {
		return nil, fmt.Errorf("signer runs scheme %q, config wants %q", resp.Scheme, want)
	}
	raw, err := server.DecodeValue(resp.PublicKey)
	if err != nil {
		return nil, err
	}
	return blindsig.NewClientScheme(resp.Scheme, raw)
}

// RoundTrip runs one complete issuance: open a session, blind the challenge,
// obtain the response, unblind, and have the server verify the finished
// signature. It returns the elapsed request time and the number of retries
// spent on transient failures. Backoff sleeps are excluded from elapsed
// unless the run config says otherwise.
func (c *Client) RoundTrip(ctx context.Context) (elapsed time.Duration, retries int, err error) {
	start := time.Now()
	var waited time.Duration

	defer func() {
		elapsed = time.Since(start)
		if !c.includeBackoffWait {
			elapsed -= waited
		}
	}()

	// Leg 1: open a session, receive the nonce commitment.
	var sess server.SessionResponse
	w, r, err := c.retrying(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/session", nil, &sess)
	})
	waited += w
	retries += r
	if err != nil {
		return 0, retries, err
	}

	commitment, err := server.DecodeValue(sess.Commitment)
	if err != nil {
		return 0, retries, err
	}
	state, blinded, err := c.scheme.Blind(c.msg, commitment)
	if err != nil {
		return 0, retries, err
	}

	// Leg 2: send the blinded challenge, receive the blinded response.
	var chal server.ChallengeResponse
	w, r, err = c.retrying(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/challenge", &server.ChallengeRequest{
			SessionID:        sess.SessionID,
			BlindedChallenge: server.EncodeValue(blinded),
		}, &chal)
	})
	waited += w
	retries += r
	if err != nil {
		return 0, retries, err
	}

	response, err := server.DecodeValue(chal.Response)
	if err != nil {
		return 0, retries, err
	}
	sig, err := c.scheme.Unblind(state, c.msg, response)
	if err != nil {
		return 0, retries, err
	}

	// Leg 3: present the unblinded signature for verification.
	var fin server.FinalizeResponse
	w, r, err = c.retrying(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/finalize", &server.FinalizeRequest{
			SessionID:     sess.SessionID,
			Message:       server.EncodeValue(c.msg),
			SigCommitment: server.EncodeValue(sig.Commitment),
			SigResponse:   server.EncodeValue(sig.Response),
		}, &fin)
	})
	waited += w
	retries += r
	if err != nil {
		return 0, retries, err
	}
	if !fin.Verified {
		return 0, retries, fmt.Errorf("%w: signature rejected", ErrProtocolViolation)
	}

	return 0, retries, nil
}

// retrying runs fn under the backoff policy, retrying transient failures
// only. It reports the total time slept in backoff and the retry count.
func (c *Client) retrying(ctx context.Context, fn func() error) (waited time.Duration, retries int, err error) {
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return waited, retries, err
		}
		if attempt >= c.backoff.MaxAttempts {
			return waited, retries, fmt.Errorf("%w: %s", ErrExhausted, err)
		}

		wait := c.backoff.Wait(attempt)
		select {
		case <-time.After(wait):
			waited += wait
			retries++
		case <-ctx.Done():
			return waited, retries, ctx.Err()
		}
	}
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.status, e.body)
}

// isTransient reports whether the failure is worth retrying: connection-level
// errors and the explicit back-pressure statuses. Protocol rejections are
// final.
func isTransient(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests ||
			statusErr.status == http.StatusServiceUnavailable
	}
	if errors.Is(err, ErrProtocolViolation) {
		return false
	}
	// Everything else from the http client is connection trouble: refused,
	// reset, timeout.
	return true
}

// do sends one JSON request and decodes the response into out. Non-2xx
// responses become httpStatusError (transient for 429/503) or
// ErrProtocolViolation for the 4xx protocol rejections.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &httpStatusError{status: resp.StatusCode, body: string(bytes.TrimSpace(raw))}
		if isTransient(statusErr) {
			return statusErr
		}
		return fmt.Errorf("%w: %s", ErrProtocolViolation, statusErr)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
