package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rozbb/blindsig-benches/blindsig"
	"github.com/rozbb/blindsig-benches/session"
)

// Handler exposes the signer over HTTP.
type Handler struct {
	signer *Signer
	log    *slog.Logger
}

// NewHandler wraps a signer with HTTP endpoints.
func NewHandler(signer *Signer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{signer: signer, log: log}
}

// RegisterRoutes registers the protocol endpoints with the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleInitSession)
	r.Post("/challenge", h.handleChallenge)
	r.Post("/finalize", h.handleFinalize)
	r.Get("/pubkey", h.handlePublicKey)
	r.Get("/stats", h.handleStats)
}

func (h *Handler) handleInitSession(w http.ResponseWriter, r *http.Request) {
	id, commitment, err := h.signer.InitSession(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(&SessionResponse{
		SessionID:  id,
		Commitment: EncodeValue(commitment),
	})
}

func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	blinded, err := DecodeValue(req.BlindedChallenge)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response, err := h.signer.IssueChallenge(r.Context(), req.SessionID, blinded)
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(&ChallengeResponse{Response: EncodeValue(response)})
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := DecodeValue(req.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sigCommitment, err := DecodeValue(req.SigCommitment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sigResponse, err := DecodeValue(req.SigResponse)
	if err != nil {
		h.writeError(w, err)
		return
	}

	verified, err := h.signer.Finalize(r.Context(), req.SessionID, msg, &blindsig.Signature{
		Commitment: sigCommitment,
		Response:   sigResponse,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	if !verified {
		// The session is consumed either way; tell the caller the proof
		// did not verify.
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(&FinalizeResponse{Verified: false})
		return
	}

	json.NewEncoder(w).Encode(&FinalizeResponse{Verified: true})
}

func (h *Handler) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(&PublicKeyResponse{
		PublicKey: EncodeValue(h.signer.PublicKey()),
		Scheme:    h.signer.SchemeName(),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.signer.Stats())
}

// writeError maps protocol errors to HTTP status codes:
// malformed crypto input → 400, unknown/expired session → 404,
// wrong-state session → 409, busy → 429.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, blindsig.ErrMalformedInput):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrUnknownSession):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrStaleSession):
		status = http.StatusConflict
	case errors.Is(err, ErrServerBusy):
		status = http.StatusTooManyRequests
	default:
		h.log.Error("internal signer error", "err", err)
		status = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), status)
}
