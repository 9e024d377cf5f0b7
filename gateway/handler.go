package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/o11y"
)

// Handler adapts a Gateway to gorilla/mux routes.
type Handler struct {
	gateway *Gateway
	logger  *o11y.Logger
}

// NewHandler creates a Handler.
func NewHandler(g *Gateway, logger *o11y.Logger) *Handler {
	return &Handler{gateway: g, logger: logger}
}

// Register wires the Gateway's routes onto router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/systems", h.handleSystems).Methods(http.MethodGet)
	router.HandleFunc("/prebaked", h.handlePrebaked).Methods(http.MethodGet)
	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/generate_battle", h.handleGenerateBattle).Methods(http.MethodPost)
	router.HandleFunc("/record_vote", h.handleRecordVote).Methods(http.MethodPost)
}

func (h *Handler) handleSystems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.ListSystems())
}

func (h *Handler) handlePrebaked(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.Prebaked())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateBattleRequest struct {
	Session Session       `json:"session"`
	User    User          `json:"user"`
	Prompt  PromptRequest `json:"prompt"`
}

func (h *Handler) handleGenerateBattle(w http.ResponseWriter, r *http.Request) {
	var wire generateBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, apperrors.Validation("gateway.handleGenerateBattle", "malformed request body"))
		return
	}

	resp, err := h.gateway.GenerateBattle(r.Context(), BattleRequest{
		Session: wire.Session,
		User:    wire.User,
		Prompt:  wire.Prompt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type recordVoteRequest struct {
	BattleUUID string `json:"battle_uuid"`
	Vote       Vote   `json:"vote"`
}

func (h *Handler) handleRecordVote(w http.ResponseWriter, r *http.Request) {
	var wire recordVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, apperrors.Validation("gateway.handleRecordVote", "malformed request body"))
		return
	}
	if wire.BattleUUID == "" {
		writeError(w, apperrors.Validation("gateway.handleRecordVote", "battle_uuid must not be empty"))
		return
	}

	resp, err := h.gateway.RecordVote(r.Context(), RecordVoteRequest{
		BattleUUID: wire.BattleUUID,
		Vote:       wire.Vote,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody mirrors the Gateway's wire error shape: {detail, code}.
type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		appErr = apperrors.Internal("gateway", err)
	}
	if appErr.Code == apperrors.CodeBusy {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, appErr.HTTPStatus(), errorBody{Detail: appErr.Message, Code: string(appErr.Code)})
}
