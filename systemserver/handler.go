package systemserver

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/o11y"
)

// Handler wires a Server to the /health and /generate HTTP endpoints.
type Handler struct {
	server *Server
	logger *o11y.Logger
}

// NewHandler builds a Handler for server.
func NewHandler(server *Server, logger *o11y.Logger) *Handler {
	return &Handler{server: server, logger: logger}
}

// Register mounts the handler's routes on router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/generate", h.handleGenerate).Methods(http.MethodPost)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready, state := h.server.Health()
	w.Header().Set("Content-Type", "application/json")
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": string(state)})
}

type generateRequest struct {
	OverallPrompt string  `json:"overall_prompt"`
	Duration      float64 `json:"duration"`
	Instrumental  bool    `json:"instrumental"`
	Lyrics        *string `json:"lyrics,omitempty"`
	Seed          int32   `json:"seed"`
}

type generateResponseMetadata struct {
	BatchSize   int     `json:"batch_size"`
	QueueWaitMs float64 `json:"queue_wait_ms"`
	GenerateMs  float64 `json:"generate_ms"`
	ModelWarm   bool    `json:"model_warm"`
}

type generateResponse struct {
	AudioB64   string                    `json:"audio_b64"`
	SampleRate int                       `json:"sample_rate"`
	Lyrics     *string                   `json:"lyrics,omitempty"`
	Metadata   generateResponseMetadata  `json:"metadata"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("systemserver.handleGenerate", "invalid request body"))
		return
	}

	result, err := h.server.Submit(r.Context(), Prompt{
		OverallPrompt: req.OverallPrompt,
		Duration:      req.Duration,
		Instrumental:  req.Instrumental,
		Lyrics:        req.Lyrics,
		Seed:          req.Seed,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := generateResponse{
		AudioB64:   base64.StdEncoding.EncodeToString(result.AudioBytes),
		SampleRate: result.SampleRate,
		Lyrics:     result.Lyrics,
		Metadata: generateResponseMetadata{
			BatchSize:   result.Metadata.BatchSize,
			QueueWaitMs: result.Metadata.QueueWaitMs,
			GenerateMs:  result.Metadata.GenerateMs,
			ModelWarm:   result.Metadata.ModelWarm,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	detail := err.Error()

	var appErr *apperrors.AppError
	if as, ok := err.(*apperrors.AppError); ok {
		appErr = as
	}
	if appErr != nil {
		status = appErr.HTTPStatus()
		code = string(appErr.Code)
		if appErr.Code == apperrors.CodeBusy {
			w.Header().Set("Retry-After", strconv.Itoa(1))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail, "code": code})
}
