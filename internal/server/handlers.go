package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/job"
	"github.com/maauso/vidgen/internal/storage"
)

// DefaultMaxBodyBytes bounds request bodies carrying inline images.
const DefaultMaxBodyBytes = 32 << 20

// DefaultKeepAlive is the interval between SSE keep-alive comments.
const DefaultKeepAlive = 15 * time.Second

// GenerationService creates and reads generation records. *job.Service
// satisfies it.
type GenerationService interface {
	Create(ctx context.Context, in job.CreateInput) (*job.Generation, error)
	Get(ctx context.Context, ownerID, id string) (*job.Generation, error)
	List(ctx context.Context, ownerID string) ([]*job.Generation, error)
}

// Subscriber delivers live updates of one record. *events.Hub satisfies it.
type Subscriber interface {
	Subscribe(topic string) (<-chan []byte, func())
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service      GenerationService
	temp         storage.TempStore
	events       Subscriber
	validator    *validator.Validate
	logger       *slog.Logger
	maxBodyBytes int64
	keepAlive    time.Duration
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxBodyBytes sets the request body limit.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithKeepAlive sets the SSE keep-alive interval.
func WithKeepAlive(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// NewHandlers creates a new Handlers instance. temp stores inline images and
// events feeds the SSE endpoint; either may be nil to disable the feature.
func NewHandlers(service GenerationService, temp storage.TempStore, events Subscriber, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:      service,
		temp:         temp,
		events:       events,
		validator:    validator.New(),
		logger:       logger,
		maxBodyBytes: DefaultMaxBodyBytes,
		keepAlive:    DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateGeneration handles POST /generations requests.
func (h *Handlers) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req CreateGenerationRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	ownerID := OwnerFrom(r.Context())
	input := job.CreateInput{
		OwnerID: ownerID,
		Request: req.toRequest(),
	}

	if len(req.ImagesBase64) > 0 {
		paths, status, err := h.saveImages(r.Context(), req.ImagesBase64)
		if err != nil {
			code := "INVALID_IMAGE"
			if status == http.StatusInternalServerError {
				code = "IMAGE_STORE_FAILED"
			}
			writeError(w, status, err.Error(), code)
			return
		}
		input.TempFiles = paths
		for _, p := range paths {
			input.Request.ImageURLs = append(input.Request.ImageURLs, storage.FileURI(p))
		}
	}

	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		status, code := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to create generation",
				slog.String("owner_id", ownerID),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, fault.Message(err), code)
		return
	}

	h.logger.Info("generation accepted",
		slog.String("generation_id", created.ID),
		slog.String("owner_id", ownerID),
		slog.String("model", string(created.Model)),
	)

	writeJSON(w, http.StatusAccepted, CreateGenerationResponse{
		ID:    created.ID,
		State: string(created.State),
	})
}

// GetGeneration handles GET /generations/{id} requests.
func (h *Handlers) GetGeneration(w http.ResponseWriter, r *http.Request) {
	g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newGenerationResponse(g))
}

// ListGenerations handles GET /generations requests.
func (h *Handlers) ListGenerations(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerFrom(r.Context())
	list, err := h.service.List(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to list generations",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list generations", "LIST_FAILED")
		return
	}

	resp := ListGenerationsResponse{Generations: make([]GenerationResponse, 0, len(list))}
	for _, g := range list {
		resp.Generations = append(resp.Generations, newGenerationResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

// StreamGeneration handles GET /generations/{id}/events requests. It sends
// the current record, then every update until the record is terminal or the
// client disconnects.
func (h *Handlers) StreamGeneration(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotImplemented, "event streaming is not enabled", "STREAMING_DISABLED")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "STREAMING_UNSUPPORTED")
		return
	}

	// Subscribe before reading the record so no update falls in between.
	msgCh, unsubscribe := h.events.Subscribe(r.PathValue("id"))
	defer unsubscribe()

	g, ok := h.lookup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")
	current, err := json.Marshal(newGenerationResponse(g))
	if err != nil {
		h.logger.Error("failed to encode generation", slog.String("error", err.Error()))
		return
	}
	writeEvent(w, current)
	flusher.Flush()
	if g.State.IsTerminal() {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, open := <-msgCh:
			if !open {
				return
			}
			var update job.Generation
			if err := json.Unmarshal(msg, &update); err != nil {
				h.logger.Warn("dropping undecodable update", slog.String("error", err.Error()))
				continue
			}
			data, err := json.Marshal(newGenerationResponse(&update))
			if err != nil {
				continue
			}
			writeEvent(w, data)
			flusher.Flush()
			if update.State.IsTerminal() {
				return
			}
		}
	}
}

// lookup loads the caller's record named by the path, writing the error
// response when it cannot.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*job.Generation, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "generation ID is required", "MISSING_GENERATION_ID")
		return nil, false
	}

	g, err := h.service.Get(r.Context(), OwnerFrom(r.Context()), id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "generation not found", "GENERATION_NOT_FOUND")
			return nil, false
		}
		h.logger.Error("failed to get generation",
			slog.String("generation_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get generation", "GENERATION_FETCH_FAILED")
		return nil, false
	}
	return g, true
}

// saveImages decodes inline images and stores them as temp files. On failure
// nothing is left behind and the returned status says whose fault it was.
func (h *Handlers) saveImages(ctx context.Context, images []string) ([]string, int, error) {
	if h.temp == nil {
		return nil, http.StatusBadRequest, errors.New("inline images are not accepted")
	}

	decoded := make([][]byte, len(images))
	for i, img := range images {
		data, err := decodeImage(img)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("images_base64[%d]: %w", i, err)
		}
		decoded[i] = data
	}

	paths := make([]string, 0, len(decoded))
	for i, data := range decoded {
		p, err := h.temp.SaveTemp(ctx, fmt.Sprintf("image_%d", i), bytes.NewReader(data))
		if err != nil {
			h.logger.Error("failed to store inline image",
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			if cerr := h.temp.CleanupTemp(context.WithoutCancel(ctx), paths); cerr != nil {
				h.logger.Warn("failed to remove temp files", slog.String("error", cerr.Error()))
			}
			return nil, http.StatusInternalServerError, errors.New("failed to store inline image")
		}
		paths = append(paths, p)
	}
	return paths, http.StatusOK, nil
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok || !strings.Contains(s[:len(s)-len(payload)], ";base64") {
			return nil, errors.New("data URL must be base64 encoded")
		}
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.New("invalid base64 data")
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return data, nil
}

// statusForError maps a failure to its HTTP status and error code.
func statusForError(err error) (int, string) {
	switch fault.KindOf(err) {
	case fault.KindRequest:
		return http.StatusBadRequest, "INVALID_REQUEST"
	case fault.KindAuth:
		return http.StatusUnauthorized, "PROVIDER_AUTH_FAILED"
	case fault.KindQuota:
		return http.StatusPaymentRequired, "QUOTA_EXCEEDED"
	case fault.KindRateLimit:
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case fault.KindTimeout:
		return http.StatusGatewayTimeout, "PROVIDER_TIMEOUT"
	case fault.KindProvider:
		return http.StatusBadGateway, "PROVIDER_ERROR"
	case fault.KindProtocol:
		return http.StatusBadGateway, "PROVIDER_PROTOCOL_ERROR"
	case fault.KindUpload:
		return http.StatusBadGateway, "UPLOAD_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeEvent writes one SSE data frame.
func writeEvent(w http.ResponseWriter, data []byte) {
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
