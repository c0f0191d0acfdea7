package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/vidgen/internal/events"
	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/generator"
	"github.com/maauso/vidgen/internal/job"
)

// mockService implements GenerationService for testing.
type mockService struct {
	mock.Mock
}

func (m *mockService) Create(ctx context.Context, in job.CreateInput) (*job.Generation, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Generation), args.Error(1)
}

func (m *mockService) Get(ctx context.Context, ownerID, id string) (*job.Generation, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Generation), args.Error(1)
}

func (m *mockService) List(ctx context.Context, ownerID string) ([]*job.Generation, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*job.Generation), args.Error(1)
}

// mockStorage implements storage.TempStore for testing.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) OpenTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockStorage) CleanupTemp(ctx context.Context, paths []string) error {
	args := m.Called(ctx, paths)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T) (*Handlers, *mockService, *mockStorage, *events.Hub) {
	t.Helper()
	svc := &mockService{}
	temp := &mockStorage{}
	hub := events.NewHub()
	h := NewHandlers(svc, temp, hub, testLogger(), WithKeepAlive(time.Hour))
	return h, svc, temp, hub
}

func newRecord(owner string, state generator.State) *job.Generation {
	g := job.New(owner, generator.Request{Prompt: "a cat surfing", Model: generator.ModelVeo3})
	g.State = state
	return g
}

func postJSON(t *testing.T, target string, body any) *http.Request {
	t.Helper()
	bodyJSON, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(bodyJSON))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateGeneration_Success(t *testing.T) {
	h, svc, _, _ := newTestHandlers(t)
	created := newRecord(AnonymousOwner, generator.StateIdle)

	svc.On("Create", mock.Anything, job.CreateInput{
		OwnerID: AnonymousOwner,
		Request: generator.Request{
			Prompt:      "a cat surfing",
			Model:       generator.ModelVeo3,
			ImageURLs:   []string{"https://x/1.png"},
			AspectRatio: generator.AspectPortrait,
			Duration:    generator.DurationFrames,
		},
	}).Return(created, nil).Once()

	req := postJSON(t, "/generations", CreateGenerationRequest{
		Prompt:      "a cat surfing",
		Model:       "veo3",
		ImageURLs:   []string{"https://x/1.png"},
		AspectRatio: "9:16",
		Duration:    8,
	})
	rec := httptest.NewRecorder()

	h.CreateGeneration(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateGenerationResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, created.ID, resp.ID)
	assert.Equal(t, "idle", resp.State)
	svc.AssertExpectations(t)
}

func TestCreateGeneration_InlineImages(t *testing.T) {
	h, svc, temp, _ := newTestHandlers(t)

	temp.On("SaveTemp", mock.Anything, "image_0", mock.Anything).
		Run(func(args mock.Arguments) {
			data, _ := io.ReadAll(args.Get(2).(io.Reader))
			assert.Equal(t, []byte("png-bytes"), data)
		}).
		Return("/tmp/vidgen/image_0_1", nil).Once()
	temp.On("SaveTemp", mock.Anything, "image_1", mock.Anything).
		Return("/tmp/vidgen/image_1_2", nil).Once()

	svc.On("Create", mock.Anything, mock.MatchedBy(func(in job.CreateInput) bool {
		return assert.ObjectsAreEqual([]string{
			"https://x/1.png",
			"file:///tmp/vidgen/image_0_1",
			"file:///tmp/vidgen/image_1_2",
		}, in.Request.ImageURLs) &&
			assert.ObjectsAreEqual([]string{"/tmp/vidgen/image_0_1", "/tmp/vidgen/image_1_2"}, in.TempFiles)
	})).Return(newRecord(AnonymousOwner, generator.StateIdle), nil).Once()

	req := postJSON(t, "/generations", CreateGenerationRequest{
		Prompt:    "a cat surfing",
		Model:     "veo3",
		ImageURLs: []string{"https://x/1.png"},
		ImagesBase64: []string{
			base64.StdEncoding.EncodeToString([]byte("png-bytes")),
			"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("more-bytes")),
		},
	})
	rec := httptest.NewRecorder()

	h.CreateGeneration(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertExpectations(t)
	temp.AssertExpectations(t)
}

func TestCreateGeneration_InvalidInlineImage(t *testing.T) {
	h, svc, temp, _ := newTestHandlers(t)

	req := postJSON(t, "/generations", CreateGenerationRequest{
		Prompt:       "a cat surfing",
		Model:        "veo3",
		ImagesBase64: []string{"not base64!"},
	})
	rec := httptest.NewRecorder()

	h.CreateGeneration(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INVALID_IMAGE", resp.Code)
	temp.AssertNotCalled(t, "SaveTemp", mock.Anything, mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateGeneration_TempStoreFailureCleansUp(t *testing.T) {
	h, svc, temp, _ := newTestHandlers(t)

	temp.On("SaveTemp", mock.Anything, "image_0", mock.Anything).Return("/tmp/vidgen/a", nil).Once()
	temp.On("SaveTemp", mock.Anything, "image_1", mock.Anything).Return("", errors.New("disk full")).Once()
	temp.On("CleanupTemp", mock.Anything, []string{"/tmp/vidgen/a"}).Return(nil).Once()

	req := postJSON(t, "/generations", CreateGenerationRequest{
		Prompt: "a cat surfing",
		Model:  "veo3",
		ImagesBase64: []string{
			base64.StdEncoding.EncodeToString([]byte("a")),
			base64.StdEncoding.EncodeToString([]byte("b")),
		},
	})
	rec := httptest.NewRecorder()

	h.CreateGeneration(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	temp.AssertExpectations(t)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateGeneration_InvalidJSON(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/generations", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.CreateGeneration(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "INVALID_JSON", resp.Code)
}

func TestCreateGeneration_BodyTooLarge(t *testing.T) {
	svc := &mockService{}
	h := NewHandlers(svc, nil, nil, testLogger(), WithMaxBodyBytes(64))

	req := postJSON(t, "/generations", CreateGenerationRequest{
		Prompt: strings.Repeat("x", 200),
		Model:  "veo3",
	})
	rec := httptest.NewRecorder()

	h.CreateGeneration(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCreateGeneration_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body CreateGenerationRequest
	}{
		{"missing model", CreateGenerationRequest{Prompt: "cat"}},
		{"bad aspect ratio", CreateGenerationRequest{Prompt: "cat", Model: "veo3", AspectRatio: "4:3"}},
		{"bad duration", CreateGenerationRequest{Prompt: "cat", Model: "sora-2", Duration: 12}},
		{"image URL not a URL", CreateGenerationRequest{Prompt: "cat", Model: "veo3", ImageURLs: []string{"nope"}}},
		{"too many images", CreateGenerationRequest{Prompt: "cat", Model: "veo3", ImageURLs: []string{
			"https://x/1.png", "https://x/2.png", "https://x/3.png", "https://x/4.png",
		}}},
		{"bad callback", CreateGenerationRequest{Prompt: "cat", Model: "veo3", CallbackURL: "hook"}},
		{"local file image URL", CreateGenerationRequest{Prompt: "cat", Model: "veo3", ImageURLs: []string{"file:///etc/passwd"}}},
		{"local file video URL", CreateGenerationRequest{Model: "sora-watermark-remover", VideoURL: "file:///etc/passwd"}},
		{"non-http callback", CreateGenerationRequest{Prompt: "cat", Model: "veo3", CallbackURL: "ftp://cb.example.com/hook"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc, _, _ := newTestHandlers(t)
			rec := httptest.NewRecorder()

			h.CreateGeneration(rec, postJSON(t, "/generations", tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateGeneration_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"routing rejects", fault.New(fault.KindRequest, "generator.route", "prompt is required"), http.StatusBadRequest, "INVALID_REQUEST", "prompt is required"},
		{"store unavailable", errors.New("redis: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR", "redis: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc, _, _ := newTestHandlers(t)
			svc.On("Create", mock.Anything, mock.Anything).Return(nil, tt.err).Once()
			rec := httptest.NewRecorder()

			h.CreateGeneration(rec, postJSON(t, "/generations", CreateGenerationRequest{Model: "veo3"}))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantMsg, resp.Error)
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		kind   fault.Kind
		status int
	}{
		{fault.KindRequest, http.StatusBadRequest},
		{fault.KindAuth, http.StatusUnauthorized},
		{fault.KindQuota, http.StatusPaymentRequired},
		{fault.KindRateLimit, http.StatusTooManyRequests},
		{fault.KindTimeout, http.StatusGatewayTimeout},
		{fault.KindProvider, http.StatusBadGateway},
		{fault.KindProtocol, http.StatusBadGateway},
		{fault.KindUpload, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			status, code := statusForError(fault.New(tt.kind, "op", "msg"))
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, code)
		})
	}

	status, code := statusForError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", code)
}

func TestGetGeneration_Success(t *testing.T) {
	h, svc, _, _ := newTestHandlers(t)
	g := newRecord(AnonymousOwner, generator.StateSuccess)
	g.TaskID = "t1"
	g.ResultURL = "https://x/y.mp4"
	g.CompletedAt = time.Now()
	svc.On("Get", mock.Anything, AnonymousOwner, g.ID).Return(g, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/generations/"+g.ID, nil)
	req.SetPathValue("id", g.ID)
	rec := httptest.NewRecorder()

	h.GetGeneration(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp GenerationResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, g.ID, resp.ID)
	assert.Equal(t, "success", resp.State)
	assert.Equal(t, "t1", resp.TaskID)
	assert.Equal(t, "https://x/y.mp4", resp.ResultURL)
	assert.NotNil(t, resp.CompletedAt)
}

func TestGetGeneration_Failed(t *testing.T) {
	h, svc, _, _ := newTestHandlers(t)
	g := newRecord(AnonymousOwner, generator.StateFail)
	g.Error = "insufficient credits"
	g.ErrorKind = fault.KindQuota
	svc.On("Get", mock.Anything, AnonymousOwner, g.ID).Return(g, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/generations/"+g.ID, nil)
	req.SetPathValue("id", g.ID)
	rec := httptest.NewRecorder()

	h.GetGeneration(rec, req)

	var resp GenerationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "fail", resp.State)
	assert.Equal(t, "insufficient credits", resp.Error)
	assert.Equal(t, fault.KindQuota, resp.ErrorKind)
	assert.Nil(t, resp.CompletedAt)
}

func TestGetGeneration_NotFound(t *testing.T) {
	h, svc, _, _ := newTestHandlers(t)
	svc.On("Get", mock.Anything, AnonymousOwner, "gen_missing").Return(nil, job.ErrNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/generations/gen_missing", nil)
	req.SetPathValue("id", "gen_missing")
	rec := httptest.NewRecorder()

	h.GetGeneration(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "GENERATION_NOT_FOUND", resp.Code)
}

func TestGetGeneration_MissingID(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/generations/", nil)
	rec := httptest.NewRecorder()

	h.GetGeneration(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGeneration_UsesOwnerFromContext(t *testing.T) {
	h, svc, _, _ := newTestHandlers(t)
	svc.On("Get", mock.Anything, "user-7", "gen_x").Return(nil, job.ErrNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/generations/gen_x", nil)
	req = req.WithContext(WithOwner(req.Context(), "user-7"))
	req.SetPathValue("id", "gen_x")
	rec := httptest.NewRecorder()

	h.GetGeneration(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	svc.AssertExpectations(t)
}

func TestListGenerations(t *testing.T) {
	h, svc, _, _ := newTestHandlers(t)
	newer := newRecord(AnonymousOwner, generator.StateQueueing)
	older := newRecord(AnonymousOwner, generator.StateSuccess)
	svc.On("List", mock.Anything, AnonymousOwner).Return([]*job.Generation{newer, older}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/generations", nil)
	rec := httptest.NewRecorder()

	h.ListGenerations(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ListGenerationsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Generations, 2)
	assert.Equal(t, newer.ID, resp.Generations[0].ID)
	assert.Equal(t, older.ID, resp.Generations[1].ID)
}

func TestListGenerations_Empty(t *testing.T) {
	h, svc, _, _ := newTestHandlers(t)
	svc.On("List", mock.Anything, AnonymousOwner).Return([]*job.Generation{}, nil).Once()

	rec := httptest.NewRecorder()
	h.ListGenerations(rec, httptest.NewRequest(http.MethodGet, "/generations", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"generations":[]}`, rec.Body.String())
}

// readEvents returns the data frames of an SSE stream until it ends.
func readEvents(t *testing.T, body io.Reader, onFrame func(n int)) []GenerationResponse {
	t.Helper()
	var out []GenerationResponse
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var g GenerationResponse
		require.NoError(t, json.Unmarshal([]byte(data), &g))
		out = append(out, g)
		if onFrame != nil {
			onFrame(len(out))
		}
	}
	return out
}

func TestStreamGeneration(t *testing.T) {
	h, svc, _, hub := newTestHandlers(t)
	g := newRecord(AnonymousOwner, generator.StateQueueing)
	svc.On("Get", mock.Anything, AnonymousOwner, g.ID).Return(g, nil).Once()

	server := httptest.NewServer(NewRouter(h, testLogger(), DefaultConfig()))
	defer server.Close()

	resp, err := http.Get(server.URL + "/generations/" + g.ID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	publish := func(state generator.State, resultURL string) {
		update := newRecord(AnonymousOwner, state)
		update.ID = g.ID
		update.ResultURL = resultURL
		msg, err := json.Marshal(update)
		require.NoError(t, err)
		hub.Publish(g.ID, msg)
	}

	frames := readEvents(t, resp.Body, func(n int) {
		if n == 1 {
			publish(generator.StateGenerating, "")
			publish(generator.StateSuccess, "https://x/y.mp4")
		}
	})

	require.Len(t, frames, 3)
	assert.Equal(t, "queueing", frames[0].State)
	assert.Equal(t, "generating", frames[1].State)
	assert.Equal(t, "success", frames[2].State)
	assert.Equal(t, "https://x/y.mp4", frames[2].ResultURL)
	assert.Equal(t, 0, hub.Subscribers(g.ID))
}

func TestStreamGeneration_TerminalRecordEndsImmediately(t *testing.T) {
	h, svc, _, hub := newTestHandlers(t)
	g := newRecord(AnonymousOwner, generator.StateFail)
	svc.On("Get", mock.Anything, AnonymousOwner, g.ID).Return(g, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/generations/"+g.ID+"/events", nil)
	req.SetPathValue("id", g.ID)
	rec := httptest.NewRecorder()

	h.StreamGeneration(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), ": connected\n\n"))
	frames := readEvents(t, rec.Body, nil)
	require.Len(t, frames, 1)
	assert.Equal(t, "fail", frames[0].State)
	assert.Equal(t, 0, hub.Subscribers(g.ID))
}

func TestStreamGeneration_NotFound(t *testing.T) {
	h, svc, _, _ := newTestHandlers(t)
	svc.On("Get", mock.Anything, AnonymousOwner, "gen_x").Return(nil, job.ErrNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/generations/gen_x/events", nil)
	req.SetPathValue("id", "gen_x")
	rec := httptest.NewRecorder()

	h.StreamGeneration(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamGeneration_ClientDisconnect(t *testing.T) {
	h, svc, _, hub := newTestHandlers(t)
	g := newRecord(AnonymousOwner, generator.StateGenerating)
	svc.On("Get", mock.Anything, AnonymousOwner, g.ID).Return(g, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/generations/"+g.ID+"/events", nil).WithContext(ctx)
	req.SetPathValue("id", g.ID)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.StreamGeneration(rec, req)
	}()

	require.Eventually(t, func() bool { return hub.Subscribers(g.ID) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end after client disconnect")
	}
	assert.Equal(t, 0, hub.Subscribers(g.ID))
}

func TestStreamGeneration_Disabled(t *testing.T) {
	h := NewHandlers(&mockService{}, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/generations/gen_x/events", nil)
	req.SetPathValue("id", "gen_x")
	rec := httptest.NewRecorder()

	h.StreamGeneration(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRouter_Integration(t *testing.T) {
	h, svc, _, _ := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())
	created := newRecord(AnonymousOwner, generator.StateIdle)

	svc.On("Create", mock.Anything, mock.Anything).Return(created, nil).Once()
	svc.On("Get", mock.Anything, AnonymousOwner, created.ID).Return(created, nil).Once()
	svc.On("List", mock.Anything, AnonymousOwner).Return([]*job.Generation{created}, nil).Once()

	// Test health endpoint
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Test POST /generations
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, postJSON(t, "/generations", CreateGenerationRequest{Prompt: "cat", Model: "sora-2"}))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var createResp CreateGenerationResponse
	err := json.NewDecoder(rec.Body).Decode(&createResp)
	require.NoError(t, err)

	// Test GET /generations/{id}
	req = httptest.NewRequest(http.MethodGet, "/generations/"+createResp.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Test GET /generations
	req = httptest.NewRequest(http.MethodGet, "/generations", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Unknown method
	req = httptest.NewRequest(http.MethodDelete, "/generations/"+createResp.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	svc.AssertExpectations(t)
}

func TestDecodeImage(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("img"))

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"plain base64", raw, []byte("img"), false},
		{"data URL", "data:image/jpeg;base64," + raw, []byte("img"), false},
		{"data URL without base64", "data:image/jpeg," + raw, nil, true},
		{"invalid", "@@@", nil, true},
		{"empty payload", "data:image/png;base64,", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeImage(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
