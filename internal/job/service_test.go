package job

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/generator"
	"github.com/maauso/vidgen/internal/poller"
)

// scriptedRunner replays a fixed progress sequence and outcome.
type scriptedRunner struct {
	onProgress func(generator.State)
	states     []generator.State
	taskID     string
	resultURL  string
	err        error
	block      <-chan struct{}

	mu  sync.Mutex
	req generator.Request
}

func (r *scriptedRunner) Generate(ctx context.Context, req generator.Request) (string, error) {
	r.mu.Lock()
	r.req = req
	r.mu.Unlock()

	for _, s := range r.states {
		r.onProgress(s)
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.resultURL, r.err
}

func (r *scriptedRunner) Task() (poller.Task, bool) {
	if r.taskID == "" {
		return poller.Task{}, false
	}
	return poller.Task{ID: r.taskID}, true
}

func factoryFor(r *scriptedRunner) RunnerFactory {
	return func(onProgress func(generator.State)) Runner {
		r.onProgress = onProgress
		return r
	}
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	topics   []string
	messages []Generation
}

func (b *recordingBroadcaster) Publish(topic string, msg []byte) {
	var g Generation
	_ = json.Unmarshal(msg, &g)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.messages = append(b.messages, g)
}

func (b *recordingBroadcaster) states() []generator.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]generator.State, len(b.messages))
	for i := range b.messages {
		out[i] = b.messages[i].State
	}
	return out
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, g *Generation) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

type mockTempStore struct {
	mock.Mock
}

func (m *mockTempStore) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

func (m *mockTempStore) OpenTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	return nil, args.Error(1)
}

func (m *mockTempStore) CleanupTemp(ctx context.Context, paths []string) error {
	args := m.Called(ctx, paths)
	return args.Error(0)
}

func TestService_CreateRunsToSuccess(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &scriptedRunner{
		states: []generator.State{
			generator.StateSubmitting,
			generator.StateQueueing,
			generator.StateGenerating,
			generator.StateGenerating,
			generator.StateSuccess,
		},
		taskID:    "t1",
		resultURL: "https://x/y.mp4",
	}
	hub := &recordingBroadcaster{}
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(g *Generation) bool {
		return g.State == generator.StateSuccess && g.ResultURL == "https://x/y.mp4"
	})).Return(nil).Once()
	temp := &mockTempStore{}
	temp.On("CleanupTemp", mock.Anything, []string{"/tmp/vidgen/img_1"}).Return(nil).Once()

	svc := NewService(repo, generator.NewRouter(), factoryFor(runner),
		WithBroadcaster(hub), WithNotifier(notifier), WithTempStore(temp))

	req := generator.Request{Prompt: "cat", Model: generator.ModelVeo3, ImageURLs: []string{"file:///tmp/vidgen/img_1"}}
	g, err := svc.Create(context.Background(), CreateInput{
		OwnerID:   "user-1",
		Request:   req,
		TempFiles: []string{"/tmp/vidgen/img_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, generator.StateIdle, g.State)
	svc.Wait()

	got, err := svc.Get(context.Background(), "user-1", g.ID)
	require.NoError(t, err)
	assert.Equal(t, generator.StateSuccess, got.State)
	assert.Equal(t, "https://x/y.mp4", got.ResultURL)
	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, req, runner.req)

	assert.Equal(t, []generator.State{
		generator.StateSubmitting,
		generator.StateQueueing,
		generator.StateGenerating,
		generator.StateGenerating,
		generator.StateSuccess,
	}, hub.states())
	for _, topic := range hub.topics {
		assert.Equal(t, g.ID, topic)
	}

	notifier.AssertExpectations(t)
	temp.AssertExpectations(t)
}

func TestService_CreateRecordsFailure(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &scriptedRunner{
		states: []generator.State{generator.StateSubmitting, generator.StateQueueing, generator.StateFail},
		taskID: "j1",
		err:    fault.New(fault.KindProvider, "poller.poll", "content policy violation"),
	}
	svc := NewService(repo, generator.NewRouter(), factoryFor(runner))

	g, err := svc.Create(context.Background(), CreateInput{
		OwnerID: "user-1",
		Request: generator.Request{Prompt: "cat", Model: generator.ModelSora2},
	})
	require.NoError(t, err)
	svc.Wait()

	got, err := svc.Get(context.Background(), "user-1", g.ID)
	require.NoError(t, err)
	assert.Equal(t, generator.StateFail, got.State)
	assert.Equal(t, "content policy violation", got.Error)
	assert.Equal(t, fault.KindProvider, got.ErrorKind)
	assert.Equal(t, "j1", got.TaskID)
}

func TestService_CreateRejectsInvalidRequest(t *testing.T) {
	repo := NewMemoryRepository()
	temp := &mockTempStore{}
	temp.On("CleanupTemp", mock.Anything, []string{"/tmp/a"}).Return(nil).Once()

	svc := NewService(repo, generator.NewRouter(), func(func(generator.State)) Runner {
		t.Fatal("runner must not be created")
		return nil
	}, WithTempStore(temp))

	_, err := svc.Create(context.Background(), CreateInput{
		OwnerID:   "user-1",
		Request:   generator.Request{Prompt: "cat", Model: generator.ModelVeo3, VideoURL: "https://x/in.mp4"},
		TempFiles: []string{"/tmp/a"},
	})
	assert.ErrorIs(t, err, fault.ErrRequest)

	list, err := repo.ListByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
	temp.AssertExpectations(t)
}

func TestService_OwnerIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &scriptedRunner{resultURL: "https://x/y.mp4", states: []generator.State{generator.StateSubmitting, generator.StateQueueing}}
	svc := NewService(repo, generator.NewRouter(), factoryFor(runner))

	g, err := svc.Create(context.Background(), CreateInput{
		OwnerID: "user-1",
		Request: generator.Request{Prompt: "cat", Model: generator.ModelSora2},
	})
	require.NoError(t, err)
	svc.Wait()

	_, err = svc.Get(context.Background(), "user-2", g.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := svc.List(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.List(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_OutOfOrderProgressIgnored(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &scriptedRunner{
		states: []generator.State{
			generator.StateSubmitting,
			generator.StateQueueing,
			generator.StateGenerating,
			generator.StateQueueing,
		},
		resultURL: "https://x/y.mp4",
	}
	hub := &recordingBroadcaster{}
	svc := NewService(repo, generator.NewRouter(), factoryFor(runner), WithBroadcaster(hub))

	g, err := svc.Create(context.Background(), CreateInput{OwnerID: "u", Request: generator.Request{Prompt: "cat", Model: generator.ModelSora2}})
	require.NoError(t, err)
	svc.Wait()

	got, err := repo.FindByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, generator.StateSuccess, got.State)
	assert.NotContains(t, hub.states()[3:], generator.StateQueueing)
}

func TestService_NotifierFailureIsNotFatal(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &scriptedRunner{states: []generator.State{generator.StateSubmitting, generator.StateQueueing}, resultURL: "https://x/y.mp4"}
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	svc := NewService(repo, generator.NewRouter(), factoryFor(runner), WithNotifier(notifier))
	g, err := svc.Create(context.Background(), CreateInput{OwnerID: "u", Request: generator.Request{Prompt: "cat", Model: generator.ModelSora2}})
	require.NoError(t, err)
	svc.Wait()

	got, err := repo.FindByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, generator.StateSuccess, got.State)
	notifier.AssertExpectations(t)
}

func TestService_RunOutlivesRequestContext(t *testing.T) {
	repo := NewMemoryRepository()
	release := make(chan struct{})
	runner := &scriptedRunner{
		states:    []generator.State{generator.StateSubmitting, generator.StateQueueing},
		resultURL: "https://x/y.mp4",
		block:     release,
	}
	svc := NewService(repo, generator.NewRouter(), factoryFor(runner))

	ctx, cancel := context.WithCancel(context.Background())
	g, err := svc.Create(ctx, CreateInput{OwnerID: "u", Request: generator.Request{Prompt: "cat", Model: generator.ModelSora2}})
	require.NoError(t, err)
	cancel()
	close(release)
	svc.Wait()

	got, err := repo.FindByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, generator.StateSuccess, got.State)
}

func TestService_ShutdownCancelsStuckRuns(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &scriptedRunner{
		states: []generator.State{generator.StateSubmitting, generator.StateQueueing},
		block:  make(chan struct{}),
	}
	svc := NewService(repo, generator.NewRouter(), factoryFor(runner))

	g, err := svc.Create(context.Background(), CreateInput{OwnerID: "u", Request: generator.Request{Prompt: "cat", Model: generator.ModelSora2}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Shutdown(ctx), context.DeadlineExceeded)

	got, err := repo.FindByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, generator.StateFail, got.State)
	assert.Equal(t, "context canceled", got.Error)
}

func TestService_ShutdownWhenIdle(t *testing.T) {
	svc := NewService(NewMemoryRepository(), generator.NewRouter(), nil)
	assert.NoError(t, svc.Shutdown(context.Background()))
}
