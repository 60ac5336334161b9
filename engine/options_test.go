package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/ammiranda/ordered_tree/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordingRepository logs the Tx calls the engine makes
type recordingRepository struct {
	*repository.MockRepository
	calls []string
}

func (r *recordingRepository) Begin(ctx context.Context) (repository.Tx, error) {
	tx, err := r.MockRepository.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &recordingTx{Tx: tx, repo: r}, nil
}

type recordingTx struct {
	repository.Tx
	repo *recordingRepository
}

func (t *recordingTx) record(format string, args ...any) {
	t.repo.calls = append(t.repo.calls, fmt.Sprintf(format, args...))
}

func (t *recordingTx) Find(ctx context.Context, id int64) (*repository.Node, error) {
	t.record("find %d", id)
	return t.Tx.Find(ctx, id)
}

func (t *recordingTx) Exists(ctx context.Context, id int64) (bool, error) {
	t.record("exists %d", id)
	return t.Tx.Exists(ctx, id)
}

func (t *recordingTx) SetPosition(ctx context.Context, id int64, position int) error {
	t.record("set %d=%d", id, position)
	return t.Tx.SetPosition(ctx, id, position)
}

func newRecordingRepository(nodes ...repository.Node) *recordingRepository {
	repo := &recordingRepository{MockRepository: repository.NewMockRepository(repository.Definitions)}
	repo.Seed(nodes...)
	return repo
}

func TestWithParkOffset(t *testing.T) {
	tests := []struct {
		name   string
		opts   []Option
		parked string
	}{
		{name: "default", parked: "set 3=1003"},
		{name: "custom", opts: []Option{WithParkOffset(10)}, parked: "set 3=13"},
		{name: "non-positive keeps default", opts: []Option{WithParkOffset(0)}, parked: "set 3=1003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRecordingRepository(seed(1, nil, 0), seed(2, nil, 1), seed(3, ptr(1), 0))
			eng := New[testPayload](repo, append([]Option{WithLogger(quietLogger())}, tt.opts...)...)

			require.NoError(t, eng.Move(context.Background(), 3, nil, 0))

			require.NotEmpty(t, repo.calls)
			assert.Contains(t, repo.calls, tt.parked)
			nodes := repo.Snapshot()
			assert.Equal(t, []int64{3, 1, 2}, childIDs(nodes, nil))
			requireContiguous(t, nodes)
		})
	}
}

func TestCreate_LocksParentRow(t *testing.T) {
	repo := newRecordingRepository(seed(1, nil, 0))
	eng := New[testPayload](repo, WithLogger(quietLogger()))

	_, err := eng.Create(context.Background(), ptr(1), nil, testPayload{Title: "child"})
	require.NoError(t, err)
	assert.Contains(t, repo.calls, "find 1")
	assert.NotContains(t, repo.calls, "exists 1")

	_, err = eng.Create(context.Background(), ptr(9), nil, testPayload{Title: "orphan"})
	assert.ErrorIs(t, err, ErrParentNotFound)
	assert.Equal(t, "parent_not_found", ErrorCode(err))
}

func TestWithTracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	repo := repository.NewMockRepository(repository.Definitions)
	repo.Seed(seed(1, nil, 0), seed(2, ptr(1), 0), seed(3, ptr(2), 0))
	eng := New[testPayload](repo, WithLogger(quietLogger()), WithTracer(tp.Tracer("test")))
	ctx := context.Background()

	require.NoError(t, eng.Move(ctx, 3, nil, 0))
	require.ErrorIs(t, eng.Move(ctx, 1, ptr(2), 0), ErrCycle)
	_, err := eng.FetchTree(ctx)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	result := func(s sdktrace.ReadOnlySpan) string {
		for _, kv := range s.Attributes() {
			if kv.Key == attribute.Key("tree.result") {
				return kv.Value.AsString()
			}
		}
		return ""
	}
	assert.Equal(t, "tree.move", spans[0].Name())
	assert.Equal(t, "ok", result(spans[0]))
	assert.Equal(t, "tree.move", spans[1].Name())
	assert.Equal(t, "cycle", result(spans[1]))
	assert.Equal(t, "tree.fetch", spans[2].Name())
}
