package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ammiranda/ordered_tree/cache"
	"github.com/ammiranda/ordered_tree/engine"
	"github.com/ammiranda/ordered_tree/models"
	"github.com/ammiranda/ordered_tree/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pausingRepository holds the first GetAllNodes call after it has read the
// rows, until release is closed. Like a SQL driver it then fails when ctx is done.
type pausingRepository struct {
	*repository.MockRepository
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func newPausingRepository() *pausingRepository {
	return &pausingRepository{
		MockRepository: repository.NewMockRepository(repository.Definitions),
		read:           make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (r *pausingRepository) GetAllNodes(ctx context.Context) ([]*repository.Node, error) {
	nodes, err := r.MockRepository.GetAllNodes(ctx)
	r.once.Do(func() {
		close(r.read)
		<-r.release
	})
	if err == nil {
		err = ctx.Err()
	}
	return nodes, err
}

func rootOrder(t *testing.T, data []byte) []int64 {
	t.Helper()
	var tree []struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &tree))
	ids := make([]int64, 0, len(tree))
	for _, n := range tree {
		ids = append(ids, n.ID)
	}
	return ids
}

func seedRoots(repo *repository.MockRepository, ids ...int64) {
	for i, id := range ids {
		repo.Seed(repository.Node{ID: id, Position: i, Payload: []byte(`{"title":"n"}`)})
	}
}

func TestTreeService_ReadOverlappingMoveIsNotCached(t *testing.T) {
	ctx := context.Background()
	repo := newPausingRepository()
	seedRoots(repo.MockRepository, 1, 2)

	logger := quietLogger()
	svc := NewTreeService(engine.New[models.Definition](repo, engine.WithLogger(logger)), cache.NewMemoryCache(), nil, logger)

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := svc.TreeJSON(ctx)
		done <- result{data, err}
	}()

	<-repo.read
	require.NoError(t, svc.Move(ctx, 2, []byte(`{"parentId":null,"position":0}`)))
	close(repo.release)

	stale := <-done
	require.NoError(t, stale.err)
	assert.Equal(t, []int64{1, 2}, rootOrder(t, stale.data), "the overlapping read saw the old order")

	data, err := svc.TreeJSON(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, rootOrder(t, data))
}

func TestTreeService_CachesReadsBetweenMutations(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockRepository(repository.Definitions)
	seedRoots(repo, 1, 2)

	mc := cache.NewMockCache()
	logger := quietLogger()
	svc := NewTreeService(engine.New[models.Definition](repo, engine.WithLogger(logger)), mc, nil, logger)

	_, err := svc.TreeJSON(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Move(ctx, 2, []byte(`{"position":0}`)))
	_, err = svc.TreeJSON(ctx)
	require.NoError(t, err)
	_, err = svc.TreeJSON(ctx)
	require.NoError(t, err)

	_, setTree, invalidate, _, _ := mc.GetCallCounts()
	assert.Equal(t, 2, setTree)
	assert.Equal(t, 1, invalidate)
}

func TestTreeService_SharedReadSurvivesCancelledCaller(t *testing.T) {
	repo := newPausingRepository()
	seedRoots(repo.MockRepository, 1)

	logger := quietLogger()
	svc := NewTreeService(engine.New[models.Definition](repo, engine.WithLogger(logger)), cache.NewNoopCache(), nil, logger)

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.TreeJSON(firstCtx)
		first <- err
	}()
	<-repo.read

	second := make(chan []byte, 1)
	go func() {
		data, err := svc.TreeJSON(context.Background())
		assert.NoError(t, err)
		second <- data
	}()

	// Give the second caller time to join the in-flight read.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(repo.release)

	assert.NoError(t, <-first)
	assert.Equal(t, []int64{1}, rootOrder(t, <-second))
}
