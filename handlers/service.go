package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/ammiranda/ordered_tree/cache"
	"github.com/ammiranda/ordered_tree/engine"
	"github.com/ammiranda/ordered_tree/internal/txretry"
	"github.com/ammiranda/ordered_tree/models"
	"github.com/ammiranda/ordered_tree/repository"

	"golang.org/x/sync/singleflight"
)

// ErrBadRequest marks malformed or invalid client input
var ErrBadRequest = errors.New("bad request")

// Service is the transport-independent API of one hierarchy
type Service interface {
	Kind() repository.Kind
	TreeJSON(ctx context.Context) ([]byte, error)
	FlatJSON(ctx context.Context) ([]byte, error)
	Node(ctx context.Context, id int64) (any, error)
	ChildrenCount(ctx context.Context, parentID *int64) (int, error)
	Create(ctx context.Context, body []byte) (any, error)
	Move(ctx context.Context, id int64, body []byte) error
	Delete(ctx context.Context, id int64) error
}

// TreeService serves one hierarchy: reads go through the tree cache, writes
// go through the engine with one retry and invalidate the cache on success.
type TreeService[P models.Payload] struct {
	engine  *engine.Engine[P]
	cache   cache.CacheProvider
	retrier *txretry.Retrier
	logger  *slog.Logger
	group   singleflight.Group

	// fillMu orders cache fills against invalidations. generation counts
	// committed mutations; a fill that read before the latest one is dropped.
	fillMu     sync.Mutex
	generation uint64
}

// NewTreeService creates a TreeService
func NewTreeService[P models.Payload](eng *engine.Engine[P], c cache.CacheProvider, retrier *txretry.Retrier, logger *slog.Logger) *TreeService[P] {
	if c == nil {
		c = cache.NewNoopCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if retrier == nil {
		retrier = txretry.New(0, logger)
	}
	return &TreeService[P]{
		engine:  eng,
		cache:   c,
		retrier: retrier,
		logger:  logger.With("kind", string(eng.Kind())),
	}
}

// Kind returns the hierarchy served
func (s *TreeService[P]) Kind() repository.Kind {
	return s.engine.Kind()
}

func (s *TreeService[P]) cacheKey() string {
	return string(s.engine.Kind())
}

// TreeJSON returns the serialized forest, from cache when possible.
// Concurrent misses share a single store read. A read that overlaps a
// committed mutation is returned to its callers but never cached.
func (s *TreeService[P]) TreeJSON(ctx context.Context) ([]byte, error) {
	if data, found := s.cache.GetTree(ctx, s.cacheKey()); found {
		return data, nil
	}

	gen := s.currentGeneration()
	// Callers that arrive after a commit use a new key and never join an older read.
	key := s.cacheKey() + "@" + strconv.FormatUint(gen, 10)
	v, err, _ := s.group.Do(key, func() (any, error) {
		// The shared read must not fail because the first caller went away.
		fetchCtx := context.WithoutCancel(ctx)
		tree, err := s.engine.FetchTree(fetchCtx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("encoding tree: %w", err)
		}
		s.fill(fetchCtx, gen, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *TreeService[P]) currentGeneration() uint64 {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	return s.generation
}

// fill stores data unless a mutation committed after gen was taken
func (s *TreeService[P]) fill(ctx context.Context, gen uint64, data []byte) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	if s.generation != gen {
		s.logger.DebugContext(ctx, "dropping tree read that overlapped a mutation", "generation", gen)
		return
	}
	s.cache.SetTree(ctx, s.cacheKey(), data)
}

// FlatJSON returns the depth-annotated pre-order listing
func (s *TreeService[P]) FlatJSON(ctx context.Context) ([]byte, error) {
	data, err := s.TreeJSON(ctx)
	if err != nil {
		return nil, err
	}
	var tree []*engine.TreeNode[P]
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decoding cached tree: %w", err)
	}
	return json.Marshal(engine.Flatten(tree))
}

// Node returns one node
func (s *TreeService[P]) Node(ctx context.Context, id int64) (any, error) {
	return s.engine.Find(ctx, id)
}

// ChildrenCount counts the direct children of parentID; nil counts roots
func (s *TreeService[P]) ChildrenCount(ctx context.Context, parentID *int64) (int, error) {
	return s.engine.ChildrenCount(ctx, parentID)
}

// Create decodes a CreateNodeRequest and inserts the node
func (s *TreeService[P]) Create(ctx context.Context, body []byte) (any, error) {
	var req models.CreateNodeRequest[P]
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	var created *engine.Node[P]
	err := s.retrier.Do(ctx, "create", func(ctx context.Context) error {
		var err error
		created, err = s.engine.Create(ctx, req.ParentID, req.Position, req.Payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return created, nil
}

// Move decodes a MoveNodeRequest and repositions the node
func (s *TreeService[P]) Move(ctx context.Context, id int64, body []byte) error {
	var req models.MoveNodeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	err := s.retrier.Do(ctx, "move", func(ctx context.Context) error {
		return s.engine.Move(ctx, id, req.ParentID, req.Position)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Delete removes the node and its subtree
func (s *TreeService[P]) Delete(ctx context.Context, id int64) error {
	err := s.retrier.Do(ctx, "delete", func(ctx context.Context) error {
		return s.engine.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// invalidate runs after every commit
func (s *TreeService[P]) invalidate(ctx context.Context) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.generation++
	if err := s.cache.InvalidateCache(ctx, s.cacheKey()); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate tree cache", "error", err)
	}
}

// StatusFor maps an error to its HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, engine.ErrSelfParent):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, engine.ErrParentNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrCycle):
		return http.StatusConflict
	case engine.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewErrorBody builds the envelope for err. Store failures are not echoed to clients.
func NewErrorBody(err error) ErrorBody {
	if errors.Is(err, ErrBadRequest) {
		return ErrorBody{Error: err.Error(), Code: "bad_request"}
	}
	code := engine.ErrorCode(err)
	var engErr *engine.Error
	if errors.As(err, &engErr) && code != "store_error" {
		return ErrorBody{Error: engErr.Kind.Error(), Code: code}
	}
	return ErrorBody{Error: "internal error", Code: code}
}
