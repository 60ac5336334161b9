package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ammiranda/ordered_tree/handlers"
	"github.com/ammiranda/ordered_tree/repository"

	"github.com/aws/aws-lambda-go/events"
)

// Handler routes API Gateway events to the hierarchy services
type Handler struct {
	services map[repository.Kind]handlers.Service
	logger   *slog.Logger
}

// NewHandler creates a new Handler serving the given hierarchies
func NewHandler(logger *slog.Logger, services ...handlers.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		services: make(map[repository.Kind]handlers.Service, len(services)),
		logger:   logger,
	}
	for _, svc := range services {
		h.services[svc.Kind()] = svc
	}
	return h
}

// Handle processes API Gateway events. Paths follow /api/<kind>/<resource>[/<id>[/move]].
func (h *Handler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	parts := strings.Split(strings.Trim(request.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" {
		return notFound(), nil
	}
	svc, ok := h.services[repository.Kind(parts[1])]
	if !ok {
		return notFound(), nil
	}
	route := parts[2:]
	method := request.HTTPMethod

	switch {
	case method == http.MethodGet && len(route) == 1 && route[0] == "tree":
		data, err := svc.TreeJSON(ctx)
		return h.raw(ctx, http.StatusOK, data, err), nil

	case method == http.MethodGet && len(route) == 1 && route[0] == "flat":
		data, err := svc.FlatJSON(ctx)
		return h.raw(ctx, http.StatusOK, data, err), nil

	case method == http.MethodGet && len(route) == 2 && route[0] == "children" && route[1] == "count":
		var parentID *int64
		if raw := request.QueryStringParameters["parentId"]; raw != "" {
			id, err := parseID(raw)
			if err != nil {
				return h.fail(ctx, err), nil
			}
			parentID = &id
		}
		n, err := svc.ChildrenCount(ctx, parentID)
		return h.json(ctx, http.StatusOK, map[string]any{"parentId": parentID, "count": n}, err), nil

	case method == http.MethodPost && len(route) == 1 && route[0] == "nodes":
		node, err := svc.Create(ctx, []byte(request.Body))
		return h.json(ctx, http.StatusCreated, node, err), nil

	case len(route) >= 2 && route[0] == "nodes":
		id, err := parseID(route[1])
		if err != nil {
			return h.fail(ctx, err), nil
		}
		switch {
		case method == http.MethodGet && len(route) == 2:
			node, err := svc.Node(ctx, id)
			return h.json(ctx, http.StatusOK, node, err), nil
		case method == http.MethodDelete && len(route) == 2:
			return h.empty(ctx, svc.Delete(ctx, id)), nil
		case method == http.MethodPut && len(route) == 3 && route[2] == "move":
			return h.empty(ctx, svc.Move(ctx, id, []byte(request.Body))), nil
		}
	}
	return notFound(), nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid node id %q", handlers.ErrBadRequest, raw)
	}
	return id, nil
}

func notFound() events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       `{"error": "Not found"}`,
	}
}

func (h *Handler) raw(ctx context.Context, status int, body []byte, err error) events.APIGatewayProxyResponse {
	if err != nil {
		return h.fail(ctx, err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func (h *Handler) json(ctx context.Context, status int, v any, err error) events.APIGatewayProxyResponse {
	if err != nil {
		return h.fail(ctx, err)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return h.fail(ctx, fmt.Errorf("failed to marshal response: %w", err))
	}
	return h.raw(ctx, status, body, nil)
}

func (h *Handler) empty(ctx context.Context, err error) events.APIGatewayProxyResponse {
	if err != nil {
		return h.fail(ctx, err)
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}
}

func (h *Handler) fail(ctx context.Context, err error) events.APIGatewayProxyResponse {
	status := handlers.StatusFor(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, handlers.ErrBadRequest) {
		h.logger.ErrorContext(ctx, "request failed", "error", err)
	}
	body, _ := json.Marshal(handlers.NewErrorBody(err))
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
