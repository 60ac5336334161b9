package models

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Payload is implemented by every node payload type
type Payload interface {
	Definition | Component
}

// CreateNodeRequest represents the request body for creating a node.
// A nil ParentID creates a root; a nil Position appends to the sibling group.
type CreateNodeRequest[P Payload] struct {
	ParentID *int64 `json:"parentId" validate:"omitempty,gt=0"`
	Position *int   `json:"position" validate:"omitempty,min=0"`
	Payload  P      `json:"payload"`
}

// MoveNodeRequest represents the request body for moving a node.
// Position is the insertion index in the target group, counted before the
// node leaves its current slot. Values past the end append.
type MoveNodeRequest struct {
	ParentID *int64 `json:"parentId" validate:"omitempty,gt=0"`
	Position int    `json:"position" validate:"min=0"`
}

// Validate validates the create node request and its payload
func (r *CreateNodeRequest[P]) Validate() error {
	return validate.Struct(r)
}

// Validate validates the move node request
func (r *MoveNodeRequest) Validate() error {
	return validate.Struct(r)
}
