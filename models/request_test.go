package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateNodeRequest_Validate(t *testing.T) {
	parent := int64(4)
	neg := -1
	zero := int64(0)

	tests := []struct {
		name    string
		req     CreateNodeRequest[Definition]
		wantErr bool
	}{
		{name: "root", req: CreateNodeRequest[Definition]{Payload: NewDefinition("Root")}},
		{name: "with parent", req: CreateNodeRequest[Definition]{ParentID: &parent, Payload: NewDefinition("Child")}},
		{name: "missing title", req: CreateNodeRequest[Definition]{Payload: Definition{}}, wantErr: true},
		{name: "title too long", req: CreateNodeRequest[Definition]{Payload: NewDefinition(strings.Repeat("a", 201))}, wantErr: true},
		{name: "negative position", req: CreateNodeRequest[Definition]{Position: &neg, Payload: NewDefinition("A")}, wantErr: true},
		{name: "zero parent", req: CreateNodeRequest[Definition]{ParentID: &zero, Payload: NewDefinition("A")}, wantErr: true},
		{name: "empty field key", req: CreateNodeRequest[Definition]{Payload: Definition{Title: "A", Fields: map[string]string{"": "x"}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateNodeRequest_ValidateComponent(t *testing.T) {
	ok := CreateNodeRequest[Component]{Payload: Component{Title: "Button", Body: "<button/>"}}
	assert.NoError(t, ok.Validate())

	bad := CreateNodeRequest[Component]{Payload: Component{Body: "no title"}}
	assert.Error(t, bad.Validate())
}

func TestMoveNodeRequest_Validate(t *testing.T) {
	parent := int64(2)
	assert.NoError(t, (&MoveNodeRequest{Position: 0}).Validate())
	assert.NoError(t, (&MoveNodeRequest{ParentID: &parent, Position: 7}).Validate())
	assert.Error(t, (&MoveNodeRequest{Position: -1}).Validate())
}
