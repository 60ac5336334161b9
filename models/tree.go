package models

// Definition is the payload of a node in the definitions hierarchy
type Definition struct {
	Title  string            `json:"title" validate:"required,min=1,max=200"`
	Fields map[string]string `json:"fields,omitempty" validate:"omitempty,dive,keys,min=1,max=100,endkeys,max=1000"`
}

// Component is the payload of a node in the components hierarchy
type Component struct {
	Title string `json:"title" validate:"required,min=1,max=200"`
	Body  string `json:"body,omitempty" validate:"max=10000"`
}

// NewDefinition creates a definition with an empty field set
func NewDefinition(title string) Definition {
	return Definition{
		Title:  title,
		Fields: make(map[string]string),
	}
}
