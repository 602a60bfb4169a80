package tasks

import (
	"bytes"
	"encoding/json"
)

// OptionalString is a JSON string field that records whether it was present.
// An explicit null sets Set with a nil Value.
type OptionalString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON is only called when the key is present in the object.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Title       string  `json:"title" validate:"max=200" example:"Buy milk"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000" example:"2 liters"`
}

// UpdateTaskRequest is the body of PATCH /tasks/{id}. Absent fields are left untouched.
type UpdateTaskRequest struct {
	Title       *string        `json:"title,omitempty" validate:"omitempty,max=200" example:"Buy oat milk"`
	Description OptionalString `json:"description" swaggertype:"string" example:"null clears the description"`
	IsCompleted *bool          `json:"isCompleted,omitempty" example:"true"`
}
