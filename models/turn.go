package models

import "strings"

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one message of a stored conversation with the language model.
type Turn struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

func (t Turn) Text() string {
	return strings.Join(t.Parts, "\n")
}
