package store

import (
	"github.com/invopop/jsonschema"
)

//go:generate go run ./internal/schema/main.go schema.json

// Schema returns the JSON schema of the data document
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&Document{})
	s.Title = "voteboard data document"
	s.Description = "board name to board configuration and votes"
	return s
}
