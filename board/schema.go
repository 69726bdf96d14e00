package board

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const messageSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Message",
  "type": "object",
  "required": ["id", "text", "created_at"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "text": {"type": "string", "minLength": 1},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "additionalProperties": false
}`

// MessageValidator validates messages against a JSON schema compiled on first use.
type MessageValidator struct {
	once   sync.Once
	schema *gojsonschema.Schema
	err    error
	source gojsonschema.JSONLoader
}

// NewMessageValidator uses the built-in message schema.
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{source: gojsonschema.NewStringLoader(messageSchema)}
}

// NewMessageValidatorFromFile loads the schema from a JSON file instead.
func NewMessageValidatorFromFile(path string) *MessageValidator {
	return &MessageValidator{source: gojsonschema.NewReferenceLoader("file://" + path)}
}

func (v *MessageValidator) load() {
	v.schema, v.err = gojsonschema.NewSchema(v.source)
	if v.err != nil {
		v.err = fmt.Errorf("compile schema: %w", v.err)
	}
}

func (v *MessageValidator) Validate(doc interface{}) error {
	v.once.Do(v.load)
	if v.err != nil {
		return v.err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := v.schema.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return err
	}
	if !res.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalid, res.Errors())
	}
	return nil
}
