package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"findash/internal/core"
)

// ImportMessage asks the worker to restage some sources.
type ImportMessage struct {
	ID          string        `json:"id"`
	Sources     []core.Source `json:"sources,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
}

// NewImportMessage creates a message with a fresh id. No sources means all.
func NewImportMessage(sources ...core.Source) *ImportMessage {
	return &ImportMessage{
		ID:          uuid.NewString(),
		Sources:     sources,
		RequestedAt: time.Now().UTC(),
	}
}

// Validate rejects messages without an id or with unknown sources.
func (m *ImportMessage) Validate() error {
	if _, err := uuid.Parse(m.ID); err != nil {
		return fmt.Errorf("invalid import id %q: %w", m.ID, err)
	}
	for _, s := range m.Sources {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid source %q: %w", s, err)
		}
	}
	return nil
}

func (m *ImportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ImportMessageFromJSON decodes and validates a message body.
func ImportMessageFromJSON(data []byte) (*ImportMessage, error) {
	var msg ImportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return &msg, nil
}

// ErrMalformed marks messages that can never be processed.
var ErrMalformed = errors.New("malformed message")
