package domain

import "time"

// GenerationRequest is the payload of a single generation attempt. It is built
// fresh for every attempt and never mutated afterwards.
type GenerationRequest struct {
	ImageDataURL string
	Prompt       string
	Style        string
}

// GenerationResponse is produced by a generator on success and is immutable
// from then on. The JSON shape is the persisted history layout.
type GenerationResponse struct {
	ID        string    `json:"id"`
	ImageURL  string    `json:"imageUrl"`
	Prompt    string    `json:"prompt"`
	Style     string    `json:"style"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryEntry is a persisted GenerationResponse.
type HistoryEntry = GenerationResponse

// FormState is what the form needs to replay a past generation.
type FormState struct {
	ImageDataURL string `json:"imageDataUrl"`
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
}

// GenerationError is a rejection reported by a generator. Message is one of a
// small vocabulary; see ErrModelOverloaded and ErrRequestAborted.
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string {
	return e.Message
}

// Is matches on Message so that errors rebuilt from the wire compare equal to
// the sentinels.
func (e *GenerationError) Is(target error) bool {
	t, ok := target.(*GenerationError)
	if !ok || t == nil || e == nil {
		return false
	}
	return e.Message == t.Message
}

var (
	ErrModelOverloaded = &GenerationError{Message: "Model overloaded"}
	ErrRequestAborted  = &GenerationError{Message: "Request aborted"}
)
