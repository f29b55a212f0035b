package provider

// Email is one message in the provider's send format.
type Email struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Text    string            `json:"text,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Tags    []Tag             `json:"tags,omitempty"`
}

// Tag is a name/value pair attached to a message and echoed back in
// delivery webhooks.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SendResponse is the provider's reply to a single send.
type SendResponse struct {
	ID string `json:"id"`
}

// BatchResponse is the provider's reply to a batch send in permissive mode.
// Data holds ids of accepted messages in submission order; Errors names the
// rejected indices.
type BatchResponse struct {
	Data   []SendResponse `json:"data"`
	Errors []BatchError   `json:"errors,omitempty"`
}

// BatchError describes one rejected item of a batch.
type BatchError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// BatchOptions tunes a batch call.
type BatchOptions struct {
	// IdempotencyKey lets the provider drop a resubmitted batch.
	IdempotencyKey string
}

// MaxBatchSize is the largest batch the provider accepts.
const MaxBatchSize = 100

type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}
