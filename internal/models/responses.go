package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status          string        `json:"status" example:"healthy"`                   // Health status
	Timestamp       time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected       bool          `json:"connected" example:"true"`                   // Database connection status
	VectorAvailable bool          `json:"vector_available" example:"true"`            // Whether pgvector search is usable
	Latency         time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error           string        `json:"error,omitempty" example:""`                 // Error message if any
}

// FetchEmailsRequest is the body of the client email fetch endpoint
// @Description Client email fetch parameters
type FetchEmailsRequest struct {
	ClientID            *int64   `json:"client_id,omitempty"`                          // Saved client to filter by
	Domains             []string `json:"domains,omitempty"`                            // Ad-hoc client domains
	Emails              []string `json:"emails,omitempty"`                             // Ad-hoc client addresses
	Start               string   `json:"start" example:"2024-01-01"`                   // Range start (ISO-8601)
	End                 string   `json:"end" example:"2024-01-31"`                     // Range end (ISO-8601)
	MaxResults          int      `json:"max_results" example:"50"`                     // Result cap
	SearchQuery         string   `json:"search_query,omitempty" example:"renewal"`     // Free-text query for similarity search
	UseSimilaritySearch bool     `json:"use_similarity_search,omitempty" example:"true"` // Try vector search first
	SkipProvider        bool     `json:"skip_provider,omitempty" example:"false"`      // Never call the mailbox API
}

// FetchEmailsResponse is what the client email fetch endpoint returns
// @Description Client email fetch result
type FetchEmailsResponse struct {
	Emails               []Message `json:"emails"`
	FromExternalProvider bool      `json:"from_external_provider"`
	Error                string    `json:"error,omitempty"`
}

// EnqueueTaskRequest asks the background queue to run a job
// @Description Background task request
type EnqueueTaskRequest struct {
	Type       TaskType `json:"type" example:"generate_embeddings"`
	Limit      int      `json:"limit,omitempty" example:"100"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

// EnqueueTaskResponse returns the id of an enqueued task
// @Description Background task enqueue result
type EnqueueTaskResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WebhookMessageResponse reports the outcome of an inbound message webhook
// @Description Inbound message webhook result
type WebhookMessageResponse struct {
	Success  bool   `json:"success"`
	Inserted bool   `json:"inserted"`
	TaskID   string `json:"task_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ErrorResponse is a generic error payload
type ErrorResponse struct {
	Error string `json:"error"`
}
