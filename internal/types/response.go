package types

// ResponseDTO is the envelope every endpoint answers with.
type ResponseDTO struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Error      string `json:"error,omitempty"`
}
