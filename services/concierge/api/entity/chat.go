package entity

type ChatRequest struct {
	Message  string `json:"message" validate:"required"`
	ThreadID string `json:"threadId"`
}

type ChatResponse struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId"`
}
