package dto

// ErrorResponse 通用错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse 通用消息响应
type MessageResponse struct {
	Message string `json:"message"`
}
