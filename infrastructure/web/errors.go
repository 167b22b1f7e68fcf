package web

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is a bare error body for failures inside the framework
// itself. It is an error so the error middleware can replace it.
type ErrorResponse struct {
	Message string `json:"error"`
}

func NewError(msg string) ErrorResponse {
	return ErrorResponse{Message: msg}
}

func (e ErrorResponse) Error() string {
	return e.Message
}

func (e ErrorResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(e)
	return data, "application/json", err
}

func (e ErrorResponse) HTTPStatus() int {
	return http.StatusInternalServerError
}
