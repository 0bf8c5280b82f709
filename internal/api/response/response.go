package response

import (
	"encoding/json"
	"net/http"
)

// Response represents a standard API response
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

// ErrorBody is the machine-readable error payload
type ErrorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// Error sends an error response
func Error(w http.ResponseWriter, status int, message any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error:   message,
	}

	json.NewEncoder(w).Encode(resp)
}

// Fail sends an error response with a kind, message and optional field errors
func Fail(w http.ResponseWriter, status int, kind, message string, fields map[string]string) {
	Error(w, status, ErrorBody{Kind: kind, Message: message, Fields: fields})
}

// Created sends a 201 Created response with data
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// OK sends a 200 OK response with data
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// BadRequest sends a 400 Bad Request response
func BadRequest(w http.ResponseWriter, message string, fields map[string]string) {
	Fail(w, http.StatusBadRequest, "validation", message, fields)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(w http.ResponseWriter, message string) {
	Fail(w, http.StatusUnauthorized, "unauthorized", message, nil)
}

// NotFound sends a 404 Not Found response
func NotFound(w http.ResponseWriter, message string) {
	Fail(w, http.StatusNotFound, "not_found", message, nil)
}

// TooManyRequests sends a 429 Too Many Requests response
func TooManyRequests(w http.ResponseWriter, message string) {
	Fail(w, http.StatusTooManyRequests, "rate_limited", message, nil)
}

// InternalError sends a 500 Internal Server Error response
func InternalError(w http.ResponseWriter, message string) {
	Fail(w, http.StatusInternalServerError, "internal", message, nil)
}
