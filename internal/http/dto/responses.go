package dto

import "github.com/partner-portal/backend/internal/models"

type ErrorResponse struct {
	Error string `json:"error"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type ActivityPage struct {
	Logs   []models.LogEntry `json:"logs"`
	Total  int64             `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type SweepResponse struct {
	Deleted int64 `json:"deleted"`
}
