package dto

import "github.com/aware88/fresh-ai-crm-sub016/internal/models"

type EmailAnalysisRequest struct {
	EmailId     string `json:"emailId"`
	Subject     string `json:"subject"`
	FromAddress string `json:"fromAddress"`
	FromName    string `json:"fromName"`
	Snippet     string `json:"snippet"`
}

type EmailAnalysisResponse struct {
	Analysis  models.JSONMap `json:"analysis"`
	Draft     models.JSONMap `json:"draft"`
	RequestID string         `json:"requestId"`
	Status    string         `json:"status"`
}
