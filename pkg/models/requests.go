package models

// IDRequest is the input of every procedure that targets a single record
type IDRequest struct {
	ID string `json:"id" validate:"required"`
}

// SendEmailRequest represents clients.sendEmail / company.sendEmail input
type SendEmailRequest struct {
	ID      string `json:"id" validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

// GenerateEmailRequest represents ai.generateEmail input
type GenerateEmailRequest struct {
	UserPrompt string  `json:"userPrompt"`
	ClientID   *string `json:"clientId"`
	CompanyID  *string `json:"companyId"`
}

// EmailDraft is the structured output expected from the model
type EmailDraft struct {
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

// SeedResult is returned by seed.seedDemo
type SeedResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
