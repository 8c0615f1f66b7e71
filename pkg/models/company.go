package models

import "time"

// Company represents an organization a user sells to
type Company struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	UserID    string    `json:"userId" db:"user_id"`
	DateAdded time.Time `json:"dateAdded" db:"date_added"`
}

// CompanyOption is the id/name pair used by company select inputs
type CompanyOption struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// CompanyWithRelations is the company.getAll read model
type CompanyWithRelations struct {
	Company
	Tasks   []Task          `json:"tasks"`
	Clients []ClientSummary `json:"clients"`
}

type CreateCompanyRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required"`
}

type UpdateCompanyRequest struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required"`
}

// AddClientRequest attaches an existing client to a company
type AddClientRequest struct {
	ID       string `json:"id" validate:"required"`
	ClientID string `json:"clientId" validate:"required"`
}
