package models

import "time"

// Client is a contact person owned by a user, optionally attached to a company
type Client struct {
	ID        string    `json:"id" db:"id"`
	FirstName string    `json:"firstName" db:"first_name"`
	LastName  string    `json:"lastName" db:"last_name"`
	Email     string    `json:"email" db:"email"`
	CompanyID *string   `json:"companyId" db:"company_id"`
	UserID    string    `json:"userId" db:"user_id"`
	DateAdded time.Time `json:"dateAdded" db:"date_added"`
}

// ClientSummary is the reduced client projection used by company listings
// and the "available clients" picker.
type ClientSummary struct {
	ID        string `json:"id" db:"id"`
	FirstName string `json:"firstName" db:"first_name"`
	LastName  string `json:"lastName" db:"last_name"`
}

// ClientWithRelations is the clients.getAll read model
type ClientWithRelations struct {
	Client
	Company  *Company            `json:"company"`
	Tasks    []Task              `json:"tasks"`
	Meetings []MeetingWithClient `json:"meetings"`
}

// CreateClientRequest represents the clients.create input
type CreateClientRequest struct {
	FirstName string  `json:"firstName" validate:"required"`
	LastName  string  `json:"lastName" validate:"required"`
	Email     string  `json:"email" validate:"required"`
	CompanyID *string `json:"companyId"`
}

// UpdateClientRequest represents the clients.update input
type UpdateClientRequest struct {
	ID        string  `json:"id" validate:"required"`
	FirstName string  `json:"firstName" validate:"required"`
	LastName  string  `json:"lastName" validate:"required"`
	Email     string  `json:"email" validate:"required"`
	CompanyID *string `json:"companyId"`
}
