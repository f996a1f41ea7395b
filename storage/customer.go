// Package storage provides the CRM customer repository and the read-only
// analytics database the agent's tools query.
//
// Information Hiding:
// - SQLite connection management hidden behind CustomerRepository
// - Schema creation encapsulated
// - Connections come from database/sql's pool and are held only for the
//   duration of one call
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Errors returned by CustomerRepository implementations.
var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrDuplicateEmail   = errors.New("customer email already exists")
	ErrInvalidCustomer  = errors.New("invalid customer")
)

// Status is a customer's activity state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Customer is one CRM record.
type Customer struct {
	ID      int64   `json:"customer_id"`
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
	Credit  float64 `json:"credit"`
	Status  Status  `json:"active_status"`
}

// Field limits, matching the column constraints.
const (
	maxNameLen    = 100
	maxAddressLen = 255
	maxPhoneLen   = 15
)

// Validate checks field limits and normalizes an empty status to active.
func (c *Customer) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	if c.Status == "" {
		c.Status = StatusActive
	}

	switch {
	case c.Name == "" || len(c.Name) > maxNameLen:
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidCustomer, maxNameLen)
	case len(c.Address) > maxAddressLen:
		return fmt.Errorf("%w: address exceeds %d characters", ErrInvalidCustomer, maxAddressLen)
	case !strings.Contains(c.Email, "@"):
		return fmt.Errorf("%w: email %q is not valid", ErrInvalidCustomer, c.Email)
	case len(c.Phone) > maxPhoneLen:
		return fmt.Errorf("%w: phone exceeds %d characters", ErrInvalidCustomer, maxPhoneLen)
	case c.Status != StatusActive && c.Status != StatusInactive:
		return fmt.Errorf("%w: status must be active or inactive", ErrInvalidCustomer)
	}
	return nil
}

// CustomerCount summarizes the table.
type CustomerCount struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// CustomerRepository is the CRUD surface over CRM records.
type CustomerRepository interface {
	Create(ctx context.Context, c Customer) (Customer, error)
	Get(ctx context.Context, id int64) (Customer, error)
	GetByEmail(ctx context.Context, email string) (Customer, error)
	List(ctx context.Context, offset, limit int) ([]Customer, error)
	ListActive(ctx context.Context) ([]Customer, error)
	Search(ctx context.Context, term string) ([]Customer, error)
	Update(ctx context.Context, c Customer) (Customer, error)
	UpdateCredit(ctx context.Context, id int64, credit float64) (Customer, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (CustomerCount, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	// Location describes where the data lives, for health details.
	Location() string
	Close() error
}
