package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billingcore/pkg/db/pagination"
)

type CreateCustomerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	CompanyName string `json:"company_name"`
	Address     string `json:"address"`
	TaxID       string `json:"tax_id"`
}

// UpdateBillingDetailsRequest changes the details copied onto future invoices.
// Nil fields are left untouched; issued invoices keep their snapshot.
type UpdateBillingDetailsRequest struct {
	ID          snowflake.ID
	Name        *string
	Email       *string
	CompanyName *string
	Address     *string
	TaxID       *string
}

type ListCustomerRequest struct {
	pagination.Pagination
	Email string
	Name  string
}

type ListCustomerFilter struct {
	Email string
	Name  string
}

type ListCustomerResponse struct {
	PageInfo  pagination.PageInfo `json:"page_info"`
	Customers []Customer          `json:"customers"`
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	GetByID(context.Context, snowflake.ID) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	UpdateBillingDetails(context.Context, UpdateBillingDetailsRequest) (Customer, error)
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("customer_not_found")
)
