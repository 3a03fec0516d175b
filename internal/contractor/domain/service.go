package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/practicebooks/pkg/db/pagination"
)

type CreateContractorRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ListContractorResponse struct {
	pagination.PageInfo
	Contractors []Contractor `json:"contractors"`
}

type Service interface {
	Create(context.Context, CreateContractorRequest) (Contractor, error)
	GetByID(ctx context.Context, id string) (Contractor, error)
	List(ctx context.Context, page pagination.Pagination) (ListContractorResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrNotFound            = errors.New("contractor_not_found")
)
