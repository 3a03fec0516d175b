package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/practicebooks/pkg/db/pagination"
)

type ListClientRequest struct {
	PageToken     string
	PageSize      int32
	Name          string
	Email         string
	PaymentMethod string
}

type ListClientFilter struct {
	Name          string
	Email         string
	PaymentMethod PaymentMethod
}

type ListClientResponse struct {
	pagination.PageInfo
	Clients []Client `json:"clients"`
}

type CreateClientRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	PaymentMethod string `json:"payment_method"`
}

type GetClientRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateClientRequest) (Client, error)
	List(context.Context, ListClientRequest) (ListClientResponse, error)
	GetByID(context.Context, GetClientRequest) (Client, error)
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrNotFound             = errors.New("client_not_found")
)

// ParsePaymentMethod normalizes a payment method, defaulting to self-pay when empty.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	switch PaymentMethod(value) {
	case "":
		return PaymentMethodSelfPay, nil
	case PaymentMethodSelfPay, PaymentMethodInsurance, PaymentMethodScholarship:
		return PaymentMethod(value), nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}
