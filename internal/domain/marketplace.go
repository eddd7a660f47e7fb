package domain

import (
	"context"
	"errors"
	"time"
)

// ErrOrderNotFound is returned by the marketplace port for unknown orders
var ErrOrderNotFound = errors.New("marketplace order not found")

// ProductLine is one line-item of a marketplace order
type ProductLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Comments  string `json:"comments,omitempty"`
}

// MarketplaceCustomer carries order-level customer data
type MarketplaceCustomer struct {
	Name           string `json:"name"`
	InternalNumber string `json:"internalNumber,omitempty"`
}

// MarketplaceOrder is an order as the marketplace reports it
type MarketplaceOrder struct {
	OrderID       string              `json:"orderId"`
	ProductLines  []ProductLine       `json:"productLines"`
	Customer      MarketplaceCustomer `json:"customer"`
	StatusID      string              `json:"statusId"`
	DateConfirmed time.Time           `json:"dateConfirmed"`
}

// MarketplaceStatus is a marketplace status catalogue entry
type MarketplaceStatus struct {
	StatusID string `json:"statusId"`
	Name     string `json:"name"`
}

// OrderQuery filters marketplace order fetches
type OrderQuery struct {
	StatusIDs      []string
	ConfirmedSince time.Time
	ConfirmedUntil time.Time
	PageToken      string
	Limit          int
}

// OrderPage is one page of fetched orders
type OrderPage struct {
	Orders        []MarketplaceOrder `json:"orders"`
	NextPageToken string             `json:"nextPageToken,omitempty"`
}

// MarketplacePort is the narrow contract to the external marketplace
// integration. Implementations must be retry-safe: callers retry network
// errors, never explicit error responses.
type MarketplacePort interface {
	FetchOrders(ctx context.Context, query OrderQuery) (*OrderPage, error)
	FetchOrder(ctx context.Context, orderID string) (*MarketplaceOrder, error)
	ListStatuses(ctx context.Context) ([]MarketplaceStatus, error)
	SetStatus(ctx context.Context, orderID, statusID string) error
}
