package store

import (
	"context"
	"errors"

	"github.com/davidahmann/coitrack/pkg/types"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Backend persists documents and the directory records they reference.
// Get and Delete return ErrNotFound for unknown ids.
type Backend interface {
	PutDocument(ctx context.Context, doc types.Document) error
	GetDocument(ctx context.Context, id string) (types.Document, error)
	ListDocuments(ctx context.Context, q DocumentQuery) ([]types.Document, error)

	PutVendor(ctx context.Context, vendor types.Vendor) error
	GetVendor(ctx context.Context, id string) (types.Vendor, error)
	ListVendors(ctx context.Context) ([]types.Vendor, error)
	DeleteVendor(ctx context.Context, id string) error

	PutBuilding(ctx context.Context, building types.Building) error
	GetBuilding(ctx context.Context, id string) (types.Building, error)
	ListBuildings(ctx context.Context) ([]types.Building, error)
	DeleteBuilding(ctx context.Context, id string) error

	PutTemplate(ctx context.Context, tpl types.Template) error
	GetTemplate(ctx context.Context, id string) (types.Template, error)
	ListTemplates(ctx context.Context) ([]types.Template, error)
	DeleteTemplate(ctx context.Context, id string) error

	Close() error
}

// DocumentQuery narrows a listing. Empty fields match everything.
type DocumentQuery struct {
	VendorID   string
	BuildingID string
	Status     types.Status
}

func (q DocumentQuery) Matches(doc types.Document) bool {
	if q.VendorID != "" && doc.Vendor.ID != q.VendorID {
		return false
	}
	if q.BuildingID != "" && doc.Building.ID != q.BuildingID {
		return false
	}
	if q.Status != "" && doc.Status != q.Status {
		return false
	}
	return true
}
