package api

import (
	"net/http"
	"testing"

	"github.com/davidahmann/coitrack/internal/tracking"
	"github.com/davidahmann/coitrack/pkg/types"
)

func TestVendorCRUD(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, http.MethodPost, "/api/vendors", map[string]string{"name": "Acme", "website": "https://shop.acme.co.uk", "contactEmail": "ops@acme.co.uk"})
	expectStatus(t, res, http.StatusCreated)
	vendor := decode[types.Vendor](t, res)
	if vendor.Domain != "acme.co.uk" {
		t.Fatalf("expected registrable domain, got %q", vendor.Domain)
	}

	res = h.do(t, http.MethodPut, "/api/vendors/"+vendor.ID, map[string]string{"name": "Acme Ltd"})
	expectStatus(t, res, http.StatusOK)
	if got := decode[types.Vendor](t, res); got.Name != "Acme Ltd" || !got.CreatedAt.Equal(vendor.CreatedAt) {
		t.Fatalf("unexpected replace result: %+v", got)
	}

	res = h.do(t, http.MethodGet, "/api/vendors", nil)
	expectStatus(t, res, http.StatusOK)
	if list := decode[[]types.Vendor](t, res); len(list) != 1 {
		t.Fatalf("expected one vendor, got %d", len(list))
	}

	expectStatus(t, h.do(t, http.MethodPost, "/api/vendors", map[string]string{"name": ""}), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodPut, "/api/vendors/missing", map[string]string{"name": "X"}), http.StatusNotFound)
	expectStatus(t, h.do(t, http.MethodDelete, "/api/vendors/"+vendor.ID, nil), http.StatusNoContent)
	expectStatus(t, h.do(t, http.MethodGet, "/api/vendors/"+vendor.ID, nil), http.StatusNotFound)
}

func TestDeleteReferencedBuildingConflicts(t *testing.T) {
	h := newHarness(t)
	vendor, building := seedDirectory(t, h)

	res := h.do(t, http.MethodPost, "/api/coi/documents", tracking.NewDocument{VendorID: vendor.ID, BuildingID: building.ID})
	expectStatus(t, res, http.StatusCreated)

	expectStatus(t, h.do(t, http.MethodDelete, "/api/buildings/"+building.ID, nil), http.StatusConflict)
	expectStatus(t, h.do(t, http.MethodDelete, "/api/vendors/"+vendor.ID, nil), http.StatusConflict)

	res = h.do(t, http.MethodPut, "/api/buildings/"+building.ID, map[string]string{"name": "Tower B", "address": "2 Main St"})
	expectStatus(t, res, http.StatusOK)
	res = h.do(t, http.MethodGet, "/api/buildings/"+building.ID, nil)
	expectStatus(t, res, http.StatusOK)
	if got := decode[types.Building](t, res); got.Address != "2 Main St" {
		t.Fatalf("unexpected building: %+v", got)
	}
}

func TestTemplateCRUD(t *testing.T) {
	h := newHarness(t)

	tpl := types.Template{Name: "Standard", Requirements: []types.Requirement{
		{PolicyType: "general_liability", MinEachOccurrence: 1_000_000, MinAggregate: 2_000_000},
	}}
	res := h.do(t, http.MethodPost, "/api/templates", tpl)
	expectStatus(t, res, http.StatusCreated)
	created := decode[types.Template](t, res)
	if len(created.Requirements) != 1 {
		t.Fatalf("expected requirements to round trip, got %+v", created)
	}

	bad := types.Template{Name: "Dup", Requirements: []types.Requirement{{PolicyType: "auto"}, {PolicyType: "auto"}}}
	expectStatus(t, h.do(t, http.MethodPost, "/api/templates", bad), http.StatusBadRequest)

	res = h.do(t, http.MethodGet, "/api/templates", nil)
	expectStatus(t, res, http.StatusOK)
	if list := decode[[]types.Template](t, res); len(list) != 1 {
		t.Fatalf("expected one template, got %d", len(list))
	}
	expectStatus(t, h.do(t, http.MethodDelete, "/api/templates/"+created.ID, nil), http.StatusNoContent)
	expectStatus(t, h.do(t, http.MethodDelete, "/api/templates/"+created.ID, nil), http.StatusNotFound)
}
