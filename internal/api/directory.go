package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/davidahmann/coitrack/pkg/types"
)

func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	vendors, err := svc.ListVendors(r.Context())
	respond(h, w, http.StatusOK, vendors, err)
}

func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	vendor, err := svc.GetVendor(r.Context(), chi.URLParam(r, "id"))
	respond(h, w, http.StatusOK, vendor, err)
}

func (h *Handler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	h.saveVendor(w, r, "", http.StatusCreated)
}

func (h *Handler) ReplaceVendor(w http.ResponseWriter, r *http.Request) {
	h.saveVendor(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) saveVendor(w http.ResponseWriter, r *http.Request, id string, status int) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	var in types.Vendor
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	vendor, err := svc.SaveVendor(r.Context(), id, in)
	respond(h, w, status, vendor, err)
}

func (h *Handler) DeleteVendor(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	deleted(h, w, svc.DeleteVendor(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) ListBuildings(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	buildings, err := svc.ListBuildings(r.Context())
	respond(h, w, http.StatusOK, buildings, err)
}

func (h *Handler) GetBuilding(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	building, err := svc.GetBuilding(r.Context(), chi.URLParam(r, "id"))
	respond(h, w, http.StatusOK, building, err)
}

func (h *Handler) CreateBuilding(w http.ResponseWriter, r *http.Request) {
	h.saveBuilding(w, r, "", http.StatusCreated)
}

func (h *Handler) ReplaceBuilding(w http.ResponseWriter, r *http.Request) {
	h.saveBuilding(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) saveBuilding(w http.ResponseWriter, r *http.Request, id string, status int) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	var in types.Building
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	building, err := svc.SaveBuilding(r.Context(), id, in)
	respond(h, w, status, building, err)
}

func (h *Handler) DeleteBuilding(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	deleted(h, w, svc.DeleteBuilding(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	templates, err := svc.ListTemplates(r.Context())
	respond(h, w, http.StatusOK, templates, err)
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	tpl, err := svc.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	respond(h, w, http.StatusOK, tpl, err)
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	h.saveTemplate(w, r, "", http.StatusCreated)
}

func (h *Handler) ReplaceTemplate(w http.ResponseWriter, r *http.Request) {
	h.saveTemplate(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) saveTemplate(w http.ResponseWriter, r *http.Request, id string, status int) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	var in types.Template
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	tpl, err := svc.SaveTemplate(r.Context(), id, in)
	respond(h, w, status, tpl, err)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	deleted(h, w, svc.DeleteTemplate(r.Context(), chi.URLParam(r, "id")))
}

func respond(h *Handler, w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, status, payload)
}

func deleted(h *Handler, w http.ResponseWriter, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
