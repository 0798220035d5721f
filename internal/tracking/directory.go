package tracking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/pkg/types"
)

func (s *Service) ListVendors(ctx context.Context) ([]types.Vendor, error) {
	return s.backend().ListVendors(ctx)
}

func (s *Service) GetVendor(ctx context.Context, id string) (types.Vendor, error) {
	return s.backend().GetVendor(ctx, id)
}

// SaveVendor creates a vendor when id is empty, otherwise replaces the
// existing vendor. The registrable domain is derived from the website.
func (s *Service) SaveVendor(ctx context.Context, id string, in types.Vendor) (types.Vendor, error) {
	return s.saveVendor(ctx, id, in, false)
}

// ImportVendor upserts in under in.ID, generating an id when it is empty.
func (s *Service) ImportVendor(ctx context.Context, in types.Vendor) (types.Vendor, error) {
	return s.saveVendor(ctx, in.ID, in, true)
}

func (s *Service) saveVendor(ctx context.Context, id string, in types.Vendor, upsert bool) (types.Vendor, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return types.Vendor{}, fmt.Errorf("%w: vendor name is required", ErrInvalid)
	}
	if in.ContactEmail != "" {
		if _, err := mail.ParseAddress(in.ContactEmail); err != nil {
			return types.Vendor{}, fmt.Errorf("%w: contact email: %v", ErrInvalid, err)
		}
	}
	in.Domain = ""
	if in.Website != "" {
		domain, err := RegistrableDomain(in.Website)
		if err != nil {
			return types.Vendor{}, fmt.Errorf("%w: website: %v", ErrInvalid, err)
		}
		in.Domain = domain
	}

	now := s.now().UTC()
	if id == "" {
		in.ID = s.newID()
		in.CreatedAt = now
	} else {
		existing, err := s.backend().GetVendor(ctx, id)
		switch {
		case err == nil:
			in.CreatedAt = existing.CreatedAt
		case upsert && errors.Is(err, store.ErrNotFound):
			in.CreatedAt = now
		default:
			return types.Vendor{}, err
		}
		in.ID = id
	}
	in.UpdatedAt = now
	if err := s.backend().PutVendor(ctx, in); err != nil {
		return types.Vendor{}, err
	}
	return in, nil
}

// DeleteVendor refuses to remove a vendor that documents still reference.
func (s *Service) DeleteVendor(ctx context.Context, id string) error {
	if err := s.ensureUnreferenced(ctx, store.DocumentQuery{VendorID: id}, "vendor", id); err != nil {
		return err
	}
	return s.backend().DeleteVendor(ctx, id)
}

func (s *Service) ListBuildings(ctx context.Context) ([]types.Building, error) {
	return s.backend().ListBuildings(ctx)
}

func (s *Service) GetBuilding(ctx context.Context, id string) (types.Building, error) {
	return s.backend().GetBuilding(ctx, id)
}

func (s *Service) SaveBuilding(ctx context.Context, id string, in types.Building) (types.Building, error) {
	return s.saveBuilding(ctx, id, in, false)
}

// ImportBuilding upserts in under in.ID, generating an id when it is empty.
func (s *Service) ImportBuilding(ctx context.Context, in types.Building) (types.Building, error) {
	return s.saveBuilding(ctx, in.ID, in, true)
}

func (s *Service) saveBuilding(ctx context.Context, id string, in types.Building, upsert bool) (types.Building, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return types.Building{}, fmt.Errorf("%w: building name is required", ErrInvalid)
	}
	now := s.now().UTC()
	if id == "" {
		in.ID = s.newID()
		in.CreatedAt = now
	} else {
		existing, err := s.backend().GetBuilding(ctx, id)
		switch {
		case err == nil:
			in.CreatedAt = existing.CreatedAt
		case upsert && errors.Is(err, store.ErrNotFound):
			in.CreatedAt = now
		default:
			return types.Building{}, err
		}
		in.ID = id
	}
	in.UpdatedAt = now
	if err := s.backend().PutBuilding(ctx, in); err != nil {
		return types.Building{}, err
	}
	return in, nil
}

func (s *Service) DeleteBuilding(ctx context.Context, id string) error {
	if err := s.ensureUnreferenced(ctx, store.DocumentQuery{BuildingID: id}, "building", id); err != nil {
		return err
	}
	return s.backend().DeleteBuilding(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context) ([]types.Template, error) {
	return s.backend().ListTemplates(ctx)
}

func (s *Service) GetTemplate(ctx context.Context, id string) (types.Template, error) {
	return s.backend().GetTemplate(ctx, id)
}

func (s *Service) SaveTemplate(ctx context.Context, id string, in types.Template) (types.Template, error) {
	return s.saveTemplate(ctx, id, in, false)
}

// ImportTemplate upserts in under in.ID, generating an id when it is empty.
func (s *Service) ImportTemplate(ctx context.Context, in types.Template) (types.Template, error) {
	return s.saveTemplate(ctx, in.ID, in, true)
}

func (s *Service) saveTemplate(ctx context.Context, id string, in types.Template, upsert bool) (types.Template, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return types.Template{}, fmt.Errorf("%w: template name is required", ErrInvalid)
	}
	if err := validateRequirements(in.Requirements); err != nil {
		return types.Template{}, err
	}
	now := s.now().UTC()
	if id == "" {
		in.ID = s.newID()
		in.CreatedAt = now
	} else {
		existing, err := s.backend().GetTemplate(ctx, id)
		switch {
		case err == nil:
			in.CreatedAt = existing.CreatedAt
		case upsert && errors.Is(err, store.ErrNotFound):
			in.CreatedAt = now
		default:
			return types.Template{}, err
		}
		in.ID = id
	}
	in.UpdatedAt = now
	if in.Requirements == nil {
		in.Requirements = []types.Requirement{}
	}
	if err := s.backend().PutTemplate(ctx, in); err != nil {
		return types.Template{}, err
	}
	return in, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	docs, err := s.tracker.List(ctx, store.DocumentQuery{})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.TemplateID == id {
			return fmt.Errorf("%w: template %s is used by document %s", ErrConflict, id, doc.ID)
		}
	}
	return s.backend().DeleteTemplate(ctx, id)
}

func validateRequirements(reqs []types.Requirement) error {
	seen := make(map[string]bool, len(reqs))
	for i, req := range reqs {
		key := strings.TrimSpace(req.PolicyType)
		if key == "" {
			return fmt.Errorf("%w: requirement %d: policy type is required", ErrInvalid, i)
		}
		if req.MinEachOccurrence < 0 || req.MinAggregate < 0 {
			return fmt.Errorf("%w: requirement %s: limits must not be negative", ErrInvalid, key)
		}
		if seen[key] {
			return fmt.Errorf("%w: requirement %s listed twice", ErrInvalid, key)
		}
		seen[key] = true
	}
	return nil
}

func (s *Service) ensureUnreferenced(ctx context.Context, q store.DocumentQuery, kind, id string) error {
	docs, err := s.tracker.List(ctx, q)
	if err != nil {
		return err
	}
	if len(docs) > 0 {
		return fmt.Errorf("%w: %s %s has %d documents", ErrConflict, kind, id, len(docs))
	}
	return nil
}

// RegistrableDomain reduces a website to its eTLD+1, e.g.
// https://www.acme.co.uk/about becomes acme.co.uk.
func RegistrableDomain(website string) (string, error) {
	raw := strings.TrimSpace(website)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("no host in %q", website)
	}
	return publicsuffix.EffectiveTLDPlusOne(host)
}
