// Package seed loads directory fixtures (vendors, buildings, templates and
// open certificate requests) from a YAML file.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/internal/tracking"
	"github.com/davidahmann/coitrack/pkg/types"
)

type File struct {
	Vendors   []Vendor   `yaml:"vendors"`
	Buildings []Building `yaml:"buildings"`
	Templates []Template `yaml:"templates"`
	Requests  []Request  `yaml:"requests"`
}

type Vendor struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	ContactEmail string `yaml:"contact_email"`
	Website      string `yaml:"website"`
}

type Building struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

type Template struct {
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	Requirements []types.Requirement `yaml:"requirements"`
}

// Request opens a pending_upload document for a vendor and building.
type Request struct {
	VendorID   string `yaml:"vendor_id"`
	BuildingID string `yaml:"building_id"`
	TemplateID string `yaml:"template_id"`
}

type Summary struct {
	Vendors   int
	Buildings int
	Templates int
	Requests  int
}

func Load(path string) (File, error) {
	// #nosec G304 -- path is operator-provided seed path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &f); err != nil {
		return File{}, fmt.Errorf("seed %s: %w", path, err)
	}
	return f, nil
}

// Apply upserts the directory records by id. Requests are only opened when
// the store holds no documents yet, so restarting against a persistent store
// does not duplicate them.
func Apply(ctx context.Context, svc *tracking.Service, f File, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var sum Summary

	for _, v := range f.Vendors {
		if _, err := svc.ImportVendor(ctx, types.Vendor{ID: v.ID, Name: v.Name, ContactEmail: v.ContactEmail, Website: v.Website}); err != nil {
			return sum, fmt.Errorf("seed vendor %q: %w", v.ID, err)
		}
		sum.Vendors++
	}
	for _, b := range f.Buildings {
		if _, err := svc.ImportBuilding(ctx, types.Building{ID: b.ID, Name: b.Name, Address: b.Address}); err != nil {
			return sum, fmt.Errorf("seed building %q: %w", b.ID, err)
		}
		sum.Buildings++
	}
	for _, t := range f.Templates {
		if _, err := svc.ImportTemplate(ctx, types.Template{ID: t.ID, Name: t.Name, Requirements: t.Requirements}); err != nil {
			return sum, fmt.Errorf("seed template %q: %w", t.ID, err)
		}
		sum.Templates++
	}

	if len(f.Requests) > 0 {
		existing, err := svc.Tracker().List(ctx, store.DocumentQuery{})
		if err != nil {
			return sum, err
		}
		if len(existing) == 0 {
			for i, r := range f.Requests {
				if _, err := svc.RequestDocument(ctx, tracking.NewDocument{VendorID: r.VendorID, BuildingID: r.BuildingID, TemplateID: r.TemplateID}); err != nil {
					return sum, fmt.Errorf("seed request %d: %w", i, err)
				}
				sum.Requests++
			}
		}
	}

	logger.Info("seed applied", "vendors", sum.Vendors, "buildings", sum.Buildings, "templates", sum.Templates, "requests", sum.Requests)
	return sum, nil
}
