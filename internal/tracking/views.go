package tracking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/coitrack/internal/filter"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/pkg/types"
)

// DocumentView is a document plus the values derived from it at read time.
type DocumentView struct {
	types.Document
	CompliancePercentage int  `json:"compliancePercentage"`
	ExpiringSoon         bool `json:"expiringSoon"`
	DaysUntilExpiration  *int `json:"daysUntilExpiration,omitempty"`
}

func (s *Service) view(doc types.Document, now time.Time) DocumentView {
	v := DocumentView{
		Document:             doc,
		CompliancePercentage: filter.CompliancePercentage(doc),
		ExpiringSoon:         s.classifier.IsExpiringSoon(doc, now),
	}
	if doc.EarliestExpiration != nil {
		days := filter.DaysUntil(*doc.EarliestExpiration, now)
		v.DaysUntilExpiration = &days
	}
	return v
}

func unknownRef(kind, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: unknown %s %q", ErrInvalid, kind, id)
	}
	return err
}

func defaultID() string { return uuid.NewString() }
