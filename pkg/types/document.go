package types

import "time"

type Status string

const (
	StatusPendingUpload Status = "pending_upload"
	StatusUploaded      Status = "uploaded"
	StatusUnderReview   Status = "under_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusExpired       Status = "expired"
)

var statuses = []Status{
	StatusPendingUpload,
	StatusUploaded,
	StatusUnderReview,
	StatusApproved,
	StatusRejected,
	StatusExpired,
}

// Statuses returns every known status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// ParseStatus reports whether s names a known status.
func ParseStatus(s string) (Status, bool) {
	for _, status := range statuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether a review decision has been recorded.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ComplianceLineItem struct {
	Requirement string   `json:"requirement"`
	Expected    string   `json:"expected"`
	Actual      string   `json:"actual"`
	Passed      bool     `json:"passed"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// Document is one submitted certificate of insurance.
type Document struct {
	ID         string `json:"id"`
	Vendor     Ref    `json:"vendor"`
	Building   Ref    `json:"building"`
	TemplateID string `json:"templateId,omitempty"`
	Status     Status `json:"status"`

	FileName string `json:"fileName,omitempty"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileHash string `json:"fileHash,omitempty"`

	VerificationID    string               `json:"verificationId,omitempty"`
	ComplianceResults []ComplianceLineItem `json:"complianceResults,omitempty"`

	RejectionReason string `json:"rejectionReason,omitempty"`
	OverrideReason  string `json:"overrideReason,omitempty"`

	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	UploadedAt   *time.Time `json:"uploadedAt,omitempty"`
	ReviewedAt   *time.Time `json:"reviewedAt,omitempty"`
	ReviewerName string     `json:"reviewerName,omitempty"`

	EarliestExpiration *time.Time `json:"earliestExpiration,omitempty"`
}

// FailedItems counts compliance items that did not pass.
func (d Document) FailedItems() int {
	failed := 0
	for _, item := range d.ComplianceResults {
		if !item.Passed {
			failed++
		}
	}
	return failed
}

// Clone returns a deep copy so stored records cannot be mutated through
// returned values.
func (d Document) Clone() Document {
	out := d
	if d.ComplianceResults != nil {
		out.ComplianceResults = make([]ComplianceLineItem, len(d.ComplianceResults))
		for i, item := range d.ComplianceResults {
			if item.Confidence != nil {
				c := *item.Confidence
				item.Confidence = &c
			}
			out.ComplianceResults[i] = item
		}
	}
	out.UploadedAt = cloneTime(d.UploadedAt)
	out.ReviewedAt = cloneTime(d.ReviewedAt)
	out.EarliestExpiration = cloneTime(d.EarliestExpiration)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
