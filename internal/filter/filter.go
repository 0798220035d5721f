// Package filter classifies documents into the buckets shown on lists and
// badges. Every function is pure; callers pass the reference time.
package filter

import (
	"math"
	"time"

	"github.com/davidahmann/coitrack/pkg/types"
)

type Bucket string

const (
	BucketAll          Bucket = "all"
	BucketPending      Bucket = "pending"
	BucketApproved     Bucket = "approved"
	BucketNonCompliant Bucket = "non_compliant"
	BucketExpiringSoon Bucket = "expiring_soon"
	BucketExpired      Bucket = "expired"
)

const DefaultWindowDays = 30

// ParseBucket reports whether s names a bucket.
func ParseBucket(s string) (Bucket, bool) {
	switch b := Bucket(s); b {
	case BucketAll, BucketPending, BucketApproved, BucketNonCompliant, BucketExpiringSoon, BucketExpired:
		return b, true
	}
	return "", false
}

type Counts struct {
	All          int `json:"all"`
	Pending      int `json:"pending"`
	Approved     int `json:"approved"`
	NonCompliant int `json:"non_compliant"`
	ExpiringSoon int `json:"expiring_soon"`
	Expired      int `json:"expired"`
}

// Classifier holds the look-ahead window for the expiring_soon bucket.
type Classifier struct {
	WindowDays int
}

func (c Classifier) window() int {
	if c.WindowDays <= 0 {
		return DefaultWindowDays
	}
	return c.WindowDays
}

// Matches reports whether doc belongs to bucket at time now.
func (c Classifier) Matches(doc types.Document, bucket Bucket, now time.Time) bool {
	switch bucket {
	case BucketAll:
		return true
	case BucketPending:
		return IsPending(doc)
	case BucketApproved:
		return doc.Status == types.StatusApproved
	case BucketNonCompliant:
		return IsNonCompliant(doc)
	case BucketExpiringSoon:
		return c.IsExpiringSoon(doc, now)
	case BucketExpired:
		return doc.Status == types.StatusExpired
	default:
		return false
	}
}

// Filter returns the documents in bucket, preserving order.
func (c Classifier) Filter(docs []types.Document, bucket Bucket, now time.Time) []types.Document {
	out := make([]types.Document, 0, len(docs))
	for _, doc := range docs {
		if c.Matches(doc, bucket, now) {
			out = append(out, doc)
		}
	}
	return out
}

// Count tallies every bucket in one pass. Buckets overlap.
func (c Classifier) Count(docs []types.Document, now time.Time) Counts {
	counts := Counts{All: len(docs)}
	for _, doc := range docs {
		if IsPending(doc) {
			counts.Pending++
		}
		if doc.Status == types.StatusApproved {
			counts.Approved++
		}
		if IsNonCompliant(doc) {
			counts.NonCompliant++
		}
		if c.IsExpiringSoon(doc, now) {
			counts.ExpiringSoon++
		}
		if doc.Status == types.StatusExpired {
			counts.Expired++
		}
	}
	return counts
}

// IsExpiringSoon is true when the earliest expiration is between today and
// the window, inclusive, and the document is not already expired.
func (c Classifier) IsExpiringSoon(doc types.Document, now time.Time) bool {
	if doc.EarliestExpiration == nil || doc.Status == types.StatusExpired {
		return false
	}
	days := DaysUntil(*doc.EarliestExpiration, now)
	return days >= 0 && days <= c.window()
}

func IsPending(doc types.Document) bool {
	switch doc.Status {
	case types.StatusPendingUpload, types.StatusUploaded, types.StatusUnderReview:
		return true
	}
	return false
}

// IsNonCompliant requires at least one failed item; no results is not a failure.
func IsNonCompliant(doc types.Document) bool {
	if doc.Status == types.StatusExpired {
		return false
	}
	return doc.FailedItems() > 0
}

// IsPastExpiration reports whether the earliest expiration is before today.
func IsPastExpiration(doc types.Document, now time.Time) bool {
	if doc.EarliestExpiration == nil {
		return false
	}
	return DaysUntil(*doc.EarliestExpiration, now) < 0
}

// DaysUntil counts whole calendar days from today (midnight in now's
// location) to the calendar date of expiration. Expiration dates are
// calendar dates, so their own location is kept.
func DaysUntil(expiration, now time.Time) int {
	today := civilDay(now)
	exp := civilDay(expiration)
	return int(exp.Sub(today).Hours() / 24)
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CompliancePercentage is round(100 * passed / total), or 0 with no items.
func CompliancePercentage(doc types.Document) int {
	total := len(doc.ComplianceResults)
	if total == 0 {
		return 0
	}
	passed := total - doc.FailedItems()
	return int(math.Round(100 * float64(passed) / float64(total)))
}

var defaultClassifier Classifier

func Matches(doc types.Document, bucket Bucket, now time.Time) bool {
	return defaultClassifier.Matches(doc, bucket, now)
}

func Apply(docs []types.Document, bucket Bucket, now time.Time) []types.Document {
	return defaultClassifier.Filter(docs, bucket, now)
}

func Count(docs []types.Document, now time.Time) Counts {
	return defaultClassifier.Count(docs, now)
}
