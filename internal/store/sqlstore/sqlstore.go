// Package sqlstore implements store.Backend on database/sql. Queries are
// written with ? placeholders and rebound for the configured dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/pkg/types"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, SQLite), nil
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// rebind rewrites ? placeholders as $1..$n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.exec(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const documentColumns = `id, vendor_id, vendor_name, building_id, building_name, template_id, status,
file_name, file_url, file_hash, verification_id, compliance_json, rejection_reason, override_reason,
created_at, updated_at, uploaded_at, reviewed_at, reviewer_name, earliest_expiration`

func (s *Store) PutDocument(ctx context.Context, doc types.Document) error {
	var compliance sql.NullString
	if doc.ComplianceResults != nil {
		raw, err := json.Marshal(doc.ComplianceResults)
		if err != nil {
			return fmt.Errorf("encode compliance results: %w", err)
		}
		compliance = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.exec(ctx, `INSERT INTO coi_documents(`+documentColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  vendor_id=excluded.vendor_id,
  vendor_name=excluded.vendor_name,
  building_id=excluded.building_id,
  building_name=excluded.building_name,
  template_id=excluded.template_id,
  status=excluded.status,
  file_name=excluded.file_name,
  file_url=excluded.file_url,
  file_hash=excluded.file_hash,
  verification_id=excluded.verification_id,
  compliance_json=excluded.compliance_json,
  rejection_reason=excluded.rejection_reason,
  override_reason=excluded.override_reason,
  updated_at=excluded.updated_at,
  uploaded_at=excluded.uploaded_at,
  reviewed_at=excluded.reviewed_at,
  reviewer_name=excluded.reviewer_name,
  earliest_expiration=excluded.earliest_expiration`,
		doc.ID, doc.Vendor.ID, doc.Vendor.Name, doc.Building.ID, doc.Building.Name, doc.TemplateID, string(doc.Status),
		doc.FileName, doc.FileURL, doc.FileHash, doc.VerificationID, compliance, doc.RejectionReason, doc.OverrideReason,
		formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt), formatTimePtr(doc.UploadedAt), formatTimePtr(doc.ReviewedAt),
		doc.ReviewerName, formatTimePtr(doc.EarliestExpiration),
	)
	return err
}

func (s *Store) GetDocument(ctx context.Context, id string) (types.Document, error) {
	row := s.queryRow(ctx, `SELECT `+documentColumns+` FROM coi_documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Document{}, store.ErrNotFound
	}
	return doc, err
}

func (s *Store) ListDocuments(ctx context.Context, q store.DocumentQuery) ([]types.Document, error) {
	var (
		where []string
		args  []any
	)
	if q.VendorID != "" {
		where = append(where, "vendor_id = ?")
		args = append(args, q.VendorID)
	}
	if q.BuildingID != "" {
		where = append(where, "building_id = ?")
		args = append(args, q.BuildingID)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	query := `SELECT ` + documentColumns + ` FROM coi_documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (types.Document, error) {
	var (
		doc                              types.Document
		status, createdAt, updatedAt     string
		compliance                       sql.NullString
		uploadedAt, reviewedAt, earliest sql.NullString
	)
	if err := row.Scan(
		&doc.ID, &doc.Vendor.ID, &doc.Vendor.Name, &doc.Building.ID, &doc.Building.Name, &doc.TemplateID, &status,
		&doc.FileName, &doc.FileURL, &doc.FileHash, &doc.VerificationID, &compliance, &doc.RejectionReason, &doc.OverrideReason,
		&createdAt, &updatedAt, &uploadedAt, &reviewedAt, &doc.ReviewerName, &earliest,
	); err != nil {
		return types.Document{}, err
	}
	doc.Status = types.Status(status)

	var err error
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.Document{}, err
	}
	if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return types.Document{}, err
	}
	if doc.UploadedAt, err = parseTimePtr(uploadedAt); err != nil {
		return types.Document{}, err
	}
	if doc.ReviewedAt, err = parseTimePtr(reviewedAt); err != nil {
		return types.Document{}, err
	}
	if doc.EarliestExpiration, err = parseTimePtr(earliest); err != nil {
		return types.Document{}, err
	}
	if compliance.Valid && compliance.String != "" {
		if err := json.Unmarshal([]byte(compliance.String), &doc.ComplianceResults); err != nil {
			return types.Document{}, fmt.Errorf("decode compliance results: %w", err)
		}
	}
	return doc, nil
}

func (s *Store) PutVendor(ctx context.Context, v types.Vendor) error {
	_, err := s.exec(ctx, `INSERT INTO vendors(id, name, contact_email, website, domain, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  contact_email=excluded.contact_email,
  website=excluded.website,
  domain=excluded.domain,
  updated_at=excluded.updated_at`,
		v.ID, v.Name, v.ContactEmail, v.Website, v.Domain, formatTime(v.CreatedAt), formatTime(v.UpdatedAt))
	return err
}

func (s *Store) GetVendor(ctx context.Context, id string) (types.Vendor, error) {
	row := s.queryRow(ctx, `SELECT id, name, contact_email, website, domain, created_at, updated_at FROM vendors WHERE id = ?`, id)
	v, err := scanVendor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Vendor{}, store.ErrNotFound
	}
	return v, err
}

func (s *Store) ListVendors(ctx context.Context) ([]types.Vendor, error) {
	rows, err := s.query(ctx, `SELECT id, name, contact_email, website, domain, created_at, updated_at FROM vendors ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []types.Vendor{}
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) DeleteVendor(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "vendors", id)
}

func scanVendor(row scanner) (types.Vendor, error) {
	var (
		v                    types.Vendor
		createdAt, updatedAt string
	)
	if err := row.Scan(&v.ID, &v.Name, &v.ContactEmail, &v.Website, &v.Domain, &createdAt, &updatedAt); err != nil {
		return types.Vendor{}, err
	}
	var err error
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.Vendor{}, err
	}
	if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return types.Vendor{}, err
	}
	return v, nil
}

func (s *Store) PutBuilding(ctx context.Context, b types.Building) error {
	_, err := s.exec(ctx, `INSERT INTO buildings(id, name, address, created_at, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  address=excluded.address,
  updated_at=excluded.updated_at`,
		b.ID, b.Name, b.Address, formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	return err
}

func (s *Store) GetBuilding(ctx context.Context, id string) (types.Building, error) {
	row := s.queryRow(ctx, `SELECT id, name, address, created_at, updated_at FROM buildings WHERE id = ?`, id)
	b, err := scanBuilding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Building{}, store.ErrNotFound
	}
	return b, err
}

func (s *Store) ListBuildings(ctx context.Context) ([]types.Building, error) {
	rows, err := s.query(ctx, `SELECT id, name, address, created_at, updated_at FROM buildings ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []types.Building{}
	for rows.Next() {
		b, err := scanBuilding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) DeleteBuilding(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "buildings", id)
}

func scanBuilding(row scanner) (types.Building, error) {
	var (
		b                    types.Building
		createdAt, updatedAt string
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Address, &createdAt, &updatedAt); err != nil {
		return types.Building{}, err
	}
	var err error
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.Building{}, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return types.Building{}, err
	}
	return b, nil
}

func (s *Store) PutTemplate(ctx context.Context, tpl types.Template) error {
	reqs := tpl.Requirements
	if reqs == nil {
		reqs = []types.Requirement{}
	}
	raw, err := json.Marshal(reqs)
	if err != nil {
		return fmt.Errorf("encode requirements: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO templates(id, name, requirements_json, created_at, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  requirements_json=excluded.requirements_json,
  updated_at=excluded.updated_at`,
		tpl.ID, tpl.Name, string(raw), formatTime(tpl.CreatedAt), formatTime(tpl.UpdatedAt))
	return err
}

func (s *Store) GetTemplate(ctx context.Context, id string) (types.Template, error) {
	row := s.queryRow(ctx, `SELECT id, name, requirements_json, created_at, updated_at FROM templates WHERE id = ?`, id)
	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Template{}, store.ErrNotFound
	}
	return tpl, err
}

func (s *Store) ListTemplates(ctx context.Context) ([]types.Template, error) {
	rows, err := s.query(ctx, `SELECT id, name, requirements_json, created_at, updated_at FROM templates ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []types.Template{}
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "templates", id)
}

func scanTemplate(row scanner) (types.Template, error) {
	var (
		tpl                       types.Template
		raw, createdAt, updatedAt string
	)
	if err := row.Scan(&tpl.ID, &tpl.Name, &raw, &createdAt, &updatedAt); err != nil {
		return types.Template{}, err
	}
	if err := json.Unmarshal([]byte(raw), &tpl.Requirements); err != nil {
		return types.Template{}, fmt.Errorf("decode requirements: %w", err)
	}
	var err error
	if tpl.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.Template{}, err
	}
	if tpl.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return types.Template{}, err
	}
	return tpl, nil
}

// timeLayout is fixed width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ store.Backend = (*Store)(nil)
