package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/coitrack/pkg/types"
)

func TestStatusErrorEmbedsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"conflict"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.Reject(context.Background(), "doc-1", "wrong holder")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.StatusCode)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "conflict")
}

func TestListDocumentsSendsQueryAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/coi/documents", r.URL.Path)
		assert.Equal(t, "non_compliant", r.URL.Query().Get("bucket"))
		assert.Equal(t, "v1", r.URL.Query().Get("vendor_id"))
		_ = json.NewEncoder(w).Encode([]Document{{Document: types.Document{ID: "d1", Status: types.StatusUnderReview}, CompliancePercentage: 50}})
	}))
	defer srv.Close()

	docs, err := New(srv.URL, "tok").ListDocuments(context.Background(), ListOptions{VendorID: "v1", Bucket: "non_compliant"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 50, docs[0].CompliancePercentage)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Counts{All: 5, Pending: 3})
	}))
	defer srv.Close()

	counts, err := New(srv.URL, "").Counts(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, counts.All)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").GetDocument(context.Background(), "missing")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUploadSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "v1", r.FormValue("vendor_id"))
		assert.Equal(t, "b1", r.FormValue("building_id"))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		assert.Equal(t, "cert.pdf", header.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "%PDF-", string(data))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(UploadResult{Verification: Verification{ID: "run-1", Status: "completed"}})
	}))
	defer srv.Close()

	res, err := New(srv.URL, "tok").Upload(context.Background(), Upload{VendorID: "v1", BuildingID: "b1", FileName: "cert.pdf", Data: []byte("%PDF-"), Wait: true})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.Verification.ID)
}
