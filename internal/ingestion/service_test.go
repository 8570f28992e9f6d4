package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/yoda/internal/auth"
	"github.com/rpattn/yoda/internal/domain"
	"github.com/rpattn/yoda/internal/registry"
	"github.com/rpattn/yoda/internal/repository"
	"github.com/rpattn/yoda/internal/service"
)

var admin = auth.Identity{UserID: "admin-1", Roles: []auth.Role{auth.RoleAdmin}}

func newTestServices(t *testing.T) (*Service, *service.Service) {
	t.Helper()
	reg := registry.NewDefault()
	entities := service.NewService(reg, repository.NewMemoryStore())
	return NewService(entities, reg), entities
}

func TestServiceIngestCreatesEntitiesFromCSV(t *testing.T) {
	ingest, entities := newTestServices(t)
	ctx := context.Background()

	data := "amount,completed,notes\n100,true,first\n250,false,second\n"
	summary, err := ingest.Ingest(ctx, Request{
		EntityType: "Transaction",
		FileName:   "payments.csv",
		Data:       strings.NewReader(data),
		Identity:   admin,
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}

	if summary.TotalRows != 2 || summary.ValidRows != 2 || summary.InvalidRows != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.IgnoredColumns) != 1 || summary.IgnoredColumns[0] != "notes" {
		t.Fatalf("expected notes column to be ignored, got %v", summary.IgnoredColumns)
	}
	if len(summary.Created) != 2 {
		t.Fatalf("expected two created ids, got %v", summary.Created)
	}

	agg, err := entities.Find(ctx, "Transaction", summary.Created[0], admin)
	if err != nil {
		t.Fatalf("find returned error: %v", err)
	}
	if got := string(agg.Fields["amount"]); got != "100" {
		t.Fatalf("expected amount 100, got %s", got)
	}
	if got := string(agg.Fields["completed"]); got != "true" {
		t.Fatalf("expected completed true, got %s", got)
	}
}

func TestServiceIngestReportsInvalidRows(t *testing.T) {
	ingest, _ := newTestServices(t)

	data := "amount,completed\n100,true\nabc,false\n\n42,maybe\n"
	summary, err := ingest.Ingest(context.Background(), Request{
		EntityType: "Transaction",
		FileName:   "payments.csv",
		Data:       strings.NewReader(data),
		Identity:   admin,
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}

	if summary.TotalRows != 3 || summary.ValidRows != 1 || summary.InvalidRows != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Errors) != 2 {
		t.Fatalf("expected two row errors, got %+v", summary.Errors)
	}
	if summary.Errors[0].RowNumber != 3 {
		t.Fatalf("expected first error on row 3, got %d", summary.Errors[0].RowNumber)
	}
	if !strings.Contains(summary.Errors[0].Message, "amount") {
		t.Fatalf("expected error to name the amount field, got %q", summary.Errors[0].Message)
	}
}

func TestServiceIngestUsesIdentifierColumn(t *testing.T) {
	ingest, _ := newTestServices(t)

	data := "identifier,email\n5F0C6B1E-4C1A-4F3B-9C1D-7A2B3C4D5E6F,ada@example.com\n"
	summary, err := ingest.Ingest(context.Background(), Request{
		EntityType: "Account",
		FileName:   "accounts.csv",
		Data:       strings.NewReader(data),
		Identity:   admin,
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if len(summary.Created) != 1 || summary.Created[0] != "5f0c6b1e-4c1a-4f3b-9c1d-7a2b3c4d5e6f" {
		t.Fatalf("expected supplied identifier to be used, got %v", summary.Created)
	}
}

func TestServiceIngestReportsIdentifierOfAnotherType(t *testing.T) {
	ingest, entities := newTestServices(t)
	ctx := context.Background()

	account, err := entities.Create(ctx, "Account", service.CreateInput{
		Fields: map[string]any{"email": "ada@example.com"},
	}, admin)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	data := "identifier,name\n" + account.Value + ",Clash Ltd\n,Acme Schools\n"
	summary, err := ingest.Ingest(ctx, Request{
		EntityType: "Organization",
		FileName:   "orgs.csv",
		Data:       strings.NewReader(data),
		Identity:   admin,
	})
	if err != nil {
		t.Fatalf("ingest must not abort on a taken identifier: %v", err)
	}
	if summary.ValidRows != 1 || summary.InvalidRows != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Errors[0].RowNumber != 2 {
		t.Fatalf("expected error on row 2, got %d", summary.Errors[0].RowNumber)
	}
}

func TestServiceIngestParsesExcel(t *testing.T) {
	ingest, entities := newTestServices(t)
	ctx := context.Background()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := map[string]string{
		"A1": "name", "B1": "tag",
		"A2": "Acme Schools", "B2": "Education;Politics",
	}
	for cell, value := range cells {
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			t.Fatalf("set cell %s: %v", cell, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	summary, err := ingest.Ingest(ctx, Request{
		EntityType: "Organization",
		FileName:   "orgs.xlsx",
		Data:       bytes.NewReader(buf.Bytes()),
		Identity:   admin,
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if summary.ValidRows != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	agg, err := entities.Find(ctx, "Organization", summary.Created[0], admin)
	if err != nil {
		t.Fatalf("find returned error: %v", err)
	}
	var tags []string
	if err := json.Unmarshal(agg.Fields["tag"], &tags); err != nil {
		t.Fatalf("decode tags: %v", err)
	}
	if len(tags) != 2 || tags[0] != "Education" || tags[1] != "Politics" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestServiceIngestAbortsWhenUnauthorized(t *testing.T) {
	ingest, _ := newTestServices(t)
	org := auth.Identity{UserID: "org-1", Roles: []auth.Role{auth.RoleOrganization}}

	_, err := ingest.Ingest(context.Background(), Request{
		EntityType: "Account",
		FileName:   "accounts.csv",
		Data:       strings.NewReader("email\nada@example.com\n"),
		Identity:   org,
	})
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestServiceIngestRejectsUnsupportedFormat(t *testing.T) {
	ingest, _ := newTestServices(t)

	_, err := ingest.Ingest(context.Background(), Request{
		EntityType: "Account",
		FileName:   "accounts.txt",
		Data:       strings.NewReader("email\nada@example.com\n"),
		Identity:   admin,
	})
	if !errors.Is(err, ErrUnsupportedFormat) || !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unsupported format validation error, got %v", err)
	}
}

func TestServiceIngestRejectsUnknownEntityType(t *testing.T) {
	ingest, _ := newTestServices(t)

	_, err := ingest.Ingest(context.Background(), Request{
		EntityType: "Invoice",
		FileName:   "invoices.csv",
		Data:       strings.NewReader("amount\n1\n"),
		Identity:   admin,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServicePreviewLimitsRows(t *testing.T) {
	ingest, entities := newTestServices(t)

	data := "Title\namount,completed\n100,true\nabc,false\n7,true\n"
	headerRow := 1
	result, err := ingest.Preview("Transaction", "payments.csv", strings.NewReader(data), &headerRow, 2)
	if err != nil {
		t.Fatalf("preview returned error: %v", err)
	}

	if result.TotalRows != 3 || result.InvalidRows != 1 {
		t.Fatalf("unexpected preview: %+v", result)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected two preview rows, got %d", len(result.Rows))
	}
	if result.Rows[0].RowNumber != 3 || result.Rows[0].Values["amount"] != "100" {
		t.Fatalf("unexpected first preview row: %+v", result.Rows[0])
	}
	if len(result.Rows[1].Errors) != 1 {
		t.Fatalf("expected second row to carry an error, got %+v", result.Rows[1])
	}

	page, err := entities.Search(context.Background(), "Transaction", domain.SearchFilter{}, domain.Pagination{}, admin)
	if err != nil {
		t.Fatalf("search returned error: %v", err)
	}
	if len(page.Edges) != 0 {
		t.Fatalf("preview must not create entities, found %d", len(page.Edges))
	}
}

func TestHTTPHandlerImportsUpload(t *testing.T) {
	ingest, _ := newTestServices(t)
	handler := NewHTTPHandler(ingest)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("entityType", "Transaction"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := writer.CreateFormFile("file", "payments.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("amount\n5\n6\n"))
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), admin))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var summary Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.ValidRows != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestHTTPHandlerRejectsAnonymousUpload(t *testing.T) {
	ingest, _ := newTestServices(t)
	handler := NewHTTPHandler(ingest)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("entityType", "Transaction")
	part, _ := writer.CreateFormFile("file", "payments.csv")
	_, _ = part.Write([]byte("amount\n5\n"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}
