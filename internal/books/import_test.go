package books

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookstore-api/internal/auth"
	"github.com/yourusername/bookstore-api/internal/storage"
)

type stubScheduler struct {
	owner string
	rows  []storage.BookInput
	err   error
}

func (s *stubScheduler) ScheduleImport(ctx context.Context, owner string, books []storage.BookInput) (string, error) {
	s.owner = owner
	s.rows = books
	return "job-123", s.err
}

func newImportRouter(svc *stubService, opts ImportOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/books/import", func(c *gin.Context) {
		c.Set(auth.ContextUserKey, "owner@example.com")
		c.Next()
	}, ImportHandler(svc, opts))
	return router
}

func uploadFile(t *testing.T, router *gin.Engine, field, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/books/import", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const sampleCSV = "name,author,price\nDune,Frank Herbert,12.5\nEmma,Jane Austen,7\n"

func TestImportCSV(t *testing.T) {
	svc := &stubService{}
	rec := uploadFile(t, newImportRouter(svc, ImportOptions{MaxFileSize: 1 << 20}), "file", "books.csv", sampleCSV)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	payload := decode(t, rec)
	if payload["message"] != "Books Imported!" || payload["imported"] != float64(2) {
		t.Fatalf("unexpected payload: %v", payload)
	}
	want := []storage.BookInput{
		{Name: "Dune", Author: "Frank Herbert", Price: 12.5},
		{Name: "Emma", Author: "Jane Austen", Price: 7},
	}
	if len(svc.imported) != len(want) {
		t.Fatalf("unexpected rows: %#v", svc.imported)
	}
	for i := range want {
		if svc.imported[i] != want[i] {
			t.Fatalf("row %d = %#v, want %#v", i, svc.imported[i], want[i])
		}
	}
}

func TestImportJSON(t *testing.T) {
	svc := &stubService{}
	content := `[{"name":"A","author":"B","price":9.99},{"name":"","author":"C","price":0}]`
	rec := uploadFile(t, newImportRouter(svc, ImportOptions{MaxFileSize: 1 << 20}), "file", "books.json", content)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if len(svc.imported) != 2 || svc.imported[0].Price != 9.99 {
		t.Fatalf("unexpected rows: %#v", svc.imported)
	}
}

func TestImportRejectsInvalidRowsWithoutWriting(t *testing.T) {
	for name, content := range map[string]string{
		"json missing price": `[{"name":"A","author":"B","price":1},{"name":"A","author":"B"}]`,
		"csv bad price":      "name,author,price\nA,B,1\nC,D,cheap\n",
		"csv nan price":      "name,author,price\nA,B,1\nC,D,NaN\n",
		"csv missing column": "name,price\nA,1\nC,2\n",
		"csv ragged row":     "name,author,price\nA,B,1\nC,D\n",
	} {
		svc := &stubService{}
		rec := uploadFile(t, newImportRouter(svc, ImportOptions{MaxFileSize: 1 << 20}), "file", "books", content)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status %d body=%s", name, rec.Code, rec.Body.String())
		}
		if code := decode(t, rec)["code"]; code != "INVALID_ROW" {
			t.Fatalf("%s: unexpected code %v", name, code)
		}
		if svc.imported != nil {
			t.Fatalf("%s: nothing should be imported", name)
		}
	}
}

func TestImportRejectsEmptyAndHeaderOnly(t *testing.T) {
	for _, content := range []string{"", "   \n", "name,author,price\n", "[]"} {
		svc := &stubService{}
		rec := uploadFile(t, newImportRouter(svc, ImportOptions{MaxFileSize: 1 << 20}), "file", "books", content)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%q: unexpected status %d", content, rec.Code)
		}
	}
}

func TestImportRejectsBinary(t *testing.T) {
	svc := &stubService{}
	rec := uploadFile(t, newImportRouter(svc, ImportOptions{MaxFileSize: 1 << 20}), "file", "books.pdf", "%PDF-1.4\n% dummy pdf content\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if code := decode(t, rec)["code"]; code != "UNSUPPORTED_FORMAT" {
		t.Fatalf("unexpected code: %v", code)
	}
}

func TestImportMissingFile(t *testing.T) {
	svc := &stubService{}
	rec := uploadFile(t, newImportRouter(svc, ImportOptions{MaxFileSize: 1 << 20}), "other", "books.csv", sampleCSV)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestImportLimitExceeded(t *testing.T) {
	svc := &stubService{}
	rec := uploadFile(t, newImportRouter(svc, ImportOptions{MaxFileSize: 10}), "file", "books.csv", sampleCSV)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestImportAsyncAboveThreshold(t *testing.T) {
	svc := &stubService{}
	scheduler := &stubScheduler{}
	opts := ImportOptions{Scheduler: scheduler, AsyncThresholdRows: 1, MaxFileSize: 1 << 20}

	rec := uploadFile(t, newImportRouter(svc, opts), "file", "books.csv", sampleCSV)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["jobId"] != "job-123" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if scheduler.owner != "owner@example.com" || len(scheduler.rows) != 2 {
		t.Fatalf("unexpected schedule call: %q %d", scheduler.owner, len(scheduler.rows))
	}
	if svc.imported != nil {
		t.Fatal("async import must not write synchronously")
	}
}

func TestImportSyncAtThreshold(t *testing.T) {
	svc := &stubService{}
	scheduler := &stubScheduler{}
	opts := ImportOptions{Scheduler: scheduler, AsyncThresholdRows: 2, MaxFileSize: 1 << 20}

	rec := uploadFile(t, newImportRouter(svc, opts), "file", "books.csv", sampleCSV)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if scheduler.rows != nil {
		t.Fatal("rows at the threshold should be imported synchronously")
	}
}

func TestImportScheduleFailure(t *testing.T) {
	svc := &stubService{}
	scheduler := &stubScheduler{err: errors.New("redis down")}
	opts := ImportOptions{Scheduler: scheduler, AsyncThresholdRows: 1, MaxFileSize: 1 << 20}

	rec := uploadFile(t, newImportRouter(svc, opts), "file", "books.csv", sampleCSV)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "redis") {
		t.Fatal("internal error details must not leak")
	}
}

func TestImportStorageFailure(t *testing.T) {
	svc := &stubService{err: errors.New("constraint failed")}
	rec := uploadFile(t, newImportRouter(svc, ImportOptions{MaxFileSize: 1 << 20}), "file", "books.csv", sampleCSV)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if decode(t, rec)["error"] != "Failed to import books." {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestParseImportCSVWithBOMAndReorderedColumns(t *testing.T) {
	rows, err := parseImport([]byte("\xef\xbb\xbfPrice, Author ,NAME\n3,B,A\n4,D,C\n"))
	if err != nil {
		t.Fatalf("parseImport returned error: %v", err)
	}
	if len(rows) != 2 || rows[0] != (storage.BookInput{Name: "A", Author: "B", Price: 3}) {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}
