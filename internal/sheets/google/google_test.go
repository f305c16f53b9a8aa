package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"

	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/sheets"
)

// fakeSheets serves the handful of Sheets REST calls the client makes,
// keeping column A and the appended rows in memory.
type fakeSheets struct {
	mu        sync.Mutex
	rows      [][]any
	deletes   []int64
	metaCalls int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		col := make([][]any, 0, len(f.rows))
		for _, row := range f.rows {
			col = append(col, []any{row[0]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": col})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows = append(f.rows, body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "Expenses!A" + itoa(len(f.rows)) + ":E" + itoa(len(f.rows))},
		})

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sid"):
		f.metaCalls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sheets": []any{
				map[string]any{"properties": map[string]any{"sheetId": 7, "title": "Other"}},
				map[string]any{"properties": map[string]any{"sheetId": 42, "title": "Expenses"}},
			},
		})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Requests []struct {
				DeleteDimension struct {
					Range struct {
						SheetID    int64 `json:"sheetId"`
						StartIndex int64 `json:"startIndex"`
						EndIndex   int64 `json:"endIndex"`
					} `json:"range"`
				} `json:"deleteDimension"`
			} `json:"requests"`
		}
		if err := json.Unmarshal(raw, &body); err != nil || len(body.Requests) != 1 {
			http.Error(w, "bad batch", http.StatusBadRequest)
			return
		}
		rg := body.Requests[0].DeleteDimension.Range
		if rg.SheetID != 42 || rg.EndIndex != rg.StartIndex+1 {
			http.Error(w, "unexpected range", http.StatusBadRequest)
			return
		}
		f.deletes = append(f.deletes, rg.StartIndex)
		f.rows = append(f.rows[:rg.StartIndex], f.rows[rg.StartIndex+1:]...)
		_, _ = w.Write([]byte(`{}`))

	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	c, err := New(context.Background(),
		Config{SpreadsheetID: "sid", SheetName: "Expenses", Location: time.UTC},
		log.Discard(),
		goption.WithEndpoint(ts.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(ts.Client()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, fake
}

func testExpense(id string) core.Expense {
	return core.Expense{
		ID:     id,
		UserID: "u1",
		Name:   "Coffee",
		Amount: core.Money{Cents: 250},
		Date:   time.Date(2025, 1, 2, 8, 30, 0, 0, time.UTC),
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}

func TestCredentials(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(file, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"inline wins", Config{ServiceAccountJSON: `{"from":"env"}`, ServiceAccountFile: file}, `{"from":"env"}`, false},
		{"file", Config{ServiceAccountFile: file}, `{"from":"file"}`, false},
		{"missing file", Config{ServiceAccountFile: filepath.Join(dir, "nope.json")}, "", true},
		{"none", Config{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := credentials(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("credentials = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppendWritesRow(t *testing.T) {
	c, fake := newTestClient(t)

	ref, err := c.Append(context.Background(), testExpense("e1"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ref != "Expenses!A1:E1" {
		t.Errorf("ref = %q", ref)
	}
	if len(fake.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(fake.rows))
	}
	row := fake.rows[0]
	if row[0] != "e1" || row[1] != "u1" || row[2] != "2025-01-02 08:30:00" || row[3] != "Coffee" || row[4] != 2.5 {
		t.Errorf("row = %v", row)
	}
}

func TestAppendSkipsExistingRow(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Append(ctx, testExpense("e1")); err != nil {
		t.Fatal(err)
	}
	ref, err := c.Append(ctx, testExpense("e1"))
	if err != nil {
		t.Fatalf("second Append: %v", err)
	}
	if ref != "Expenses!A1" || len(fake.rows) != 1 {
		t.Fatalf("ref = %q rows = %d", ref, len(fake.rows))
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	c, fake := newTestClient(t)
	e := testExpense("e1")
	e.Name = ""
	if _, err := c.Append(context.Background(), e); !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("err = %v, want ErrEmptyName", err)
	}
	if len(fake.rows) != 0 {
		t.Fatal("invalid expense was written")
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		if _, err := c.Append(ctx, testExpense(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Delete(ctx, "e2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx, "e3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(fake.deletes) != 2 || fake.deletes[0] != 1 || fake.deletes[1] != 1 {
		t.Errorf("deleted indexes = %v, want [1 1]", fake.deletes)
	}
	if len(fake.rows) != 1 || fake.rows[0][0] != "e1" {
		t.Errorf("rows = %v", fake.rows)
	}
	if fake.metaCalls != 1 {
		t.Errorf("sheet id resolved %d times, want 1", fake.metaCalls)
	}

	if err := c.Delete(ctx, "e2"); !errors.Is(err, sheets.ErrRowNotFound) {
		t.Fatalf("err = %v, want ErrRowNotFound", err)
	}
}
