package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func newTestAnalytics(t *testing.T, maxRows int) *Analytics {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chinook.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE artists (ArtistId INTEGER PRIMARY KEY, Name TEXT);
		INSERT INTO artists (Name) VALUES ('AC/DC'), ('Accept'), ('Aerosmith'), ('Alanis Morissette');
	`)
	db.Close()
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}

	a, err := OpenAnalytics(path, maxRows)
	if err != nil {
		t.Fatalf("OpenAnalytics failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAnalyticsTableInfo(t *testing.T) {
	a := newTestAnalytics(t, 0)

	info, err := a.TableInfo(context.Background())
	if err != nil {
		t.Fatalf("TableInfo failed: %v", err)
	}
	if !strings.Contains(info, "CREATE TABLE artists") {
		t.Errorf("expected artists DDL, got %q", info)
	}
}

func TestAnalyticsQuery(t *testing.T) {
	a := newTestAnalytics(t, 0)

	res, err := a.Query(context.Background(), "SELECT COUNT(*) AS n FROM artists;")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got := res.String(); got != "n\n4" {
		t.Errorf("unexpected rendering %q", got)
	}
}

func TestAnalyticsQueryRowCap(t *testing.T) {
	a := newTestAnalytics(t, 2)

	res, err := a.Query(context.Background(), "SELECT Name FROM artists ORDER BY ArtistId")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(res.Rows) != 2 || !res.Truncated {
		t.Errorf("expected 2 truncated rows, got %d (truncated=%v)", len(res.Rows), res.Truncated)
	}
}

func TestAnalyticsRejectsWrites(t *testing.T) {
	a := newTestAnalytics(t, 0)
	ctx := context.Background()

	for _, q := range []string{
		"DELETE FROM artists",
		"DROP TABLE artists",
		"SELECT 1; DELETE FROM artists",
		"SELECT 'a;b'; DELETE FROM artists",
		`SELECT "it''s"; DROP TABLE artists`,
		"",
	} {
		if _, err := a.Query(ctx, q); !errors.Is(err, ErrWriteQuery) {
			t.Errorf("%q: expected ErrWriteQuery, got %v", q, err)
		}
	}

	res, err := a.Query(ctx, "SELECT COUNT(*) FROM artists")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if res.Rows[0][0] != "4" {
		t.Errorf("rows changed: %v", res.Rows)
	}
}

func TestAnalyticsSemicolonInsideLiteral(t *testing.T) {
	a := newTestAnalytics(t, 0)
	ctx := context.Background()

	tests := []struct {
		query string
		want  string
	}{
		{"SELECT COUNT(*) FROM artists WHERE Name = 'a;b'", "0"},
		{"SELECT 'AC;DC' AS label;", "AC;DC"},
		{"SELECT 'it''s; fine'", "it's; fine"},
		{`SELECT COUNT(*) AS "n;m" FROM artists`, "4"},
	}
	for _, tt := range tests {
		res, err := a.Query(ctx, tt.query)
		if err != nil {
			t.Errorf("%q: %v", tt.query, err)
			continue
		}
		if res.Rows[0][0] != tt.want {
			t.Errorf("%q: got %q, want %q", tt.query, res.Rows[0][0], tt.want)
		}
	}
}

func TestOpenAnalyticsMissingFile(t *testing.T) {
	if _, err := OpenAnalytics(filepath.Join(t.TempDir(), "missing.db"), 0); err == nil {
		t.Fatal("expected error for missing database")
	}
}
