package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRun_EmbeddedIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := Run(ctx, db, nil); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}

	var n int
	if err := db.QueryRow("SELECT count(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("applied rows = %d, want 1", n)
	}
	if _, err := db.Exec(`INSERT INTO weather_metrics
		(city, latitude, longitude, temperature_celsius, humidity, pressure, wind_speed, timestamp_unix)
		VALUES ('Lagos', 6.5, 3.35, 29.4, 78, 1011, 3.6, NULL)`); err != nil {
		t.Errorf("insert into migrated table: %v", err)
	}
}

func TestRunFS_OrderAndBookkeeping(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"0002_add_b.sql": {Data: []byte(`ALTER TABLE a ADD COLUMN b TEXT;`)},
		"0001_create.sql": {Data: []byte(`CREATE TABLE a (id INTEGER);`)},
		"README.md":       {Data: []byte(`not a migration`)},
	}
	if err := RunFS(context.Background(), db, fsys, nil); err != nil {
		t.Fatalf("RunFS: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO a (id, b) VALUES (1, 'x')`); err != nil {
		t.Errorf("schema not migrated in order: %v", err)
	}
}

func TestRunFS_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"0001_create.sql": {Data: []byte(`CREATE TABLE a (id INTEGER);`)},
		"0002_broken.sql": {Data: []byte(`ALTER TABLE nope ADD COLUMN b TEXT;`)},
	}
	err := RunFS(context.Background(), db, fsys, nil)
	if err == nil || !strings.Contains(err.Error(), "0002_broken") {
		t.Fatalf("RunFS error = %v, want failure naming 0002_broken", err)
	}

	var versions []int
	rows, err := db.Query("SELECT version FROM " + table + " ORDER BY version")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v int
		_ = rows.Scan(&v)
		versions = append(versions, v)
	}
	if len(versions) != 1 || versions[0] != 1 {
		t.Errorf("recorded versions = %v, want [1]", versions)
	}
}

func TestRunFS_DuplicateVersion(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte(`SELECT 1;`)},
		"0001_b.sql": {Data: []byte(`SELECT 1;`)},
	}
	if err := RunFS(context.Background(), db, fsys, nil); err == nil {
		t.Fatal("RunFS with duplicate versions: error = nil")
	}
}
