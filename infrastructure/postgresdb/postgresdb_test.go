package postgresdb

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestHandlePgError(t *testing.T) {
	other := errors.New("boom")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, ErrDBNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), ErrDBNotFound},
		{"unique", &pgconn.PgError{Code: uniqueViolation}, ErrDBDuplicatedEntry},
		{"foreign key", &pgconn.PgError{Code: foreignKeyViolation}, ErrForeignKey},
		{"undefined table", &pgconn.PgError{Code: undefinedTable}, ErrUndefinedTable},
		{"serialization", &pgconn.PgError{Code: serializationFailure}, ErrSerialization},
		{"malformed uuid", &pgconn.PgError{Code: invalidText, Message: `invalid input syntax for type uuid: "nope"`}, ErrDBNotFound},
		{"other pg code", &pgconn.PgError{Code: "22001"}, nil},
		{"passthrough", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HandlePgError(tt.in)
			if tt.name == "other pg code" {
				var pgErr *pgconn.PgError
				if !errors.As(got, &pgErr) {
					t.Fatalf("expected pg error passthrough, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("HandlePgError(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPrettyPrintSQL(t *testing.T) {
	in := `
		UPDATE tasks
		SET position = @position
		WHERE id IN (
			@id
		)
	`
	want := "UPDATE tasks SET position = @position WHERE id IN(@id)"
	if got := prettyPrintSQL(in); got != want {
		t.Fatalf("prettyPrintSQL = %q, want %q", got, want)
	}
}

func TestMigrationFilesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"pgmigrations/010_late.sql":  {Data: []byte("select 1;")},
		"pgmigrations/001_init.sql":  {Data: []byte("select 1;")},
		"pgmigrations/002_next.sql":  {Data: []byte("select 1;")},
		"pgmigrations/README.md":     {Data: []byte("notes")},
		"pgmigrations/sub/003_x.sql": {Data: []byte("select 1;")},
	}

	got, err := migrationFiles(fsys, "pgmigrations")
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}

	want := []string{"001_init.sql", "002_next.sql", "003_x.sql", "010_late.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
}

func TestChecksumStable(t *testing.T) {
	a := checksum([]byte("CREATE TABLE x();"))
	b := checksum([]byte("CREATE TABLE x();"))
	c := checksum([]byte("CREATE TABLE y();"))

	if a != b {
		t.Fatal("checksum not deterministic")
	}
	if a == c {
		t.Fatal("different content produced the same checksum")
	}
	if len(a) != 64 {
		t.Fatalf("checksum length = %d", len(a))
	}
}
