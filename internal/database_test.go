package internal

import (
	"testing"

	"github.com/iksnae/cognitus-chat/testutil"
)

func TestOpenDatabase(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{name: "in memory", path: func(*testing.T) string { return ":memory:" }},
		{name: "file in missing directory", path: testutil.TempDBPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := OpenDatabase(tt.path(t))
			if err != nil {
				t.Fatalf("OpenDatabase() error = %v", err)
			}
			defer db.Close()

			for _, table := range []string{"chats", "messages", "file_maps"} {
				if n := testutil.CountRows(t, db, table, ""); n != 0 {
					t.Errorf("%s has %d rows, want 0", table, n)
				}
			}
		})
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := testutil.CreateInMemoryDB(t)
	for i := 0; i < 2; i++ {
		if err := migrate(db); err != nil {
			t.Fatalf("migrate() pass %d error = %v", i+1, err)
		}
	}
}
