package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/iksnae/cognitus-chat/internal"
	"github.com/iksnae/cognitus-chat/testutil"
)

func seededCachePath(t *testing.T) string {
	t.Helper()
	path := testutil.TempDBPath(t)
	cache, err := internal.OpenCache(path)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	if err := cache.SaveChat(context.Background(), internal.CreateTestChat("c1")); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInspectCommand_Text(t *testing.T) {
	isolate(t)
	path := seededCachePath(t)

	out, err := runCLI(t, "", "inspect", path, "--sample", "2")
	if err != nil {
		t.Fatalf("inspect error = %v", err)
	}
	for _, want := range []string{"Found 3 table(s)", "📦 Table: messages", "📊 Rows: 4", "chat_id: TEXT NOT NULL [PRIMARY KEY]", "[user]", "Row 2:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInspectCommand_JSON(t *testing.T) {
	isolate(t)
	path := seededCachePath(t)

	out, err := runCLI(t, "", "inspect", path, "--format", "json", "--sample", "0")
	if err != nil {
		t.Fatalf("inspect error = %v", err)
	}

	var report DatabaseReport
	testutil.JSONUnmarshal(t, []byte(out), &report)
	rows := map[string]int{}
	for _, table := range report.Tables {
		rows[table.Name] = table.Rows
		if len(table.Sample) != 0 {
			t.Errorf("%s has samples with --sample 0", table.Name)
		}
	}
	if rows["chats"] != 1 || rows["messages"] != 4 || rows["file_maps"] != 1 {
		t.Errorf("row counts = %v", rows)
	}
}

func TestInspectCommand_BadFormat(t *testing.T) {
	isolate(t)
	if _, err := runCLI(t, "", "inspect", "--format", "xml"); err == nil {
		t.Error("inspect with an unknown format should fail")
	}
}
