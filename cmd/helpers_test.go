package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/iksnae/cognitus-chat/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// syncBuffer is written to by the stream goroutine and the command at once
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// isolate points the config at per-test cache and token locations
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("COGNITUS_CACHE_PATH", testutil.TempDBPath(t))
	t.Setenv("COGNITUS_AUTH_TOKEN_FILE", filepath.Join(t.TempDir(), "token"))
	t.Setenv("COGNITUS_LOG_LEVEL", "error")
}

// runCLI executes the root command with args and returns its output
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out syncBuffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))

	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores flag defaults left over from earlier executions
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// seededServer returns a fake backend holding one analysed conversation
func seededServer(t *testing.T) *testutil.FakeServer {
	t.Helper()
	srv := testutil.NewFakeServer(t)
	srv.AddChat("c1", "Revenue",
		testutil.UserPayload("m1", "How many orders shipped?"),
		testutil.FunctionCallPayload("m2", "execute_sql", "SELECT COUNT(*) FROM orders", "Counting orders"),
		testutil.FunctionResultPayload("m3", "m2", map[string]interface{}{
			"text":  []string{"42 orders"},
			"table": []interface{}{map[string]interface{}{"columns": []string{"count"}, "data": [][]int{{42}}}},
			"image": []string{},
		}),
		testutil.AssistantPayload("m4", "Done. <image-tag>chart-1</image-tag>"),
	)
	srv.SetFiles("c1", map[string]string{"chart-1": "/files/chart-1.png"})
	return srv
}
