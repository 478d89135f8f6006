// Package maintester runs a main function in-process with its arguments, capturing what it prints.
package maintester

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMain runs main with os.Args set to args, returning its stdout and stderr with portable newlines.
func TestMain(t *testing.T, main func(), args ...string) (stdout, stderr string) {
	t.Helper()
	tmp := t.TempDir()
	stdoutF := create(t, filepath.Join(tmp, "stdout.txt"))
	stderrF := create(t, filepath.Join(tmp, "stderr.txt"))

	oldArgs, oldStdout, oldStderr := os.Args, os.Stdout, os.Stderr
	os.Args, os.Stdout, os.Stderr = args, stdoutF, stderrF
	func() {
		// Restore before reading, so failures print to the real stdout.
		defer func() {
			os.Args, os.Stdout, os.Stderr = oldArgs, oldStdout, oldStderr
		}()
		main()
	}()

	return readAll(t, stdoutF), readAll(t, stderrF)
}

func create(t *testing.T, path string) *os.File {
	f, err := os.Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func readAll(t *testing.T, f *os.File) string {
	b, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	return strings.ReplaceAll(string(b), "\r\n", "\n")
}
