package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// DefaultInfo is the diagnostic text the fake tool prints for --info.
const DefaultInfo = `Pingvin information
  -- Version            : 4.7.1
  -- Git SHA1           : 0123abcd
  -- System Memory size : 16384 MB
  -- Python Support     : YES
  -- CUDA Support       : YES
  -- CUDA Device count  : 2
    + CUDA Device 0      : Fake GPU
      + CUDA Device Memory size : 8192 MB
    + CUDA Device 1      : Fake GPU
      + CUDA Device Memory size : 4096 MB
`

const fakeToolScript = `#!/bin/sh
# Fake reconstruction tool.
#   --info            print info.txt next to this script to stderr
#   --fail CODE       exit with CODE after writing to stderr
#   --input/--output  redirect stdin/stdout
#   --append TEXT     append TEXT as an extra line to the stream
in=""
out=""
append=""
while [ $# -gt 0 ]; do
  case "$1" in
    --info)
      cat "$(dirname "$0")/info.txt" >&2
      exit 0
      ;;
    --fail)
      echo "fake tool failure" >&2
      exit "$2"
      ;;
    --input) in="$2"; shift ;;
    --output) out="$2"; shift ;;
    --append) append="$2"; shift ;;
  esac
  shift
done
echo "processing" >&2
if [ -n "$in" ]; then exec <"$in"; fi
if [ -n "$out" ]; then exec >"$out"; fi
cat
if [ -n "$append" ]; then echo "$append"; fi
`

// WriteFakeTool writes an executable fake tool into a fresh directory and
// returns its path. info is printed on stderr for --info; empty uses DefaultInfo.
// The test is skipped when no POSIX shell or bash is available.
func WriteFakeTool(t *testing.T, info string) string {
	t.Helper()

	for _, sh := range []string{"sh", "bash"} {
		if _, err := exec.LookPath(sh); err != nil {
			t.Skipf("%s not available: %v", sh, err)
		}
	}
	if info == "" {
		info = DefaultInfo
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "info.txt"), []byte(info), 0644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "pingvin")
	if err := os.WriteFile(path, []byte(fakeToolScript), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}
