package harness

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// logPattern matches the tool logs written by the runner.
const logPattern = "*.log*"

// collectLogs reads every log file in dir, sorted by name.
func collectLogs(dir string) ([]LogFile, error) {
	matches, err := filepath.Glob(filepath.Join(dir, logPattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var logs []LogFile
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return logs, fmt.Errorf("failed to read log: %w", err)
		}
		logs = append(logs, LogFile{Name: filepath.Base(path), Content: string(data)})
	}
	return logs, nil
}

// copyDir copies the tree at src into dst, creating dst as needed and
// overwriting files that already exist there.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) (retErr error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
