package harness

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Defaults for Config.
const (
	DefaultDataHost  = "https://gadgetronmrd2testdata.blob.core.windows.net/gadgetronmrd2testdata/"
	DefaultCachePath = "data"
	DefaultTool      = "pingvin"
)

// ErrDownloadAllWithoutCache is returned by Config.Validate when every data
// file is requested up front but there is no cache to hold them.
var ErrDownloadAllWithoutCache = errors.New("cannot download all data files when caching is disabled")

// Config holds the session settings.
type Config struct {
	// DataHost is the base URL data file names are appended to.
	DataHost string

	// CacheDisabled stores fetched data in each case's working directory
	// instead of CachePath.
	CacheDisabled bool
	CachePath     string

	// IgnoreRequirements lists capability names or requirement keys that are not enforced.
	IgnoreRequirements []string

	// Tags selects cases carrying all of them.
	Tags []string

	// EchoLogOnFailure attaches the working directory's *.log* files to failed results.
	EchoLogOnFailure bool

	// SaveResults, when set, receives a copy of each case's working directory
	// under <SaveResults>/<case name>.
	SaveResults string

	// DownloadAll fetches every case's data before the first case runs.
	DownloadAll bool

	// Tool is the reconstruction executable.
	Tool string

	// WorkRoot holds the per-case working directories. When empty, directories
	// are created under the system temp dir and removed after each case.
	WorkRoot string

	// CasesDir is recorded with the run history.
	CasesDir string
}

// DefaultConfig returns a Config with the default host, cache path and tool.
func DefaultConfig() Config {
	return Config{
		DataHost:  DefaultDataHost,
		CachePath: DefaultCachePath,
		Tool:      DefaultTool,
	}
}

// Validate rejects contradictory settings.
func (c Config) Validate() error {
	if c.DownloadAll && c.CacheDisabled {
		return ErrDownloadAllWithoutCache
	}
	if c.Tool == "" {
		return errors.New("no tool configured")
	}
	if c.DataHost == "" {
		return errors.New("no data host configured")
	}
	if !c.CacheDisabled && c.CachePath == "" {
		return errors.New("no cache path configured")
	}
	return nil
}

// resolve makes the configured directories absolute, and the tool too when it
// is given as a path. Jobs run inside each case's working directory, where
// relative paths would point elsewhere.
func (c *Config) resolve() error {
	dirs := []*string{&c.CachePath, &c.WorkRoot, &c.SaveResults}
	if strings.ContainsRune(c.Tool, '/') || strings.ContainsRune(c.Tool, filepath.Separator) {
		dirs = append(dirs, &c.Tool)
	}
	for _, p := range dirs {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}
