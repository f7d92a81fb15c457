package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBaseDirectoryPath is where difftrack stores configuration and data.
// It defaults to $DIFFTRACK_BASE if it is set, otherwise it defaults to
// $HOME/lib/difftrack. Commands override this via the -base flag.
var DefaultBaseDirectoryPath string

func init() {
	if base := os.Getenv("DIFFTRACK_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/difftrack")
	}
}

// Settings toggle parts of the presentation of changes.
type Settings struct {
	ShowDeletedBadge     bool
	ShowBlockActions     bool
	HighlightAdded       bool
	HighlightModified    bool
	HighlightWordChanges bool
}

// DefaultSettings enables everything.
func DefaultSettings() Settings {
	return Settings{
		ShowDeletedBadge:     true,
		ShowBlockActions:     true,
		HighlightAdded:       true,
		HighlightModified:    true,
		HighlightWordChanges: true,
	}
}

type C struct {
	// Where baselines are persisted between invocations: "disk", "s3",
	// "paired" (disk, copied asynchronously to s3), or "null".
	Storage string

	// These only make sense if the storage type is "s3" or "paired".
	// The profile names a section of the shared AWS credentials file.
	S3Region  string
	S3Bucket  string
	S3Profile string

	// These only make sense if the storage type is "disk" or "paired".
	// If the path is relative, it will be assumed relative to the base dir.
	DiskStoreDir string

	// Where baselines of files not explicitly started come from: "disk"
	// (the file as first seen) or "git" (the file at HEAD).
	Baseline string

	// Log file of the watch daemon. Relative to the base dir if not
	// absolute. Empty means standard error.
	LogFile string

	// Context lines of unified diffs.
	ContextLines int

	Settings Settings

	// Directory holding the config file and other files.
	// Other directories and files are derived from this.
	base string
}

// Load loads the configuration from the file called "config" in the provided base
// directory.
func Load(base string) (*C, error) {
	filename := filepath.Join(base, "config")
	if fi, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	} else if fi.Mode()&0077 != 0 {
		return nil, fmt.Errorf("config.Load %q: mode is %#o, want at most %#o",
			filename, fi.Mode()&0777, fi.Mode()&0700)
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Ignore error closing file opened only for reading.
		_ = f.Close()
	}()
	c, err := load(f)
	if err != nil {
		return nil, err
	}
	c.setBase(base)
	return c, nil
}

// Default returns the configuration used when no configuration file
// has been written yet, rooted at the given base directory.
func Default(base string) *C {
	c := defaults()
	c.setBase(base)
	return c
}

func defaults() *C {
	return &C{
		Storage:      "disk",
		DiskStoreDir: "baselines",
		Baseline:     "disk",
		ContextLines: 3,
		Settings:     DefaultSettings(),
	}
}

func (c *C) setBase(base string) {
	c.base = base
	if c.DiskStoreDir != "" && !filepath.IsAbs(c.DiskStoreDir) {
		c.DiskStoreDir = filepath.Clean(filepath.Join(base, c.DiskStoreDir))
	}
	if c.LogFile != "" && !filepath.IsAbs(c.LogFile) {
		c.LogFile = filepath.Clean(filepath.Join(base, c.LogFile))
	}
}

func load(f io.Reader) (*C, error) {
	const method = "load"
	c := defaults()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		i := strings.IndexAny(line, " 	")
		if i == -1 {
			return nil, errorf(method, "no separator in %q", line)
		}
		key, val := line[:i], strings.TrimSpace(line[i:])
		var err error
		switch key {
		case "baseline":
			c.Baseline = val
		case "context-lines":
			c.ContextLines, err = strconv.Atoi(val)
			if err == nil && c.ContextLines < 0 {
				err = fmt.Errorf("negative")
			}
		case "disk-store-dir":
			c.DiskStoreDir = val
		case "log-file":
			c.LogFile = val
		case "s3-bucket":
			c.S3Bucket = val
		case "s3-profile":
			c.S3Profile = val
		case "s3-region":
			c.S3Region = val
		case "storage":
			c.Storage = val
		case "show-deleted-badge":
			c.Settings.ShowDeletedBadge, err = strconv.ParseBool(val)
		case "show-block-actions":
			c.Settings.ShowBlockActions, err = strconv.ParseBool(val)
		case "highlight-added":
			c.Settings.HighlightAdded, err = strconv.ParseBool(val)
		case "highlight-modified":
			c.Settings.HighlightModified, err = strconv.ParseBool(val)
		case "highlight-word-changes":
			c.Settings.HighlightWordChanges, err = strconv.ParseBool(val)
		default:
			return nil, errorf(method, "unknown key %q", key)
		}
		if err != nil {
			return nil, errorf(method, "key %q, value %q: %w", key, val, err)
		}
	}
	if err := s.Err(); err != nil {
		return nil, errorf(method, "%w", err)
	}
	switch c.Baseline {
	case "disk", "git":
	default:
		return nil, errorf(method, "unknown baseline source %q", c.Baseline)
	}
	return c, nil
}

// Base returns the base directory.
func (c *C) Base() string {
	return c.base
}

// An instance of *storage.Paired will log keys to propagate from the
// fast store to the slow store to this append-only log.  This will
// ensure all baselines are eventually copied to the slow store, even
// if difftrack exits before copying them.
func (c *C) PropagationLogFilePath() string {
	return filepath.Join(c.base, "propagation.log")
}

// Initialize generates an initial configuration at the given directory.
func Initialize(baseDir string) error {
	const method = "Initialize"
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return errorf(method, "%q: could not mkdir: %w", baseDir, err)
	}
	path := filepath.Join(baseDir, "config")
	_, err := os.Stat(path)
	if err == nil {
		return errorf(method, "%q: already exists", path)
	}
	if !os.IsNotExist(err) {
		return errorf(method, "%q: could not determine if it exists: %w", path, err)
	}

	var buf bytes.Buffer
	buf.WriteString("storage disk\n")
	buf.WriteString("disk-store-dir baselines\n")
	buf.WriteString("baseline disk\n")
	buf.WriteString("context-lines 3\n")
	buf.WriteString("# log-file watch.log\n")
	buf.WriteString("# s3-region eu-west-1\n")
	buf.WriteString("# s3-bucket my-bucket\n")
	buf.WriteString("# s3-profile default\n")
	for _, key := range []string{
		"show-deleted-badge",
		"show-block-actions",
		"highlight-added",
		"highlight-modified",
		"highlight-word-changes",
	} {
		fmt.Fprintf(&buf, "%s true\n", key)
	}
	err = os.WriteFile(path, buf.Bytes(), 0600)
	if err != nil {
		return errorf(method, "%q: %w", path, err)
	}
	return nil
}
