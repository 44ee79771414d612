package backup

import (
	"fmt"
	"strings"
	"time"
)

const (
	// NamePrefix starts the name of every backup object.
	NamePrefix = "hextrix_memory_backup_"

	// TimeFormat is the UTC timestamp layout embedded in backup names.
	TimeFormat = "20060102T150405Z"

	fullExt   = ".bin"
	sparseExt = ".npz"
)

// Mode selects what CreateBackup produces.
type Mode int

const (
	// ModeFull copies the whole backing file.
	ModeFull Mode = iota
	// ModeSparse uploads only occupied slots as a compressed archive.
	ModeSparse
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeSparse:
		return "sparse"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ParseMode parses "full" or "sparse".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return ModeFull, nil
	case "sparse", "compressed":
		return ModeSparse, nil
	default:
		return 0, fmt.Errorf("backup: unknown mode %q", s)
	}
}

func (m Mode) ext() string {
	if m == ModeSparse {
		return sparseExt
	}
	return fullExt
}

// Name returns the default backup name for mode at t.
func Name(mode Mode, t time.Time) string {
	return NamePrefix + t.UTC().Format(TimeFormat) + mode.ext()
}

// ParseName extracts mode and timestamp from a backup name.
func ParseName(name string) (Mode, time.Time, bool) {
	rest, ok := strings.CutPrefix(name, NamePrefix)
	if !ok {
		return 0, time.Time{}, false
	}
	var mode Mode
	switch {
	case strings.HasSuffix(rest, fullExt):
		mode = ModeFull
	case strings.HasSuffix(rest, sparseExt):
		mode = ModeSparse
	default:
		return 0, time.Time{}, false
	}
	ts, err := time.Parse(TimeFormat, strings.TrimSuffix(rest, mode.ext()))
	if err != nil {
		return mode, time.Time{}, true
	}
	return mode, ts, true
}
