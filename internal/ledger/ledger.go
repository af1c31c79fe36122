// Package ledger keeps the append-only action history.
//
// The ledger is one text file, one record per line, fields joined by a tab.
// Tabs are outside the legal character set of every field (RFC 3339
// timestamps, container and service names, image references, digests,
// action kinds), so no escaping is needed; Append still refuses any field
// that would smuggle one in. Records are never rewritten or deleted and
// their total order is append order.
//
// Queries scan the whole file. This is a low-frequency operational tool,
// not a high-throughput system; an index would buy nothing.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"updock/internal/image"
)

// Action is the kind of decision or outcome a record describes.
type Action string

const (
	ActionUpdate          Action = "update"
	ActionSkipPinned      Action = "skip-pinned"
	ActionSkipMismatch    Action = "skip-mismatch"
	ActionPullFail        Action = "pull-fail"
	ActionRecreateFail    Action = "recreate-fail"
	ActionRollbackSuccess Action = "rollback-success"
	ActionRollbackFail    Action = "rollback-fail"
	ActionNotFound        Action = "not-found"
)

// Failed reports whether the action describes a failed outcome.
func (a Action) Failed() bool {
	switch a {
	case ActionPullFail, ActionRecreateFail, ActionRollbackFail, ActionNotFound:
		return true
	}
	return false
}

// Record is one ledger entry.
//
// Name is the logical name the target is filed under: the container name on
// the manual path, the declared service name on the compose path. Identity
// is image.Placeholder when the record's outcome has no resolvable identity.
type Record struct {
	Time     time.Time
	Name     string
	Image    string
	Identity image.Identity
	Action   Action
}

const (
	separator  = "\t"
	fieldCount = 5
)

// Ledger appends to and queries one history file. Concurrent processes are
// coordinated with an advisory flock: exclusive for appends, shared for
// queries.
type Ledger struct {
	path string
}

// Open returns a ledger backed by path, creating parent directories. The
// file itself is created lazily on first append.
func Open(path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &Ledger{path: path}, nil
}

// Path returns the backing file location.
func (l *Ledger) Path() string { return l.path }

// Append writes exactly one record. Existing records are never touched:
// the file is opened in append mode and only ever grows.
func (l *Ledger) Append(rec Record) error {
	line, err := encode(rec)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	return nil
}

// Query returns the most recent records for name whose action is in kinds,
// most recent first, at most limit entries. An empty kinds set matches
// every action; limit <= 0 means no limit. A missing ledger file yields no
// records, not an error.
func (l *Ledger) Query(name string, kinds []Action, limit int) ([]Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()

	wanted := make(map[Action]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}

	var matched []Record
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := decode(line)
		if err != nil {
			// A foreign or damaged line must not make history
			// unreadable; skip it and keep the rest queryable.
			slog.Warn("Skipping malformed ledger line.", "line", lineNo, "err", err)
			continue
		}
		if rec.Name != name {
			continue
		}
		if len(wanted) > 0 && !wanted[rec.Action] {
			continue
		}
		matched = append(matched, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}

	// Newest first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func encode(rec Record) (string, error) {
	identity := string(rec.Identity)
	if identity == "" {
		identity = image.Placeholder
	}
	fields := []string{
		rec.Time.UTC().Format(time.RFC3339),
		rec.Name,
		rec.Image,
		identity,
		string(rec.Action),
	}
	for _, f := range fields {
		if strings.ContainsAny(f, separator+"\n\r") {
			return "", fmt.Errorf("ledger field %q contains separator or newline", f)
		}
		if f == "" {
			return "", errors.New("ledger record has an empty field")
		}
	}
	return strings.Join(fields, separator), nil
}

func decode(line string) (Record, error) {
	fields := strings.Split(line, separator)
	if len(fields) != fieldCount {
		return Record{}, fmt.Errorf("want %d fields, got %d", fieldCount, len(fields))
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Record{}, fmt.Errorf("bad timestamp %q: %w", fields[0], err)
	}
	return Record{
		Time:     ts,
		Name:     fields[1],
		Image:    fields[2],
		Identity: image.Identity(fields[3]),
		Action:   Action(fields[4]),
	}, nil
}
