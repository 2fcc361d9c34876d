package repository

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

// FileLedger stores entries as comma-delimited lines in a single file:
//
//	phone,status,details,timestamp
//
// All writers in the process serialize on mu. The file is opened per append so
// that an operator can rotate or inspect it between writes.
type FileLedger struct {
	Path string

	mu  sync.Mutex
	now func() time.Time
}

func NewFileLedger(path string) *FileLedger {
	return &FileLedger{Path: path}
}

func (l *FileLedger) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

func (l *FileLedger) AlreadySent(ctx context.Context) (map[string]struct{}, error) {
	sent := map[string]struct{}{}
	err := l.scan(func(line string) {
		phone, _, _ := strings.Cut(line, ",")
		phone = strings.TrimSpace(phone)
		if phone != "" {
			sent[phone] = struct{}{}
		}
	})
	return sent, err
}

func (l *FileLedger) Record(ctx context.Context, phone, status, details string) error {
	ts := l.clock().UTC().Format(time.RFC3339Nano)
	line := fmt.Sprintf("%s,%s,%s,%s\n", SanitizeField(phone), SanitizeField(status), SanitizeField(details), ts)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger: %w", err)
	}
	if info.Size() == 0 {
		line = LedgerHeader + "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

// Entries parses every data line of the log.
func (l *FileLedger) Entries(ctx context.Context) ([]model.LedgerEntry, error) {
	var out []model.LedgerEntry
	err := l.scan(func(line string) {
		fields := strings.SplitN(line, ",", 4)
		for len(fields) < 4 {
			fields = append(fields, "")
		}
		e := model.LedgerEntry{
			Phone:   strings.TrimSpace(fields[0]),
			Status:  strings.TrimSpace(fields[1]),
			Details: fields[2],
		}
		if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(fields[3])); err == nil {
			e.Timestamp = ts
		}
		out = append(out, e)
	})
	return out, err
}

func (l *FileLedger) Stats(ctx context.Context) (map[string]int, error) {
	stats := newStats()
	err := l.scan(func(line string) {
		fields := strings.SplitN(line, ",", 3)
		if len(fields) < 2 {
			return
		}
		stats[strings.TrimSpace(fields[1])]++
		stats["total"]++
	})
	return stats, err
}

// scan calls fn for every non-blank, non-header line. A missing file is an empty log.
func (l *FileLedger) scan(fn func(line string)) error {
	f, err := os.Open(l.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "phone,") {
			continue
		}
		fn(line)
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	return nil
}

var (
	_ Ledger      = (*FileLedger)(nil)
	_ LedgerStats = (*FileLedger)(nil)
)
