package storage

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Ledger is the persistent set of markets a buy has already been taken
// on. Membership is permanent for the life of the ledger file: once a
// market is marked it is never bought again, even across restarts and
// even if the order itself failed.
type Ledger struct {
	path string

	mu     sync.Mutex
	loaded bool
	marked map[string]bool
}

// NewLedger creates a ledger backed by the given file. The file is
// created lazily on the first mark.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// IsIgnored reports whether a buy was already taken on the market.
func (l *Ledger) IsIgnored(market string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return false, err
	}
	return l.marked[market], nil
}

// MarkIgnored records the market in the ledger. Marking an already-marked
// market is a no-op.
func (l *Ledger) MarkIgnored(market string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return err
	}
	if l.marked[market] {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(market + "\n"); err != nil {
		return fmt.Errorf("failed to append to ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}

	l.marked[market] = true
	return nil
}

func (l *Ledger) load() error {
	if l.loaded {
		return nil
	}

	l.marked = make(map[string]bool)
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		l.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		market := strings.TrimSpace(scanner.Text())
		if market != "" {
			l.marked[market] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan ledger: %w", err)
	}

	l.loaded = true
	return nil
}
