// Package cyclelog journals run-cycle activity as JSON lines in daily
// files. The report aggregator scans the journal to compute the cycle
// success rate and the most recent activity timestamp; the journal is
// append-only and survives bot restarts.
package cyclelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Event types recorded by the cycle engine.
const (
	EventCycleStart    = "cycle_start"
	EventCycleComplete = "cycle_complete"
	EventCycleError    = "cycle_error"
	EventBuy           = "buy"
	EventExitOpened    = "exit_opened"
	EventExitResolved  = "exit_resolved"
)

// Event is one journaled line.
type Event struct {
	Time   string                 `json:"time"`
	Type   string                 `json:"type"`
	Symbol string                 `json:"symbol,omitempty"`
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// Activity summarizes journal events inside a time window.
type Activity struct {
	Starts      int
	Completions int
	Errors      int
	Buys        int
	ExitsOpened int
	LastEvent   *time.Time
}

// Journal appends and scans the daily cycle files under one directory.
type Journal struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// New creates a journal writing under dir. An empty dir defaults to
// "logs".
func New(dir string) *Journal {
	if dir == "" {
		dir = "logs"
	}
	return &Journal{dir: dir, now: time.Now}
}

func (j *Journal) path(t time.Time) string {
	return filepath.Join(j.dir, "cycles_"+t.Format("2006-01-02")+".log")
}

// Append writes one event to today's file, creating the directory and
// file as needed.
func (j *Journal) Append(eventType, symbol string, detail map[string]interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	e := Event{
		Time:   now.Format(timeLayout),
		Type:   eventType,
		Symbol: symbol,
		Detail: detail,
	}
	p := j.path(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal file %s: %w", p, err)
	}
	defer f.Close()

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode journal event: %w", err)
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// Scan summarizes the events in [since, until]. Missing daily files are
// skipped and malformed lines ignored, so a partial journal degrades the
// summary instead of failing it.
func (j *Journal) Scan(since, until time.Time) (*Activity, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	activity := &Activity{}
	firstDay := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location())
	for day := firstDay; !day.After(until); day = day.AddDate(0, 0, 1) {
		p := j.path(day)
		f, err := os.Open(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to open journal file %s: %w", p, err)
		}

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var e Event
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				continue
			}
			at, err := time.ParseInLocation(timeLayout, e.Time, time.Local)
			if err != nil {
				continue
			}
			if at.Before(since) || at.After(until) {
				continue
			}
			switch e.Type {
			case EventCycleStart:
				activity.Starts++
			case EventCycleComplete:
				activity.Completions++
			case EventCycleError:
				activity.Errors++
			case EventBuy:
				activity.Buys++
			case EventExitOpened:
				activity.ExitsOpened++
			}
			if activity.LastEvent == nil || at.After(*activity.LastEvent) {
				t := at
				activity.LastEvent = &t
			}
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read journal file %s: %w", p, err)
		}
	}
	return activity, nil
}
