package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/cascada/internal/types"
)

// maxEventLine bounds a single journal line; message events carry whole
// counterparty replies.
const maxEventLine = 1 << 20

// EventStore is a JSONL-backed append-only run journal.
// Events are stored per run in runs/<runID>/events.jsonl.
type EventStore struct {
	root string

	mu   sync.Mutex
	logs map[types.RunID]*runLog
}

// runLog serializes writers of one journal file and caches its last sequence
// number once the file has been counted.
type runLog struct {
	mu     sync.Mutex
	seq    int64
	loaded bool
}

// NewEventStore creates a new file-backed EventStore rooted at the given directory.
func NewEventStore(root string) *EventStore {
	return &EventStore{
		root: root,
		logs: make(map[types.RunID]*runLog),
	}
}

func (e *EventStore) log(runID types.RunID) *runLog {
	e.mu.Lock()
	defer e.mu.Unlock()

	if l, ok := e.logs[runID]; ok {
		return l
	}
	l := &runLog{}
	e.logs[runID] = l
	return l
}

func (e *EventStore) eventsPath(runID types.RunID) string {
	return filepath.Join(e.root, "runs", string(runID), "events.jsonl")
}

// scan calls fn for every journal line. A missing file has no lines.
func (e *EventStore) scan(runID types.RunID, fn func(line []byte) error) error {
	f, err := os.Open(e.eventsPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan events file: %w", err)
	}
	return nil
}

// count returns the journal length. Caller must hold the run log lock.
func (e *EventStore) count(runID types.RunID, l *runLog) (int64, error) {
	if l.loaded {
		return l.seq, nil
	}
	var n int64
	if err := e.scan(runID, func([]byte) error { n++; return nil }); err != nil {
		return 0, err
	}
	l.seq, l.loaded = n, true
	return n, nil
}

// Append adds an event to the run's journal with an auto-incremented sequence number.
func (e *EventStore) Append(_ context.Context, event *types.Event) error {
	l := e.log(event.RunID)
	l.mu.Lock()
	defer l.mu.Unlock()

	path := e.eventsPath(event.RunID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	n, err := e.count(event.RunID, l)
	if err != nil {
		return err
	}
	event.Seq = n + 1

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	l.seq = event.Seq
	return nil
}

// Tail returns the last limit events of the run, oldest first. A
// non-positive limit returns every event.
func (e *EventStore) Tail(_ context.Context, runID types.RunID, limit int) ([]*types.Event, error) {
	l := e.log(runID)
	l.mu.Lock()
	defer l.mu.Unlock()

	var events []*types.Event
	err := e.scan(runID, func(line []byte) error {
		var event types.Event
		if err := json.Unmarshal(line, &event); err != nil {
			return fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, &event)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Count returns the number of events journaled for the run.
func (e *EventStore) Count(_ context.Context, runID types.RunID) (int64, error) {
	l := e.log(runID)
	l.mu.Lock()
	defer l.mu.Unlock()

	return e.count(runID, l)
}
