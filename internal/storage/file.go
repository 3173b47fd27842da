package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "jokeline/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of both sets)
//   - <prefix>.journal.jsonl (append-only journal of mutations since the snapshot)
//
// The journal is compacted into the snapshot every compactEvery writes and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	subs   map[string]int64 // address -> unix milli
	ledger map[string]int64 // content id -> unix milli

	writes int
}

const compactEvery = 1000

const (
	opSubscribe   = "sub+"
	opUnsubscribe = "sub-"
	opRecord      = "ledger+"
)

type journalRecord struct {
	Op  string `json:"op"`
	Key string `json:"key"`
	At  int64  `json:"at"`
}

type snapshot struct {
	Subscribers map[string]int64 `json:"subscribers"`
	Ledger      map[string]int64 `json:"ledger"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.DSN)
	if path == "" {
		return nil, errors.New("storage.dsn is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		subs:         map[string]int64{},
		ledger:       map[string]int64{},
	}
	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	journalPath := prefix + ".journal.jsonl"
	replayed, err := s.replayJournal(journalPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if dropped, err := repairTail(jf); err != nil {
		_ = jf.Close()
		return nil, fmt.Errorf("repair journal: %w", err)
	} else if dropped > 0 {
		log.Warn("dropped torn journal tail", logx.String("path", journalPath), logx.Int("bytes", int(dropped)))
	}
	s.journal = jf
	log.Debug("file store ready",
		logx.String("prefix", prefix),
		logx.Int("subscribers", len(s.subs)),
		logx.Int("ledger", len(s.ledger)),
		logx.Int("replayed", replayed),
	)
	return s, nil
}

func (s *fileStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) FindSubscriber(_ context.Context, address string) (Subscriber, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return Subscriber{}, false, ErrClosed
	}
	ms, ok := s.subs[address]
	if !ok {
		return Subscriber{}, false, nil
	}
	return Subscriber{Address: address, CreatedAt: fromMillis(ms)}, true, nil
}

func (s *fileStore) ListSubscribers(context.Context) ([]Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	m := make(map[string]time.Time, len(s.subs))
	for k, v := range s.subs {
		m[k] = fromMillis(v)
	}
	return sortedSubscribers(m), nil
}

func (s *fileStore) InsertSubscriber(_ context.Context, address string) (bool, error) {
	return s.mutate(opSubscribe, address)
}

func (s *fileStore) DeleteSubscriber(_ context.Context, address string) (bool, error) {
	return s.mutate(opUnsubscribe, address)
}

func (s *fileStore) FindContent(_ context.Context, contentID string) (LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return LedgerEntry{}, false, ErrClosed
	}
	ms, ok := s.ledger[contentID]
	if !ok {
		return LedgerEntry{}, false, nil
	}
	return LedgerEntry{ContentID: contentID, RecordedAt: fromMillis(ms)}, true, nil
}

func (s *fileStore) RecordContent(_ context.Context, contentID string) (bool, error) {
	return s.mutate(opRecord, contentID)
}

// mutate applies one journaled operation. The journal line is written before the
// in-memory state changes, so a failed write leaves both unchanged.
func (s *fileStore) mutate(op, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, errEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return false, ErrClosed
	}

	rec := journalRecord{Op: op, Key: key, At: time.Now().UnixMilli()}
	if !s.wouldChange(rec) {
		return false, nil
	}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return false, fmt.Errorf("journal %s: %w", op, err)
	}
	s.apply(rec)

	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("store compact failed", logx.Err(err))
		}
	}
	return true, nil
}

func (s *fileStore) wouldChange(r journalRecord) bool {
	switch r.Op {
	case opSubscribe:
		_, ok := s.subs[r.Key]
		return !ok
	case opUnsubscribe:
		_, ok := s.subs[r.Key]
		return ok
	case opRecord:
		_, ok := s.ledger[r.Key]
		return !ok
	}
	return false
}

func (s *fileStore) apply(r journalRecord) {
	switch r.Op {
	case opSubscribe:
		s.subs[r.Key] = r.At
	case opUnsubscribe:
		delete(s.subs, r.Key)
	case opRecord:
		s.ledger[r.Key] = r.At
	}
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snapshot{Subscribers: s.subs, Ledger: s.ledger}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for k, v := range snap.Subscribers {
		s.subs[k] = v
	}
	for k, v := range snap.Ledger {
		s.ledger[k] = v
	}
	return nil
}

// replayJournal applies journal lines on top of the snapshot. A torn last line
// (crash mid-write) is skipped.
func (s *fileStore) replayJournal(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		s.apply(r)
		n++
	}
	return n, sc.Err()
}

// repairTail truncates the journal back to its last complete line so that
// appends never land on a partial record. It returns the number of bytes cut.
func repairTail(f *os.File) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := st.Size()
	if size == 0 {
		return 0, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, err
	}
	if last[0] == '\n' {
		return 0, nil
	}
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	keep := int64(bytes.LastIndexByte(buf, '\n') + 1)
	if err := f.Truncate(keep); err != nil {
		return 0, err
	}
	return size - keep, f.Sync()
}
