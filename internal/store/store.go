package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"routing-simulator/internal/simulation"
	"routing-simulator/internal/types"
)

// ErrRunNotFound is returned when no snapshot exists for a run id.
var ErrRunNotFound = errors.New("run not found")

// codec sorts map keys so stored documents are stable.
var codec = sonic.ConfigStd

const (
	sessionKey   = "session"
	runsKey      = "runs"
	summariesKey = "summaries"
)

// Store persists credentials, run snapshots, transaction logs and summaries in Redis.
type Store struct {
	RDB    *redis.Client
	prefix string
}

func New(rdb *redis.Client, prefix string) *Store {
	return &Store{RDB: rdb, prefix: prefix}
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 || k != "" {
			k += ":"
		}
		k += p
	}

	return k
}

// LogStreamKey is the stream holding the transaction log of a run.
func (s *Store) LogStreamKey(runID string) string {
	return s.key(runsKey, runID, "log")
}

// SaveSession stores the three credential strings.
func (s *Store) SaveSession(ctx context.Context, session types.SessionContext) error {
	err := s.RDB.HSet(ctx, s.key(sessionKey),
		"apiKey", session.APIKey,
		"profileId", session.ProfileID,
		"merchantId", session.MerchantID,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// LoadSession returns the stored credentials. ok is false when nothing was stored.
func (s *Store) LoadSession(ctx context.Context) (types.SessionContext, bool, error) {
	values, err := s.RDB.HGetAll(ctx, s.key(sessionKey)).Result()
	if err != nil {
		return types.SessionContext{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	if len(values) == 0 {
		return types.SessionContext{}, false, nil
	}

	return types.SessionContext{
		APIKey:     values["apiKey"],
		ProfileID:  values["profileId"],
		MerchantID: values["merchantId"],
	}, true, nil
}

// RecordTick appends the batch log entries to the run stream and replaces the run snapshot.
func (s *Store) RecordTick(ctx context.Context, snap simulation.Snapshot, entries []types.TransactionLogEntry) error {
	snapBytes, err := codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := s.RDB.Pipeline()
	for _, entry := range entries {
		entryBytes, err := codec.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal log entry: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.LogStreamKey(snap.RunID),
			Values: []interface{}{"sequence", entry.Sequence, "entry", string(entryBytes)},
		})
	}
	pipe.HSet(ctx, s.key(runsKey), snap.RunID, string(snapBytes))

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record tick: %w", err)
	}

	return nil
}

// SaveRunState stores a snapshot without log entries.
func (s *Store) SaveRunState(ctx context.Context, snap simulation.Snapshot) error {
	return s.RecordTick(ctx, snap, nil)
}

// LoadRun returns the last stored snapshot of a run.
func (s *Store) LoadRun(ctx context.Context, runID string) (simulation.Snapshot, error) {
	data, err := s.RDB.HGet(ctx, s.key(runsKey), runID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return simulation.Snapshot{}, ErrRunNotFound
		}

		return simulation.Snapshot{}, fmt.Errorf("failed to load run: %w", err)
	}

	var snap simulation.Snapshot
	if err := codec.Unmarshal([]byte(data), &snap); err != nil {
		return simulation.Snapshot{}, fmt.Errorf("failed to decode run: %w", err)
	}

	return snap, nil
}

// LoadLog reads up to count log entries of a run, oldest first.
func (s *Store) LoadLog(ctx context.Context, runID string, count int64) ([]types.TransactionLogEntry, error) {
	messages, err := s.RDB.XRangeN(ctx, s.LogStreamKey(runID), "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run log: %w", err)
	}

	entries := make([]types.TransactionLogEntry, 0, len(messages))
	for _, message := range messages {
		raw, ok := message.Values["entry"].(string)
		if !ok {
			continue
		}
		var entry types.TransactionLogEntry
		if err := codec.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// SaveSummary stores the summary of a run.
func (s *Store) SaveSummary(ctx context.Context, runID string, result types.SummaryResult) error {
	data, err := codec.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := s.RDB.HSet(ctx, s.key(summariesKey), runID, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}

	return nil
}

// LoadSummary returns the stored summary of a run.
func (s *Store) LoadSummary(ctx context.Context, runID string) (types.SummaryResult, error) {
	data, err := s.RDB.HGet(ctx, s.key(summariesKey), runID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.SummaryResult{}, ErrRunNotFound
		}

		return types.SummaryResult{}, fmt.Errorf("failed to load summary: %w", err)
	}

	var result types.SummaryResult
	if err := codec.Unmarshal([]byte(data), &result); err != nil {
		return types.SummaryResult{}, fmt.Errorf("failed to decode summary: %w", err)
	}

	return result, nil
}

// PurgeRun removes everything stored for a run.
func (s *Store) PurgeRun(ctx context.Context, runID string) error {
	pipe := s.RDB.Pipeline()
	pipe.Del(ctx, s.LogStreamKey(runID))
	pipe.HDel(ctx, s.key(runsKey), runID)
	pipe.HDel(ctx, s.key(summariesKey), runID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to purge run: %w", err)
	}

	return nil
}

// Recorder persists engine events.
type Recorder struct {
	store   *Store
	timeout time.Duration
	logger  *zap.Logger
}

func NewRecorder(store *Store, timeout time.Duration, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, timeout: timeout, logger: logger}
}

func (r *Recorder) Observe(ev simulation.Event) {
	if ev.RunID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var err error
	switch ev.Type {
	case simulation.EventState:
		if ev.Snapshot != nil {
			err = r.store.SaveRunState(ctx, *ev.Snapshot)
		}
	case simulation.EventTick:
		if ev.Snapshot != nil {
			err = r.store.RecordTick(ctx, *ev.Snapshot, ev.Entries)
		}
	case simulation.EventSummary:
		if ev.Summary != nil {
			err = r.store.SaveSummary(ctx, ev.RunID, *ev.Summary)
		}
	}

	if err != nil {
		r.logger.Warn("failed to persist simulation event",
			zap.String("run_id", ev.RunID),
			zap.String("event", string(ev.Type)),
			zap.Error(err))
	}
}
