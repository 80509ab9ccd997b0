// Package analysisstore is the beacon-local persistence layer. Each beacon
// has exactly one writer (its own analysis engine process) and a single
// bbolt file, matching the single-writer embedded-store model: one bucket
// per entity, JSON-encoded values, sortable composite keys so chronological
// listing is a plain bucket scan.
package analysisstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/wisbric/wopr/pkg/types"
)

const (
	bucketRuns          = "analysis_runs"
	bucketEscalations   = "escalations"
	bucketAutoActionLog = "auto_action_log"
)

// Store wraps a bbolt database holding one beacon's analysis history.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt file at path, named by the AI_ENGINE_DB
// configuration value, and ensures every bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening analysis db %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketRuns, bucketEscalations, bucketAutoActionLog} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

// sortableKey builds a lexicographically sortable key: RFC3339Nano
// timestamp, then the entity id, so chronological order equals key order.
func sortableKey(t time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s_%s", t.UTC().Format(time.RFC3339Nano), id))
}

// --- AnalysisRun ---

// CreateRun inserts a new AnalysisRun, already in status running.
func (s *Store) CreateRun(run types.AnalysisRun) error {
	return s.putRun(run)
}

// CompleteRun marks a run completed or failed and rewrites its row. Runs
// are keyed by started_at, which never changes, so the update is a plain
// overwrite of the same key.
func (s *Store) CompleteRun(run types.AnalysisRun) error {
	return s.putRun(run)
}

func (s *Store) putRun(run types.AnalysisRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	key := sortableKey(run.StartedAt, run.ID)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRuns)).Put(key, data)
	})
}

// ListRuns returns up to limit AnalysisRuns, most recent first.
func (s *Store) ListRuns(limit int) ([]types.AnalysisRun, error) {
	var runs []types.AnalysisRun
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRuns)).ForEach(func(_, v []byte) error {
			var run types.AnalysisRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// --- Escalation ---

// FindPendingDuplicate returns a pending, non-expired escalation for
// (service, proposedAction) if one exists, implementing the fast-path
// dedup probe from spec §5 ("read-then-insert check").
func (s *Store) FindPendingDuplicate(service, proposedAction string, now time.Time) (*types.Escalation, error) {
	var match *types.Escalation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketEscalations)).ForEach(func(_, v []byte) error {
			var esc types.Escalation
			if err := json.Unmarshal(v, &esc); err != nil {
				return err
			}
			if esc.IsDuplicateOf(service, proposedAction, now) {
				escCopy := esc
				match = &escCopy
			}
			return nil
		})
	})
	return match, err
}

// CreateEscalation inserts a new Escalation row.
func (s *Store) CreateEscalation(esc types.Escalation) error {
	return s.putEscalation(esc)
}

// GetEscalation looks up an Escalation by id. Returns (nil, nil) if absent.
func (s *Store) GetEscalation(id uuid.UUID) (*types.Escalation, error) {
	var found *types.Escalation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketEscalations)).ForEach(func(_, v []byte) error {
			var esc types.Escalation
			if err := json.Unmarshal(v, &esc); err != nil {
				return err
			}
			if esc.ID == id {
				escCopy := esc
				found = &escCopy
			}
			return nil
		})
	})
	return found, err
}

// UpdateEscalation rewrites an existing Escalation row in place.
func (s *Store) UpdateEscalation(esc types.Escalation) error {
	return s.putEscalation(esc)
}

func (s *Store) putEscalation(esc types.Escalation) error {
	data, err := json.Marshal(esc)
	if err != nil {
		return err
	}
	key := sortableKey(esc.CreatedAt, esc.ID)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketEscalations)).Put(key, data)
	})
}

// ListEscalations returns up to limit escalations, most recent first,
// optionally filtered by status (empty string means unfiltered).
func (s *Store) ListEscalations(status types.EscalationStatus, limit int) ([]types.Escalation, error) {
	var escalations []types.Escalation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketEscalations)).ForEach(func(_, v []byte) error {
			var esc types.Escalation
			if err := json.Unmarshal(v, &esc); err != nil {
				return err
			}
			if status != "" && esc.Status != status {
				return nil
			}
			escalations = append(escalations, esc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(escalations, func(i, j int) bool { return escalations[i].CreatedAt.After(escalations[j].CreatedAt) })
	if limit > 0 && len(escalations) > limit {
		escalations = escalations[:limit]
	}
	return escalations, nil
}

// --- AutoActionLog ---

// AppendAutoAction inserts a new AutoActionLog row. Append-only.
func (s *Store) AppendAutoAction(entry types.AutoActionLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := sortableKey(entry.ExecutedAt, entry.ID)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAutoActionLog)).Put(key, data)
	})
}

// CountAutoActionsSince counts AutoActionLog rows executed after cutoff,
// the rate-limiter's raw input (spec §5: "counted from AutoActionLog
// within the last hour").
func (s *Store) CountAutoActionsSince(cutoff time.Time) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAutoActionLog)).ForEach(func(_, v []byte) error {
			var entry types.AutoActionLog
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.ExecutedAt.After(cutoff) {
				count++
			}
			return nil
		})
	})
	return count, err
}

// ListAutoActions returns up to limit AutoActionLog rows, most recent
// first.
func (s *Store) ListAutoActions(limit int) ([]types.AutoActionLog, error) {
	var entries []types.AutoActionLog
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAutoActionLog)).ForEach(func(_, v []byte) error {
			var entry types.AutoActionLog
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ExecutedAt.After(entries[j].ExecutedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
