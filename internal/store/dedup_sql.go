package store

import (
	"fmt"
	"log/slog"
	"time"
)

var (
	_ DedupRepo = (*SQLiteStore)(nil)
	_ DedupRepo = (*PostgresStore)(nil)
	_ DedupRepo = (*InMemoryStore)(nil)
)

func (s *sqlCore) RecordInbound(key, familyID string) (bool, error) {
	result, err := s.exec(
		`INSERT INTO inbound_dedup (dedupe_key, family_id, received_at) VALUES (?, ?, ?) ON CONFLICT (dedupe_key) DO NOTHING`,
		key, familyID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		slog.Debug(s.name+".RecordInbound: duplicate", "key", key)
		return false, nil
	}
	return true, nil
}

func (s *sqlCore) MarkProcessed(key string) error {
	if _, err := s.exec(`UPDATE inbound_dedup SET processed_at = ? WHERE dedupe_key = ?`, time.Now(), key); err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *sqlCore) ForgetInbound(key string) error {
	if _, err := s.exec(`DELETE FROM inbound_dedup WHERE dedupe_key = ?`, key); err != nil {
		return fmt.Errorf("forget inbound failed: %w", err)
	}
	return nil
}

func (s *InMemoryStore) RecordInbound(key, familyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbound == nil {
		s.inbound = make(map[string]DedupRecord)
	}
	if _, ok := s.inbound[key]; ok {
		return false, nil
	}
	s.inbound[key] = DedupRecord{Key: key, FamilyID: familyID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.inbound[key]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.inbound[key] = rec
	return nil
}

func (s *InMemoryStore) ForgetInbound(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inbound, key)
	return nil
}
