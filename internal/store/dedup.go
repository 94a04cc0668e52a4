package store

import (
	"fmt"
	"log/slog"
	"time"
)

// DedupStore records inbound message IDs so provider redeliveries are processed once.
type DedupStore interface {
	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(messageID, subject string) (bool, error)
	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(messageID string) error
}

func (s *sqlStore) RecordInbound(messageID, subject string) (bool, error) {
	res, err := s.db.Exec(s.q(`INSERT INTO inbound_dedup (message_id, subject, received_at) VALUES (?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`), messageID, subject, time.Now())
	if err != nil {
		slog.Error(s.name+" RecordInbound failed", "error", err, "messageID", messageID)
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound affected rows: %w", err)
	}
	if n == 0 {
		slog.Debug(s.name+" RecordInbound duplicate", "messageID", messageID, "subject", subject)
		return false, nil
	}
	return true, nil
}

func (s *sqlStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(s.q(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`), time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *InMemoryStore) RecordInbound(messageID, subject string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.inbound[messageID]; seen {
		return false, nil
	}
	s.inbound[messageID] = false
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.inbound[messageID]; seen {
		s.inbound[messageID] = true
	}
	return nil
}
