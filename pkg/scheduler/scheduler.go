// Package scheduler arranges future delivery of step messages for waits and retries.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dukex/petflow/pkg/models"
)

// Scheduler arranges for msg to be enqueued at resumeAt.
type Scheduler interface {
	ScheduleResume(ctx context.Context, msg models.StepMessage, resumeAt time.Time) error
}

// Store is a Scheduler whose due entries can be claimed by a Poller.
type Store interface {
	Scheduler
	// Due claims up to limit messages whose resume time is at or before now.
	// A claimed message is removed from the store and returned to exactly one caller.
	Due(ctx context.Context, now time.Time, limit int) ([]models.StepMessage, error)
}

// member encodes a message as a stable set member, so scheduling the same message twice keeps one entry.
func member(msg models.StepMessage) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode step message: %w", err)
	}

	return string(data), nil
}

func decode(raw string) (models.StepMessage, error) {
	var msg models.StepMessage

	err := json.Unmarshal([]byte(raw), &msg)
	if err != nil {
		return msg, fmt.Errorf("failed to decode step message: %w", err)
	}

	return msg, nil
}

// MemoryStore keeps scheduled messages in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time)}
}

func (s *MemoryStore) ScheduleResume(_ context.Context, msg models.StepMessage, resumeAt time.Time) error {
	key, err := member(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = resumeAt

	return nil
}

func (s *MemoryStore) Due(_ context.Context, now time.Time, limit int) ([]models.StepMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type entry struct {
		key string
		at  time.Time
	}

	var due []entry

	for key, at := range s.entries {
		if !at.After(now) {
			due = append(due, entry{key: key, at: at})
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].key < due[j].key
		}

		return due[i].at.Before(due[j].at)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	messages := make([]models.StepMessage, 0, len(due))

	var skipped error

	for _, e := range due {
		delete(s.entries, e.key)

		msg, err := decode(e.key)
		if err != nil {
			skipped = errors.Join(skipped, err)

			continue
		}

		messages = append(messages, msg)
	}

	return messages, skipped
}

// Len returns the number of scheduled messages.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Next returns the earliest resume time and its message.
func (s *MemoryStore) Next() (models.StepMessage, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		nextKey string
		nextAt  time.Time
	)

	for key, at := range s.entries {
		if nextKey == "" || at.Before(nextAt) || (at.Equal(nextAt) && key < nextKey) {
			nextKey, nextAt = key, at
		}
	}

	if nextKey == "" {
		return models.StepMessage{}, time.Time{}, false
	}

	msg, err := decode(nextKey)
	if err != nil {
		return models.StepMessage{}, time.Time{}, false
	}

	return msg, nextAt, true
}
