package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/feed"
	"github.com/linesmerrill/agendajur-api/models"
)

// MemoryHearings is an in-process hearing collection
type MemoryHearings struct {
	mu       sync.RWMutex
	hearings map[string]models.Hearing
	changes  *feed.Notifier
	logger   *zap.SugaredLogger
}

// NewMemoryHearings returns an empty in-process hearing collection
func NewMemoryHearings(logger *zap.SugaredLogger) *MemoryHearings {
	return &MemoryHearings{
		hearings: make(map[string]models.Hearing),
		changes:  feed.NewNotifier(),
		logger:   logger,
	}
}

// Add stores a new hearing under a generated id
func (m *MemoryHearings) Add(ctx context.Context, details models.HearingDetails) (models.Hearing, error) {
	if err := ctx.Err(); err != nil {
		return models.Hearing{}, err
	}
	h := models.Hearing{ID: uuid.New().String(), Details: cloneDetails(details)}

	m.mu.Lock()
	m.hearings[h.ID] = h
	m.mu.Unlock()

	m.changes.Notify()
	return h, nil
}

// Update replaces the details of an existing hearing
func (m *MemoryHearings) Update(ctx context.Context, id string, details models.HearingDetails) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	h, ok := m.hearings[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	h.Details = cloneDetails(details)
	h.Version++
	m.hearings[id] = h
	m.mu.Unlock()

	m.changes.Notify()
	return nil
}

// Delete removes a hearing. Deleting an unknown id is not an error.
func (m *MemoryHearings) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	_, ok := m.hearings[id]
	delete(m.hearings, id)
	m.mu.Unlock()

	if ok {
		m.changes.Notify()
	}
	return nil
}

// Get returns one hearing by id
func (m *MemoryHearings) Get(ctx context.Context, id string) (*models.Hearing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hearings[id]
	if !ok {
		return nil, ErrNotFound
	}
	h.Details = cloneDetails(h.Details)
	return &h, nil
}

// Find returns the hearings matching f sorted ascending by date
func (m *MemoryHearings) Find(ctx context.Context, f HearingFilter) ([]models.Hearing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]models.Hearing, 0, len(m.hearings))
	for _, h := range m.hearings {
		if f.Matches(h) {
			h.Details = cloneDetails(h.Details)
			out = append(out, h)
		}
	}
	m.mu.RUnlock()

	models.SortHearings(out)
	return out, nil
}

// Subscribe streams the hearings matching f after every change
func (m *MemoryHearings) Subscribe(ctx context.Context, f HearingFilter) (*feed.Subscription[models.Hearing], error) {
	triggers, stop := m.changes.Listen()
	sub := feed.Start(ctx, func(ctx context.Context) ([]models.Hearing, error) {
		return m.Find(ctx, f)
	}, triggers, m.logger)
	go func() {
		<-sub.Done()
		stop()
	}()
	return sub, nil
}

// cloneDetails copies the attachment list so callers never share it. The
// copy is never nil.
func cloneDetails(d models.HearingDetails) models.HearingDetails {
	attachments := make([]models.Attachment, len(d.Attachments))
	copy(attachments, d.Attachments)
	d.Attachments = attachments
	return d
}

// MemoryLogs is an in-process audit log
type MemoryLogs struct {
	mu      sync.RWMutex
	entries []models.LogEntry
	changes *feed.Notifier
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewMemoryLogs returns an empty in-process audit log
func NewMemoryLogs(logger *zap.SugaredLogger) *MemoryLogs {
	return &MemoryLogs{
		changes: feed.NewNotifier(),
		logger:  logger,
		now:     time.Now,
	}
}

// Add appends an entry, filling in id and timestamp when missing
func (m *MemoryLogs) Add(ctx context.Context, entry models.LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now()
	}

	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()

	m.changes.Notify()
	return nil
}

// Recent returns at most limit entries, newest first
func (m *MemoryLogs) Recent(ctx context.Context, limit int) ([]models.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]models.LogEntry, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0; i-- {
		out = append(out, m.entries[i])
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Subscribe streams the most recent limit entries after every append
func (m *MemoryLogs) Subscribe(ctx context.Context, limit int) (*feed.Subscription[models.LogEntry], error) {
	triggers, stop := m.changes.Listen()
	sub := feed.Start(ctx, func(ctx context.Context) ([]models.LogEntry, error) {
		return m.Recent(ctx, limit)
	}, triggers, m.logger)
	go func() {
		<-sub.Done()
		stop()
	}()
	return sub, nil
}
