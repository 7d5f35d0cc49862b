package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/databases"
	"github.com/linesmerrill/agendajur-api/email"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/store"
	templates "github.com/linesmerrill/agendajur-api/templates/html"
)

// ReminderSchedule runs the reminder job every day at 07:00
const ReminderSchedule = "0 7 * * *"

const reminderLock = "hearing_reminders"

// HearingFinder lists hearings
type HearingFinder interface {
	Find(ctx context.Context, f store.HearingFilter) ([]models.Hearing, error)
}

// Scheduler emails every client the hearings they have on the following day
type Scheduler struct {
	cron       *cron.Cron
	Hearings   HearingFinder
	UDB        databases.UserDatabase
	LockDB     databases.SchedulerLockDatabase
	Mail       email.Sender
	Location   *time.Location
	instanceID string
	now        func() time.Time
}

// NewScheduler creates a new scheduler instance running in loc
func NewScheduler(hearings HearingFinder, uDB databases.UserDatabase, lockDB databases.SchedulerLockDatabase, mail email.Sender, loc *time.Location) *Scheduler {
	// Heroku sets DYNO to "web.1", "web.2", etc.
	instanceID := os.Getenv("DYNO")
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(loc)),
		Hearings:   hearings,
		UDB:        uDB,
		LockDB:     lockDB,
		Mail:       mail,
		Location:   loc,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(ReminderSchedule, s.runReminders)
	if err != nil {
		return fmt.Errorf("failed to register reminder job: %w", err)
	}

	s.cron.Start()
	zap.S().Infow("hearing reminder scheduler started", "schedule", ReminderSchedule, "timezone", s.Location.String())
	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("hearing reminder scheduler stopped")
}

func (s *Scheduler) runReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sent, err := s.SendReminders(ctx)
	if err != nil {
		zap.S().Errorw("hearing reminder job failed", "error", err, "sent", sent)
		return
	}
	zap.S().Infow("hearing reminder job complete", "sent", sent)
}

// SendReminders mails each client with a hearing tomorrow one reminder
// listing all of them. Only one instance runs it at a time. It returns the
// number of emails sent.
func (s *Scheduler) SendReminders(ctx context.Context) (int, error) {
	acquired, err := s.LockDB.TryAcquireLock(ctx, reminderLock, s.instanceID, 10*time.Minute)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire lock for reminder job: %w", err)
	}
	if !acquired {
		zap.S().Debug("reminder job already running on another instance, skipping")
		return 0, nil
	}
	defer func() {
		if err := s.LockDB.ReleaseLock(context.Background(), reminderLock, s.instanceID); err != nil {
			zap.S().Warnw("failed to release reminder lock", "error", err)
		}
	}()

	hearings, err := s.Hearings.Find(ctx, store.HearingFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to find hearings: %w", err)
	}

	tomorrow := s.now().In(s.Location).AddDate(0, 0, 1)
	byClient := dueOn(hearings, tomorrow)
	clients := make([]string, 0, len(byClient))
	for c := range byClient {
		clients = append(clients, c)
	}
	sort.Strings(clients)

	day := tomorrow.Format("02/01/2006")
	sent := 0
	var failed []string
	for _, client := range clients {
		name := s.clientName(ctx, client)
		htmlBody, plain := templates.RenderHearingReminderEmail(name, day, byClient[client])
		err := s.Mail.Send(ctx, email.Message{
			ToName:  name,
			ToEmail: client,
			Subject: templates.HearingReminderSubject,
			Plain:   plain,
			HTML:    htmlBody,
		})
		if err != nil {
			zap.S().Errorw("failed to send hearing reminder", "to", client, "error", err)
			failed = append(failed, client)
			continue
		}
		sent++
	}
	if len(failed) > 0 {
		return sent, fmt.Errorf("reminders failed for %s", strings.Join(failed, ", "))
	}
	return sent, nil
}

func (s *Scheduler) clientName(ctx context.Context, client string) string {
	if s.UDB == nil {
		return client
	}
	user, err := s.UDB.FindOne(ctx, bson.M{"user.email": client})
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			zap.S().Warnw("failed to look up client name", "client", client, "error", err)
		}
		return client
	}
	return user.Details.Name
}

// dueOn groups the hearings dated on day by lower-cased client email,
// keeping the sorted order of hearings
func dueOn(hearings []models.Hearing, day time.Time) map[string][]models.Hearing {
	y, m, d := day.Date()
	out := make(map[string][]models.Hearing)
	for _, h := range hearings {
		date, ok := models.ParseHearingDate(h.Details.Date)
		if !ok {
			continue
		}
		hy, hm, hd := date.Date()
		if hy != y || hm != m || hd != d {
			continue
		}
		client := strings.ToLower(h.Details.ClientEmail)
		if client == "" {
			continue
		}
		out[client] = append(out[client], h)
	}
	return out
}
