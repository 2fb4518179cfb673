// Package maintenance runs the scheduled housekeeping over the event store.
package maintenance

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"planbook/internal/model"
	"planbook/internal/store"
)

// Service owns the cron schedule for periodic store housekeeping. Its one
// job freezes every event dated before today to manual, so that later
// non-manual purges (issued by the sync layer before a resync) keep the
// user's history intact.
type Service struct {
	cron   *cron.Cron
	events *store.EventStore
	logger *slog.Logger
}

func New(events *store.EventStore, logger *slog.Logger) *Service {
	return &Service{
		cron:   cron.New(),
		events: events,
		logger: logger,
	}
}

// Start registers the freeze job under the given cron spec and starts the
// scheduler. An empty spec disables scheduling.
func (s *Service) Start(spec string) error {
	if spec == "" {
		s.logger.Info("maintenance schedule disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(spec, s.FreezePast); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("maintenance schedule started", "spec", spec)
	return nil
}

// Stop stops the scheduler; running jobs finish.
func (s *Service) Stop() {
	s.cron.Stop()
}

// FreezePast converts every event older than today to manual, for every
// profile present in the store.
func (s *Service) FreezePast() {
	today := model.Today()

	profiles, err := s.events.ProfileIDs()
	if err != nil {
		s.logger.Error("maintenance: list profiles", "error", err)
		return
	}

	for _, profileID := range profiles {
		if err := s.events.ConvertOlderToManual(profileID, today); err != nil {
			s.logger.Error("maintenance: freeze past events", "profile", profileID, "error", err)
			continue
		}
		s.logger.Debug("froze past events", "profile", profileID, "cutoff", today.String())
	}
}
