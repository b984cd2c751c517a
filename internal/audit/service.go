// Package audit periodically exports the gate configuration and event log to
// Excel workbooks and trims events past the retention window.
package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"villagegate/internal/model"
	"villagegate/internal/store"
)

// Source is the persistence surface the audit exporter reads from.
type Source interface {
	ListSchedules(ctx context.Context, villageID, gateID string) ([]model.GateSchedule, error)
	ListOverrides(ctx context.Context, villageID string) ([]model.GateOverride, error)
	ListEventsSince(ctx context.Context, villageID string, since time.Time, limit int) ([]store.GateEvent, error)
	DeleteOldEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Mirror pushes exported events to an external system (a Google spreadsheet).
// Optional.
type Mirror interface {
	AppendEvents(ctx context.Context, events []store.GateEvent) error
}

// Config holds audit tuning.
type Config struct {
	VillageID string
	// ExportPath is the directory where workbooks land.
	ExportPath string
	// ExportOnStart runs an export immediately when the service starts.
	ExportOnStart bool
	// Interval between exports.
	Interval time.Duration
	// Retention is how long gate events are kept.
	Retention time.Duration
}

// Service runs the periodic export and cleanup loop.
type Service struct {
	cfg    Config
	source Source
	writer func() ExcelWriter
	mirror Mirror
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewService creates an audit service. mirror may be nil.
func NewService(cfg Config, source Source, writerFactory func() ExcelWriter, mirror Mirror, logger zerolog.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 31 * 24 * time.Hour
	}
	return &Service{
		cfg:    cfg,
		source: source,
		writer: writerFactory,
		mirror: mirror,
		logger: logger.With().Str("component", "audit").Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start begins the export loop.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.cfg.ExportOnStart {
		go s.RunExportAndCleanup()
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("retention", s.cfg.Retention).
		Msg("audit service started")
}

// Stop gracefully stops the audit service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("audit service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunExportAndCleanup()
		}
	}
}

// RunExportAndCleanup performs the export and cleanup immediately.
func (s *Service) RunExportAndCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.Export(ctx); err != nil {
		s.logger.Error().Err(err).Msg("audit export failed")
	}
	if err := s.Cleanup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("audit cleanup failed")
	}
}

// Export writes a workbook with the current schedules, overrides and the
// retained event log, and mirrors the events when a mirror is configured.
func (s *Service) Export(ctx context.Context) error {
	excel := s.writer()
	if excel == nil {
		return fmt.Errorf("failed to create excel writer")
	}
	defer excel.Close()

	if err := s.exportSchedules(ctx, excel); err != nil {
		return err
	}
	if err := s.exportOverrides(ctx, excel); err != nil {
		return err
	}
	events, err := s.exportEvents(ctx, excel)
	if err != nil {
		return err
	}

	path := filepath.Join(s.cfg.ExportPath, exportFilename(time.Now()))
	if err := excel.SaveToFile(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	s.logger.Info().Str("path", path).Int("events", len(events)).Msg("audit workbook written")

	if s.mirror != nil && len(events) > 0 {
		if err := s.mirror.AppendEvents(ctx, events); err != nil {
			// The workbook on disk is the primary record; a mirror failure
			// is logged, not escalated.
			s.logger.Error().Err(err).Msg("failed to mirror events to spreadsheet")
		}
	}
	return nil
}

func (s *Service) exportSchedules(ctx context.Context, excel ExcelWriter) error {
	schedules, err := s.source.ListSchedules(ctx, s.cfg.VillageID, "")
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	if err := excel.AddSheet("schedules"); err != nil {
		return err
	}
	if err := excel.WriteHeader([]string{"id", "gate_id", "name", "mode", "days_of_week", "start_time", "end_time", "created_by", "updated_at"}); err != nil {
		return err
	}
	for _, sch := range schedules {
		row := []interface{}{
			sch.ID, sch.GateID, sch.Name, string(sch.Mode),
			model.DaysCSV(sch.DaysOfWeek), sch.StartTime, sch.EndTime,
			sch.CreatedBy, formatTime(sch.UpdatedAt),
		}
		if err := excel.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) exportOverrides(ctx context.Context, excel ExcelWriter) error {
	overrides, err := s.source.ListOverrides(ctx, s.cfg.VillageID)
	if err != nil {
		return fmt.Errorf("list overrides: %w", err)
	}
	if err := excel.AddSheet("overrides"); err != nil {
		return err
	}
	if err := excel.WriteHeader([]string{"id", "gate_id", "mode", "expiry_time", "created_by", "created_at"}); err != nil {
		return err
	}
	for _, o := range overrides {
		row := []interface{}{
			o.ID, o.GateID, string(o.Mode),
			formatTime(o.ExpiryTime), o.CreatedBy, formatTime(o.CreatedAt),
		}
		if err := excel.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) exportEvents(ctx context.Context, excel ExcelWriter) ([]store.GateEvent, error) {
	since := time.Now().Add(-s.cfg.Retention)
	events, err := s.source.ListEventsSince(ctx, s.cfg.VillageID, since, 100000)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if err := excel.AddSheet("events"); err != nil {
		return nil, err
	}
	if err := excel.WriteHeader([]string{"id", "gate_id", "event_type", "mode", "source", "detail", "created_at"}); err != nil {
		return nil, err
	}
	for _, e := range events {
		row := []interface{}{
			e.ID, e.GateID, e.Type, string(e.Mode), e.Source, e.Detail, formatTime(e.CreatedAt),
		}
		if err := excel.WriteRow(row); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// Cleanup deletes gate events past the retention window.
func (s *Service) Cleanup(ctx context.Context) error {
	deleted, err := s.source.DeleteOldEvents(ctx, s.cfg.Retention)
	if err != nil {
		return fmt.Errorf("delete old events: %w", err)
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("trimmed old gate events")
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// exportFilename names workbooks like gate_audit_2026-01-05.xlsx; a second
// export the same day overwrites the first.
func exportFilename(t time.Time) string {
	return fmt.Sprintf("gate_audit_%s.xlsx", t.Format("2006-01-02"))
}
