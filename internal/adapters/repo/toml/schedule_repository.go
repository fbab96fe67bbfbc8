package toml

import (
	"context"
	"sync"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/ports"
	"github.com/spf13/viper"
)

const (
	schedulePathKey  = "state.schedule_path"
	scheduleFileName = "schedule.toml"
)

type ScheduleRepository struct {
	path string
	mu   *sync.RWMutex
}

var _ ports.ScheduleRepository = (*ScheduleRepository)(nil)

func NewScheduleRepository(cfg *viper.Viper) (*ScheduleRepository, error) {
	path, err := resolvePath(cfg, schedulePathKey, scheduleFileName)
	if err != nil {
		return nil, err
	}

	return &ScheduleRepository{path: path, mu: lockForPath(path)}, nil
}

func (r *ScheduleRepository) Load(ctx context.Context) (domain.ReportSchedule, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReportSchedule{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var file scheduleFileSchema
	if err := readTOMLFile(r.path, "schedule", &file); err != nil {
		return domain.ReportSchedule{}, err
	}

	lastReportAt, err := parseTime(file.LastReportAt)
	if err != nil {
		return domain.ReportSchedule{}, err
	}

	return domain.ReportSchedule{
		Enabled:      file.Enabled,
		Destination:  domain.Destination(file.Destination),
		LastReportAt: lastReportAt,
	}, nil
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule domain.ReportSchedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return writeTOMLFile(r.path, "schedule", &scheduleFileSchema{
		Enabled:      schedule.Enabled,
		Destination:  string(schedule.Destination),
		LastReportAt: formatTime(schedule.LastReportAt),
	})
}
