package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"signal_report_backend/models"
)

// JobsFile is the on-disk shape of the calendar configuration
type JobsFile struct {
	Jobs []models.ScheduledJob `yaml:"jobs"`
}

// DefaultJobs mirrors the report triggers the admin service has always run:
// daily at 21:58 and Saturdays at 08:00, South African time.
func DefaultJobs() []models.ScheduledJob {
	return []models.ScheduledJob{
		{ID: "daily-report", CronExpression: "0 58 21 * * ?", Timezone: "Africa/Johannesburg", Range: models.RangeDaily},
		{ID: "weekly-report", CronExpression: "0 0 8 ? * SAT", Timezone: "Africa/Johannesburg", Range: models.RangeWeekly},
	}
}

// LoadJobs reads the jobs file. A missing file falls back to DefaultJobs.
func LoadJobs(path string) ([]models.ScheduledJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info().Str("path", path).Msg("No jobs file found, using default report jobs")
			return DefaultJobs(), nil
		}
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}
	return ParseJobs(data)
}

// ParseJobs decodes and validates a jobs document
func ParseJobs(data []byte) ([]models.ScheduledJob, error) {
	var file JobsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}

	seen := make(map[string]bool, len(file.Jobs))
	for i := range file.Jobs {
		job := &file.Jobs[i]
		if job.ID == "" {
			return nil, fmt.Errorf("job #%d: id is required", i+1)
		}
		if seen[job.ID] {
			return nil, fmt.Errorf("job %s: duplicate id", job.ID)
		}
		seen[job.ID] = true
		if job.CronExpression == "" {
			return nil, fmt.Errorf("job %s: cron is required", job.ID)
		}
		if job.Timezone == "" {
			job.Timezone = "UTC"
		}
		kind, err := models.ParseRangeKind(strings.ToLower(string(job.Range)))
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.ID, err)
		}
		job.Range = kind
	}
	return file.Jobs, nil
}
