package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/database"
)

// lowDiskThresholdGB halts maintenance when free space falls below it.
const lowDiskThresholdGB = 0.5

// NightlyMaintenance runs the off-hours housekeeping pass: integrity
// checks, WAL checkpoints, a disk space check, and the cloud backup with
// rotation. Intended to run from cron while the market is closed.
type NightlyMaintenance struct {
	databases     map[string]*database.DB
	backups       *BackupService
	dataDir       string
	retentionDays int
	log           zerolog.Logger
}

// NewNightlyMaintenance creates the nightly maintenance job. backups may be
// nil when no backup bucket is configured.
func NewNightlyMaintenance(
	databases map[string]*database.DB,
	backups *BackupService,
	dataDir string,
	retentionDays int,
	log zerolog.Logger,
) *NightlyMaintenance {
	return &NightlyMaintenance{
		databases:     databases,
		backups:       backups,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "nightly_maintenance").Logger(),
	}
}

// Run executes the maintenance pass.
func (j *NightlyMaintenance) Run(ctx context.Context) error {
	j.log.Info().Msg("Starting nightly maintenance")
	startTime := time.Now()

	for name, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
	}

	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			// Not fatal; the next checkpoint will catch up.
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if j.backups != nil {
		if err := j.backups.CreateAndUpload(ctx); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		if err := j.backups.RotateOldBackups(ctx, j.retentionDays); err != nil {
			j.log.Error().Err(err).Msg("Backup rotation failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Nightly maintenance completed")
	return nil
}

func (j *NightlyMaintenance) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("stat filesystem: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	switch {
	case availableGB < lowDiskThresholdGB:
		return fmt.Errorf("only %.2f GB free, refusing to continue", availableGB)
	case availableGB < 5.0:
		j.log.Error().Float64("available_gb", availableGB).Msg("Low disk space")
	case availableGB < 10.0:
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}
	return nil
}
