package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/evildarkarchon/unpackrr/internal/retry"

	"go.uber.org/zap"
)

const DefaultBackupDir = "backup"

// BackupDir resolves the backup folder for an archive. Relative values are
// taken from the archive's folder.
func BackupDir(archivePath, configured string) string {
	if configured == "" {
		configured = DefaultBackupDir
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(filepath.Dir(archivePath), configured)
}

// applyPostAction runs after a successful unpack. The tool can hold the
// archive open briefly after exiting, so both actions retry quickly.
func (o *Orchestrator) applyPostAction(ctx context.Context, archivePath string, opts Options) error {
	retrier := retry.New(retry.Quick(), o.logger)

	switch opts.PostAction {
	case "", PostActionKeep:
		return nil
	case PostActionDelete:
		if err := retrier.Run(ctx, func() error { return os.Remove(archivePath) }); err != nil {
			return fmt.Errorf("failed to delete archive: %w", err)
		}
		o.logger.Debug("archive deleted", zap.String("archive", archivePath))
		return nil
	case PostActionBackup:
		dir := BackupDir(archivePath, opts.BackupDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create backup directory %s: %w", dir, err)
		}
		target := filepath.Join(dir, filepath.Base(archivePath))
		if err := retrier.Run(ctx, func() error { return moveFile(archivePath, target) }); err != nil {
			return fmt.Errorf("failed to back up archive: %w", err)
		}
		o.logger.Debug("archive backed up",
			zap.String("archive", archivePath),
			zap.String("target", target),
		)
		return nil
	default:
		return fmt.Errorf("unknown post action: %s", opts.PostAction)
	}
}

func moveFile(source, target string) error {
	err := os.Rename(source, target)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	if err := copyFile(source, target); err != nil {
		return err
	}
	return os.Remove(source)
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	return out.Close()
}
