// Package scan finds BA2 archives one level below each mod folder of a root
// directory and builds an Inventory from them.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/evildarkarchon/unpackrr/internal/ba2"
	"github.com/evildarkarchon/unpackrr/internal/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Scanner struct {
	codec  *ba2.Codec
	logger *logging.Logger
}

func NewScanner(logger *logging.Logger) *Scanner {
	return &Scanner{
		codec:  ba2.NewCodec(logger),
		logger: logger,
	}
}

// Scan blocks until every mod folder under root has been read. The returned
// inventory is sorted by size, largest first. progress may be nil.
func (s *Scanner) Scan(ctx context.Context, root string, filter *Filter, progress chan<- Event) (*Inventory, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &PathNotFoundError{Path: root}
		}
		return nil, fmt.Errorf("failed to stat scan root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, &NotADirectoryError{Path: root}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan root %s: %w", root, err)
	}

	if err := filter.Validate(); err != nil {
		s.logger.Warn("scan filter has invalid entries", zap.Error(err))
	}

	folders, err := modFolders(absRoot)
	if err != nil {
		return nil, err
	}

	s.logger.Info("scan started",
		zap.String("root", absRoot),
		zap.Int("mod_folders", len(folders)),
	)
	send(progress, ScanStarted{Dirs: len(folders)})

	results := make([][]Entry, len(folders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for index, folder := range folders {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			send(progress, FolderStarted{Name: folder, Index: index + 1, Total: len(folders)})
			results[index] = s.scanModFolder(absRoot, folder, filter, progress)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []Entry
	for _, folderEntries := range results {
		entries = append(entries, folderEntries...)
	}

	inventory := NewInventory(entries)
	inventory.Sort(SortBySize, true)

	s.logger.Info("scan complete",
		zap.String("root", absRoot),
		zap.Int("archives", inventory.Len()),
		zap.Int("bad", inventory.BadCount()),
	)
	send(progress, ScanComplete{Total: inventory.Len()})

	return inventory, nil
}

func modFolders(root string) ([]string, error) {
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan root %s: %w", root, err)
	}

	var folders []string
	for _, entry := range dirEntries {
		if isDir(root, entry) {
			folders = append(folders, entry.Name())
		}
	}
	return folders, nil
}

// isDir follows symlinks, which os.DirEntry.IsDir does not.
func isDir(parent string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(parent, entry.Name()))
	return err == nil && info.IsDir()
}

func (s *Scanner) scanModFolder(root, folder string, filter *Filter, progress chan<- Event) []Entry {
	folderPath := filepath.Join(root, folder)
	dirEntries, err := os.ReadDir(folderPath)
	if err != nil {
		s.logger.Warn("failed to read mod folder",
			zap.String("folder", folderPath),
			zap.Error(err),
		)
		return nil
	}

	var entries []Entry
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}

		name := dirEntry.Name()
		if !strings.EqualFold(filepath.Ext(name), ba2.Extension) {
			continue
		}
		if !filter.MatchesPostfix(name) {
			continue
		}

		path := filepath.Join(folderPath, name)
		relPath := filepath.Join(folder, name)
		if filter.IsIgnored(path, relPath, name) {
			s.logger.Debug("archive ignored", zap.String("path", path))
			continue
		}

		entries = append(entries, s.inspect(path, folder, name))
		send(progress, ArchiveFound{Name: name, ModFolder: folder})
	}
	return entries
}

func (s *Scanner) inspect(path, folder, name string) Entry {
	entry := Entry{
		ID:        EntryID(path),
		FileName:  name,
		ModFolder: folder,
		Path:      path,
	}

	if info, err := os.Stat(path); err != nil {
		s.logger.Warn("failed to stat archive", zap.String("path", path), zap.Error(err))
	} else {
		entry.FileSize = info.Size()
	}

	header, err := s.codec.ParseFile(path)
	if err != nil {
		s.logger.Warn("archive header unreadable, marking bad",
			zap.String("path", path),
			zap.Error(err),
		)
		entry.Bad = true
		return entry
	}
	entry.FileCount = header.FileCount
	return entry
}
