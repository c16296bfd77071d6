package ofx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Source serves transactions loaded from OFX/QFX statement files. Files are read on
// first use and kept in memory; a statement that overlaps an earlier one only
// contributes transactions not already seen.
type Source struct {
	parser *Parser
	logger *slog.Logger
	userID string
	paths  []string

	once         sync.Once
	loadErr      error
	transactions []model.Transaction
}

// NewSource creates a source over the given files or directories. Directories are
// scanned, non-recursively, for .ofx and .qfx files.
func NewSource(userID string, paths []string, parser *Parser, logger *slog.Logger) (*Source, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one OFX file or directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if parser == nil {
		parser = NewParser("", logger)
	}
	return &Source{
		parser: parser,
		logger: logger.With("component", "ofx_source"),
		userID: userID,
		paths:  paths,
	}, nil
}

// ListTransactions implements service.TransactionSource.
func (s *Source) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]model.Transaction, error) {
	s.once.Do(func() { s.loadErr = s.load(ctx) })
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if userID != "" && s.userID != "" && userID != s.userID {
		return nil, nil
	}

	var out []model.Transaction
	for _, tx := range s.transactions {
		if tx.Date.Before(from) || tx.Date.After(to) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Source) load(ctx context.Context) error {
	files, err := expandPaths(s.paths)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, file := range files {
		txns, err := s.parseFile(ctx, file)
		if err != nil {
			return err
		}
		added := 0
		for _, tx := range txns {
			if seen[tx.Hash] {
				continue
			}
			seen[tx.Hash] = true
			tx.UserID = s.userID
			s.transactions = append(s.transactions, tx)
			added++
		}
		s.logger.Debug("Loaded statement", "file", file, "transactions", added)
	}

	sort.SliceStable(s.transactions, func(i, j int) bool {
		return s.transactions[i].Date.Before(s.transactions[j].Date)
	})
	s.logger.Info("Loaded OFX transactions", "files", len(files), "transactions", len(s.transactions))
	return nil
}

func (s *Source) parseFile(ctx context.Context, file string) ([]model.Transaction, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Warn("Failed to close statement", "file", file, "error", closeErr)
		}
	}()

	txns, err := s.parser.ParseFile(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return txns, nil
}

func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", p, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext == ".ofx" || ext == ".qfx" {
				files = append(files, filepath.Join(p, entry.Name()))
			}
		}
	}
	return files, nil
}

var _ service.TransactionSource = (*Source)(nil)
