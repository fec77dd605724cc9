// Package report groups owner statements into batches, renders them on
// demand and distributes them by download and email.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/erazemk/najem/internal/access"
	"github.com/erazemk/najem/internal/ledger"
	"github.com/erazemk/najem/internal/mail"
	"github.com/erazemk/najem/internal/metrics"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// Service owns report batches and their files.
type Service struct {
	DB        *sql.DB
	Generator Generator
	Mailer    mail.Mailer
	Cleaner   *Cleaner

	// Dir is the temp root every report file and archive lives in.
	Dir string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	flights singleflight.Group
}

// New creates a report service rooted at dir, creating it if needed.
func New(db *sql.DB, gen Generator, mailer mail.Mailer, dir string, cleanupDelay time.Duration) (*Service, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving reports directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating reports directory: %w", err)
	}
	return &Service{
		DB:        db,
		Generator: gen,
		Mailer:    mailer,
		Cleaner:   &Cleaner{Delay: cleanupDelay},
		Dir:       dir,
		Now:       time.Now,
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func audit(ctx context.Context, q store.Querier, p access.Principal, portfolioID int64, action, format string, args ...any) error {
	return store.LogActivity(ctx, q, p.UserRef(), &portfolioID, action, fmt.Sprintf(format, args...))
}

// GenerateInput describes a batch to generate.
type GenerateInput struct {
	PortfolioID *int64
	Month       int
	Year        int
	OwnerIDs    []int64
	Title       string
}

// BatchDetail is a batch with its monthly reports.
type BatchDetail struct {
	Batch   *model.Batch   `json:"batch"`
	Reports []model.Report `json:"reports"`
}

// GenerateBatch creates a batch of monthly reports, one per owner. A batch
// with the same portfolio, period and title is replaced. An owner's report
// for the period that lives in another batch is moved into this one. Owners
// that cannot be processed are logged and skipped. No PDFs are rendered here.
func (s *Service) GenerateBatch(ctx context.Context, p access.Principal, in GenerateInput) (*BatchDetail, error) {
	if err := access.RequireRole(p, model.RoleStandardAdmin); err != nil {
		return nil, err
	}
	if err := ledger.ValidPeriod(in.Month, in.Year); err != nil {
		return nil, err
	}
	if len(in.OwnerIDs) == 0 {
		return nil, model.Invalid("owner_ids", "at least one owner is required")
	}
	portfolioID, err := access.ResolveExisting(ctx, s.DB, p, in.PortfolioID)
	if err != nil {
		return nil, err
	}

	period := fmt.Sprintf("%s %d", time.Month(in.Month), in.Year)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Owner statements " + period
	}

	var batch *model.Batch
	var stale []string
	err = store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		existing, err := store.FindBatch(ctx, tx, portfolioID, title, in.Month, in.Year)
		if err != nil {
			return err
		}
		if existing != nil {
			old, err := store.ListBatchReports(ctx, tx, existing.ID)
			if err != nil {
				return err
			}
			for _, r := range old {
				stale = append(stale, r.FilePath)
			}
			if err := store.DeleteBatch(ctx, tx, existing.ID); err != nil {
				return err
			}
		}

		if batch, err = store.CreateBatch(ctx, tx, portfolioID, title, in.Month, in.Year); err != nil {
			return err
		}

		created, moved := 0, 0
		for _, ownerID := range in.OwnerIDs {
			owner, err := store.GetOwner(ctx, tx, ownerID)
			if err != nil {
				slog.Warn("skipping owner in batch", "batch", batch.ID, "owner", ownerID, "error", err)
				continue
			}
			if owner == nil || owner.DeletedAt != nil || owner.PortfolioID != portfolioID {
				slog.Warn("skipping unknown owner in batch", "batch", batch.ID, "owner", ownerID)
				continue
			}

			name := fmt.Sprintf("%s - %s", owner.Name, period)
			prior, err := store.FindOwnerReport(ctx, tx, portfolioID, ownerID, in.Month, in.Year)
			if err != nil {
				slog.Warn("skipping owner in batch", "batch", batch.ID, "owner", ownerID, "error", err)
				continue
			}
			if prior != nil {
				if prior.BatchID == batch.ID {
					continue
				}
				if err := store.ReparentReport(ctx, tx, prior.ID, batch.ID, name); err != nil {
					slog.Warn("skipping owner in batch", "batch", batch.ID, "owner", ownerID, "error", err)
					continue
				}
				stale = append(stale, prior.FilePath)
				moved++
				continue
			}
			if _, err := store.CreateReport(ctx, tx, batch, ownerID, name); err != nil {
				slog.Warn("skipping owner in batch", "batch", batch.ID, "owner", ownerID, "error", err)
				continue
			}
			created++
		}

		return audit(ctx, tx, p, portfolioID, model.ActionBatchReportsGenerated,
			"Generated %q (%s): %d new, %d moved from other batches", title, batch.ID, created, moved)
	})
	if err != nil {
		return nil, err
	}

	removeFiles(stale...)
	slog.Info("report batch generated", "user", p.Username, "batch", batch.ID, "period", period)

	return s.batchDetail(ctx, batch.ID)
}

func (s *Service) batchDetail(ctx context.Context, id string) (*BatchDetail, error) {
	batch, err := store.GetBatch(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, fmt.Errorf("batch %s: %w", id, model.ErrNotFound)
	}
	reports, err := store.ListBatchReports(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return &BatchDetail{Batch: batch, Reports: reports}, nil
}

func (s *Service) loadBatch(ctx context.Context, p access.Principal, id string) (*model.Batch, error) {
	batch, err := store.GetBatch(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, fmt.Errorf("batch %s: %w", id, model.ErrNotFound)
	}
	if err := access.Check(p, batch.PortfolioID); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Service) loadReport(ctx context.Context, p access.Principal, id int64) (*model.Report, error) {
	r, err := store.GetReport(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("report %d: %w", id, model.ErrNotFound)
	}
	if err := access.Check(p, r.PortfolioID); err != nil {
		return nil, err
	}
	return r, nil
}

// ListBatches returns the batches visible to the principal.
func (s *Service) ListBatches(ctx context.Context, p access.Principal, portfolioID *int64) ([]model.Batch, error) {
	scope, err := access.Scope(p, portfolioID)
	if err != nil {
		return nil, err
	}
	return store.ListBatches(ctx, s.DB, scope)
}

// GetBatch returns a batch and its reports.
func (s *Service) GetBatch(ctx context.Context, p access.Principal, id string) (*BatchDetail, error) {
	if _, err := s.loadBatch(ctx, p, id); err != nil {
		return nil, err
	}
	return s.batchDetail(ctx, id)
}

// BatchNotes returns a batch's notes.
func (s *Service) BatchNotes(ctx context.Context, p access.Principal, id string) (string, error) {
	batch, err := s.loadBatch(ctx, p, id)
	if err != nil {
		return "", err
	}
	return batch.Notes, nil
}

// UpdateBatchNotes replaces a batch's notes.
func (s *Service) UpdateBatchNotes(ctx context.Context, p access.Principal, id, notes string) error {
	if err := access.RequireRole(p, model.RoleStandardAdmin); err != nil {
		return err
	}
	batch, err := s.loadBatch(ctx, p, id)
	if err != nil {
		return err
	}
	return store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := store.UpdateBatchNotes(ctx, tx, id, notes); err != nil {
			return err
		}
		return audit(ctx, tx, p, batch.PortfolioID, model.ActionBatchNotesUpdated, "Updated notes of %q", batch.Name)
	})
}

// DeleteBatch removes a batch, its reports and their files.
func (s *Service) DeleteBatch(ctx context.Context, p access.Principal, id string) error {
	if err := access.RequireRole(p, model.RoleStandardAdmin); err != nil {
		return err
	}
	batch, err := s.loadBatch(ctx, p, id)
	if err != nil {
		return err
	}

	var files []string
	err = store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		reports, err := store.ListBatchReports(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, r := range reports {
			files = append(files, r.FilePath)
		}
		if err := store.DeleteBatch(ctx, tx, id); err != nil {
			return err
		}
		return audit(ctx, tx, p, batch.PortfolioID, model.ActionBatchReportsDeleted,
			"Deleted %q with %d reports", batch.Name, len(reports))
	})
	if err != nil {
		return err
	}

	removeFiles(files...)
	return nil
}

// DeleteReport removes one monthly report and its file.
func (s *Service) DeleteReport(ctx context.Context, p access.Principal, id int64) error {
	if err := access.RequireRole(p, model.RoleStandardAdmin); err != nil {
		return err
	}
	r, err := s.loadReport(ctx, p, id)
	if err != nil {
		return err
	}

	err = store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := store.DeleteReport(ctx, tx, id); err != nil {
			return err
		}
		return audit(ctx, tx, p, r.PortfolioID, model.ActionReportDeleted, "Deleted %q", r.Name)
	})
	if err != nil {
		return err
	}

	removeFiles(r.FilePath)
	return nil
}

// EnsureFile returns the path of a report's PDF, rendering it if the cached
// file is missing. Concurrent callers for one report share a single render,
// and the render runs to completion even if ctx is cancelled.
func (s *Service) EnsureFile(ctx context.Context, r *model.Report) (string, error) {
	if exists(r.FilePath) {
		return r.FilePath, nil
	}

	ch := s.flights.DoChan(strconv.FormatInt(r.ID, 10), func() (any, error) {
		return s.render(context.WithoutCancel(ctx), r.ID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Service) render(ctx context.Context, id int64) (string, error) {
	// Re-read: a render that finished just before this one started already
	// recorded the file.
	r, err := store.GetReport(ctx, s.DB, id)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", fmt.Errorf("report %d: %w", id, model.ErrNotFound)
	}
	if exists(r.FilePath) {
		return r.FilePath, nil
	}

	st, err := LoadStatement(ctx, s.DB, r)
	if err != nil {
		return "", err
	}

	start := time.Now()
	path, err := s.Generator.Generate(ctx, st, s.Dir)
	metrics.ReportGenerationDuration.Observe(time.Since(start).Seconds())
	metrics.ReportGenerations.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return "", fmt.Errorf("report %d: %w: %v", id, model.ErrGeneration, err)
	}

	path, err = s.adopt(path)
	if err != nil {
		return "", fmt.Errorf("report %d: %w: %v", id, model.ErrGeneration, err)
	}
	if !exists(path) {
		return "", fmt.Errorf("report %d: %w: generator produced no file", id, model.ErrGeneration)
	}

	if err := store.SetReportFile(ctx, s.DB, id, path); err != nil {
		return "", err
	}
	slog.Info("report rendered", "report", id, "path", path, "duration", time.Since(start))
	return path, nil
}

// adopt copies a file produced outside the temp root into it.
func (s *Service) adopt(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if rel, err := filepath.Rel(s.Dir, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs, nil
	}

	dst := filepath.Join(s.Dir, filepath.Base(abs))
	if err := copyFile(abs, dst); err != nil {
		return "", fmt.Errorf("copying %s into reports directory: %w", abs, err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("checking report file", "path", path, "error", err)
		}
		return false
	}
	return info.Mode().IsRegular()
}
