package report

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/erazemk/najem/internal/access"
	"github.com/erazemk/najem/internal/mail"
	"github.com/erazemk/najem/internal/metrics"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// File is a rendered file ready to be served.
type File struct {
	Path     string
	Filename string
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// downloadName turns a report name into a safe attachment file name.
func downloadName(name, ext string) string {
	clean := unsafeChars.ReplaceAllString(name, "_")
	if clean == "" || clean == "_" {
		clean = "report"
	}
	return clean + ext
}

// Download returns a report's PDF, rendering it first if needed.
func (s *Service) Download(ctx context.Context, p access.Principal, id int64) (*File, error) {
	r, err := s.loadReport(ctx, p, id)
	if err != nil {
		return nil, err
	}

	path, err := s.EnsureFile(ctx, r)
	if err != nil {
		return nil, err
	}

	if err := audit(ctx, s.DB, p, r.PortfolioID, model.ActionReportDownloaded, "Downloaded %q", r.Name); err != nil {
		return nil, err
	}
	return &File{Path: path, Filename: downloadName(r.Name, ".pdf")}, nil
}

// Archive is a ZIP of a batch's PDFs. The caller must pass Path to
// Cleaner.Schedule once it has been served.
type Archive struct {
	File
	Included int
	Skipped  int
}

// BatchArchive writes every report of a batch into one ZIP in the temp
// root. Reports that cannot be rendered are skipped.
func (s *Service) BatchArchive(ctx context.Context, p access.Principal, batchID string) (*Archive, error) {
	batch, err := s.loadBatch(ctx, p, batchID)
	if err != nil {
		return nil, err
	}
	reports, err := store.ListBatchReports(ctx, s.DB, batchID)
	if err != nil {
		return nil, err
	}

	archive := &Archive{File: File{
		Path:     filepath.Join(s.Dir, fmt.Sprintf("batch_reports_%s_%d.zip", batchID, s.now().UnixMilli())),
		Filename: downloadName(batch.Name, ".zip"),
	}}

	if err := s.writeArchive(ctx, archive, reports); err != nil {
		removeFiles(archive.Path)
		return nil, fmt.Errorf("batch %s: %w: %v", batchID, model.ErrGeneration, err)
	}

	if err := audit(ctx, s.DB, p, batch.PortfolioID, model.ActionBatchDownloaded,
		"Downloaded %q: %d reports, %d skipped", batch.Name, archive.Included, archive.Skipped); err != nil {
		s.Cleaner.Schedule(archive.Path)
		return nil, err
	}
	return archive, nil
}

func (s *Service) writeArchive(ctx context.Context, archive *Archive, reports []model.Report) error {
	f, err := os.Create(archive.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	used := map[string]bool{}
	for i := range reports {
		r := &reports[i]
		path, err := s.EnsureFile(ctx, r)
		if err != nil {
			slog.Warn("skipping report in archive", "report", r.ID, "error", err)
			archive.Skipped++
			continue
		}

		base := downloadName(r.Name, "")
		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true

		if err := addToZip(zw, path, name+".pdf"); err != nil {
			return err
		}
		archive.Included++
	}

	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func addToZip(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// EmailOutcome is the result of emailing one report.
type EmailOutcome struct {
	ReportID int64  `json:"report_id"`
	Owner    string `json:"owner"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

// EmailSummary tallies a batch email run.
type EmailSummary struct {
	Results []EmailOutcome `json:"results"`
	Total   int            `json:"total"`
	Sent    int            `json:"sent"`
	Failed  int            `json:"failed"`
}

// EmailReport sends one report to its owner and marks it sent.
func (s *Service) EmailReport(ctx context.Context, p access.Principal, id int64) (*model.Report, error) {
	if err := access.RequireRole(p, model.RoleStandardAdmin); err != nil {
		return nil, err
	}
	r, err := s.loadReport(ctx, p, id)
	if err != nil {
		return nil, err
	}

	if err := s.send(ctx, r); err != nil {
		return nil, err
	}
	if err := audit(ctx, s.DB, p, r.PortfolioID, model.ActionReportSent,
		"Sent %q to %s", r.Name, r.OwnerEmail); err != nil {
		return nil, err
	}
	return store.GetReport(ctx, s.DB, id)
}

// EmailBatch sends every report of a batch. Failures are recorded per
// report; nothing is retried or rolled back.
func (s *Service) EmailBatch(ctx context.Context, p access.Principal, batchID string) (*EmailSummary, error) {
	if err := access.RequireRole(p, model.RoleStandardAdmin); err != nil {
		return nil, err
	}
	batch, err := s.loadBatch(ctx, p, batchID)
	if err != nil {
		return nil, err
	}
	reports, err := store.ListBatchReports(ctx, s.DB, batchID)
	if err != nil {
		return nil, err
	}

	summary := &EmailSummary{Results: []EmailOutcome{}, Total: len(reports)}
	for i := range reports {
		r := &reports[i]
		outcome := EmailOutcome{ReportID: r.ID, Owner: r.OwnerName}
		if err := s.send(ctx, r); err != nil {
			slog.Warn("emailing report", "report", r.ID, "owner", r.OwnerName, "error", err)
			outcome.Message = err.Error()
			summary.Failed++
		} else {
			outcome.Success = true
			outcome.Message = "sent to " + r.OwnerEmail
			summary.Sent++
		}
		summary.Results = append(summary.Results, outcome)
	}

	if err := audit(ctx, s.DB, p, batch.PortfolioID, model.ActionBatchReportsSent,
		"Sent %q: %d of %d delivered", batch.Name, summary.Sent, summary.Total); err != nil {
		return nil, err
	}
	return summary, nil
}

// send renders if needed, mails the PDF to the owner and marks the report sent.
func (s *Service) send(ctx context.Context, r *model.Report) error {
	if r.OwnerEmail == "" {
		return model.Invalid("owner_email", fmt.Sprintf("%s has no email address", r.OwnerName))
	}

	path, err := s.EnsureFile(ctx, r)
	if err != nil {
		return err
	}

	period := fmt.Sprintf("%s %d", time.Month(r.Month), r.Year)
	err = s.Mailer.Send(ctx, mail.Message{
		To:      r.OwnerEmail,
		Subject: "Owner statement for " + period,
		Body: fmt.Sprintf("Dear %s,\n\nattached is your owner statement for %s.\n\nKind regards",
			r.OwnerName, period),
		Attachments: []string{path},
	})
	metrics.ReportEmails.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return err
	}

	return store.MarkReportSent(ctx, s.DB, r.ID)
}
