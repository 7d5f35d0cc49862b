// Package uploads moves proceeding documents into object storage, one file
// at a time, reporting progress to the caller.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/models"
)

// PDFContentType is the only content type accepted for attachments
const PDFContentType = "application/pdf"

var (
	// ErrTooManyFiles is returned when a submission would exceed models.MaxAttachments
	ErrTooManyFiles = fmt.Errorf("a hearing holds at most %d attachments", models.MaxAttachments)
	// ErrUnsupportedType is returned for any file that is not a PDF
	ErrUnsupportedType = errors.New("only PDF documents can be attached")
)

// File is a local document picked for upload
type File struct {
	Name        string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// Storage transfers a single document and returns its durable URL
type Storage interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// Progress is one event of an upload run. Exactly one terminal event is
// sent, carrying either Err or Done with the uploaded attachments.
type Progress struct {
	Step        int
	Total       int
	Name        string
	Attachments []models.Attachment
	Err         error
	Done        bool
}

func (p Progress) String() string {
	switch {
	case p.Err != nil:
		return fmt.Sprintf("upload failed: %v", p.Err)
	case p.Done:
		return fmt.Sprintf("uploaded %d of %d files", len(p.Attachments), p.Total)
	default:
		return fmt.Sprintf("uploading file %d of %d", p.Step, p.Total)
	}
}

// Validate checks a batch of files against the attachment rules, counting
// the attachments the hearing already holds
func Validate(existing int, files []File) error {
	if existing+len(files) > models.MaxAttachments {
		return ErrTooManyFiles
	}
	for _, f := range files {
		if f.ContentType != PDFContentType {
			return fmt.Errorf("%s: %w", f.Name, ErrUnsupportedType)
		}
		if f.Open == nil {
			return fmt.Errorf("%s: no content", f.Name)
		}
	}
	return nil
}

// Pipeline uploads files sequentially through a Storage
type Pipeline struct {
	Storage Storage
	Logger  *zap.SugaredLogger
}

// NewPipeline returns a pipeline over s
func NewPipeline(s Storage, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.S()
	}
	return &Pipeline{Storage: s, Logger: logger}
}

// Run uploads files in order. A progress event precedes each transfer; the
// first failure ends the run with an Err event and later files are never
// sent. Cancelling ctx stops the run before the next file. The returned
// channel is closed after the terminal event and never blocks the run.
func (p *Pipeline) Run(ctx context.Context, files []File) <-chan Progress {
	events := make(chan Progress, len(files)+1)
	go func() {
		defer close(events)
		total := len(files)
		if err := Validate(0, files); err != nil {
			events <- Progress{Total: total, Err: err}
			return
		}

		attachments := make([]models.Attachment, 0, total)
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				events <- Progress{Step: i, Total: total, Err: err}
				return
			}
			events <- Progress{Step: i + 1, Total: total, Name: f.Name}

			url, err := p.upload(ctx, f)
			if err != nil {
				p.Logger.Warnw("attachment upload failed", "file", f.Name, "step", i+1, "total", total, "error", err)
				events <- Progress{Step: i + 1, Total: total, Name: f.Name, Err: err}
				return
			}
			attachments = append(attachments, models.Attachment{Name: f.Name, URL: url})
		}
		events <- Progress{Step: total, Total: total, Attachments: attachments, Done: true}
	}()
	return events
}

func (p *Pipeline) upload(ctx context.Context, f File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	url, err := p.Storage.Upload(ctx, f.Name, rc)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", f.Name, err)
	}
	return url, nil
}

// Collect drains a run, calling onProgress for every step event, and returns
// the uploaded attachments or the terminal error
func Collect(events <-chan Progress, onProgress func(Progress)) ([]models.Attachment, error) {
	for ev := range events {
		switch {
		case ev.Err != nil:
			return nil, ev.Err
		case ev.Done:
			return ev.Attachments, nil
		default:
			if onProgress != nil {
				onProgress(ev)
			}
		}
	}
	return nil, errors.New("upload ended without a result")
}
