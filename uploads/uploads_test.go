package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/agendajur-api/models"
)

type fakeStorage struct {
	mu     sync.Mutex
	names  []string
	failOn string
	block  chan struct{}
}

func (f *fakeStorage) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if f.block != nil {
		<-f.block
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	if name == f.failOn {
		return "", errors.New("Upload preset not found")
	}
	return fmt.Sprintf("https://res.cloudinary.com/demo/raw/upload/%d/%s?len=%d", len(f.names), name, len(body)), nil
}

func pdf(name string) File {
	return File{
		Name:        name,
		ContentType: PDFContentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("%PDF-1.4 " + name)), nil
		},
	}
}

func pdfs(n int) []File {
	files := make([]File, n)
	for i := range files {
		files[i] = pdf(fmt.Sprintf("doc-%02d.pdf", i+1))
	}
	return files
}

func TestRunUploadsSequentially(t *testing.T) {
	storage := &fakeStorage{}
	p := NewPipeline(storage, nil)

	var steps []string
	attachments, err := Collect(p.Run(context.Background(), pdfs(3)), func(ev Progress) {
		steps = append(steps, ev.String())
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"uploading file 1 of 3", "uploading file 2 of 3", "uploading file 3 of 3"}, steps)
	require.Len(t, attachments, 3)
	assert.Equal(t, []string{"doc-01.pdf", "doc-02.pdf", "doc-03.pdf"}, storage.names)
	for i, a := range attachments {
		assert.Equal(t, storage.names[i], a.Name)
		assert.True(t, strings.HasPrefix(a.URL, "https://"))
	}
}

func TestRunNoFiles(t *testing.T) {
	p := NewPipeline(&fakeStorage{}, nil)

	attachments, err := Collect(p.Run(context.Background(), nil), nil)

	require.NoError(t, err)
	assert.NotNil(t, attachments)
	assert.Empty(t, attachments)
}

func TestRunMaxAttachments(t *testing.T) {
	p := NewPipeline(&fakeStorage{}, nil)

	attachments, err := Collect(p.Run(context.Background(), pdfs(models.MaxAttachments)), nil)
	require.NoError(t, err)
	assert.Len(t, attachments, models.MaxAttachments)

	storage := &fakeStorage{}
	p = NewPipeline(storage, nil)
	_, err = Collect(p.Run(context.Background(), pdfs(models.MaxAttachments+1)), nil)
	assert.ErrorIs(t, err, ErrTooManyFiles)
	assert.Empty(t, storage.names)
}

func TestRunFailureStopsRemainingFiles(t *testing.T) {
	storage := &fakeStorage{failOn: "doc-02.pdf"}
	p := NewPipeline(storage, nil)

	attachments, err := Collect(p.Run(context.Background(), pdfs(4)), nil)

	assert.Nil(t, attachments)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Upload preset not found")
	assert.Equal(t, []string{"doc-01.pdf", "doc-02.pdf"}, storage.names)
}

func TestRunRejectsNonPDF(t *testing.T) {
	storage := &fakeStorage{}
	p := NewPipeline(storage, nil)
	files := []File{pdf("ok.pdf"), {Name: "photo.png", ContentType: "image/png", Open: pdf("x").Open}}

	_, err := Collect(p.Run(context.Background(), files), nil)

	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Empty(t, storage.names)
}

func TestRunOpenFailure(t *testing.T) {
	p := NewPipeline(&fakeStorage{}, nil)
	files := []File{{Name: "gone.pdf", ContentType: PDFContentType, Open: func() (io.ReadCloser, error) {
		return nil, errors.New("file removed")
	}}}

	_, err := Collect(p.Run(context.Background(), files), nil)

	assert.EqualError(t, err, "failed to open gone.pdf: file removed")
}

func TestRunCancelledBetweenFiles(t *testing.T) {
	storage := &fakeStorage{block: make(chan struct{})}
	p := NewPipeline(storage, nil)
	ctx, cancel := context.WithCancel(context.Background())

	events := p.Run(ctx, pdfs(3))
	first := <-events
	assert.Equal(t, 1, first.Step)

	cancel()
	close(storage.block)

	_, err := Collect(events, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"doc-01.pdf"}, storage.names)
}

func TestRunTerminalEventThenClose(t *testing.T) {
	p := NewPipeline(&fakeStorage{}, nil)
	events := p.Run(context.Background(), pdfs(2))

	var all []Progress
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-events:
			if !ok {
				done = true
				continue
			}
			all = append(all, ev)
		case <-timeout:
			t.Fatal("run never closed its channel")
		}
	}

	require.Len(t, all, 3)
	assert.True(t, all[2].Done)
	assert.Equal(t, "uploaded 2 of 2 files", all[2].String())
}

func TestValidateCountsExisting(t *testing.T) {
	assert.NoError(t, Validate(49, pdfs(1)))
	assert.ErrorIs(t, Validate(50, pdfs(1)), ErrTooManyFiles)
}
