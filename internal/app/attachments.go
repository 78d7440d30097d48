package app

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// AttachmentPipeline hands files to the ingestion side and reports
// progress out of band via file-progress events keyed by file name. The
// engine keeps message attachment snapshots in step with those events.
type AttachmentPipeline struct {
	Bus *Bus

	// Ingest performs the actual content ingestion (chunking, embedding).
	// Optional; the default pipeline only validates and reports.
	Ingest func(ctx context.Context, path, threadID string) error
}

func NewAttachmentPipeline(bus *Bus) *AttachmentPipeline {
	return &AttachmentPipeline{Bus: bus}
}

// AttachFile validates the file and runs ingestion, emitting processing,
// then ready or error. The returned error mirrors the emitted status.
func (p *AttachmentPipeline) AttachFile(ctx context.Context, path, threadID string) error {
	name := filepath.Base(path)
	p.Bus.Emit(TopicFileProgress, FileProgress{Name: name, Status: AttachmentProcessing})

	info, err := os.Stat(path)
	if err != nil {
		msg := fmt.Sprintf("cannot read file: %v", err)
		p.Bus.Emit(TopicFileProgress, FileProgress{Name: name, Status: AttachmentError, Message: msg})
		return fmt.Errorf("ingest_error: %s", msg)
	}
	if info.IsDir() {
		msg := "directories cannot be attached"
		p.Bus.Emit(TopicFileProgress, FileProgress{Name: name, Status: AttachmentError, Message: msg})
		return fmt.Errorf("ingest_error: %s", msg)
	}
	if !supportedMime(DetectMime(path)) {
		msg := fmt.Sprintf("Unsupported mime type for %s", name)
		p.Bus.Emit(TopicFileProgress, FileProgress{Name: name, Status: AttachmentError, Message: msg})
		return fmt.Errorf("unsupported_mime: %s", msg)
	}

	if p.Ingest != nil {
		if err := p.Ingest(ctx, path, threadID); err != nil {
			msg := err.Error()
			p.Bus.Emit(TopicFileProgress, FileProgress{Name: name, Status: AttachmentError, Message: msg})
			return fmt.Errorf("ingest_error: %s", msg)
		}
	}

	p.Bus.Emit(TopicFileProgress, FileProgress{Name: name, Status: AttachmentReady})
	return nil
}

// DetectMime guesses a MIME type from the file extension.
func DetectMime(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func supportedMime(mt string) bool {
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	switch {
	case strings.HasPrefix(mt, "application/pdf"),
		strings.HasPrefix(mt, "application/json"),
		strings.HasPrefix(mt, "application/xml"):
		return true
	}
	return false
}
