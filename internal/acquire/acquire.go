package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dgallion1/papergest/internal/exam"
	"github.com/dgallion1/papergest/internal/store"
)

// minPayloadBytes is the size under which a payload without a PDF content
// type or signature is treated as an error page.
const minPayloadBytes = 1000

// ErrInvalidPayload is returned for downloads that are not documents.
var ErrInvalidPayload = errors.New("payload is not a pdf document")

// Recorder is the part of the document store acquisition needs.
type Recorder interface {
	Has(fingerprint string) bool
	Record(ctx context.Context, e store.Entry) (bool, error)
}

// Report summarizes one acquisition run.
type Report struct {
	Listed   int
	New      int
	Skipped  int
	Failures []error
}

// Acquirer downloads listed documents that the store does not know yet.
type Acquirer struct {
	source Source
	client *Client
	store  Recorder
	rawDir string
	logger *slog.Logger
	now    func() time.Time
}

func New(source Source, client *Client, st Recorder, rawDir string, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{
		source: source,
		client: client,
		store:  st,
		rawDir: rawDir,
		logger: logger,
		now:    time.Now,
	}
}

// Acquire lists documents for subject and topic and records every new one.
// Per-document failures are collected as AcquisitionFailure errors in the
// report; only an unreachable source or cancellation returns an error.
func (a *Acquirer) Acquire(ctx context.Context, subject, topic string) (Report, error) {
	var rep Report

	listings, err := a.source.FetchListing(ctx, subject, topic)
	if err != nil {
		return rep, err
	}
	rep.Listed = len(listings)

	if err := os.MkdirAll(a.rawDir, 0o755); err != nil {
		return rep, fmt.Errorf("create raw dir: %w", err)
	}

	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if a.store.Has(l.Fingerprint) {
			rep.Skipped++
			a.logger.Debug("already acquired", "url", l.URL)
			continue
		}
		entry, err := a.fetch(ctx, l, subject, topic)
		if err != nil {
			a.logger.Warn("acquisition failed", "url", l.URL, "error", err)
			rep.Failures = append(rep.Failures, exam.Wrap(exam.KindAcquisition, l.URL, err))
			continue
		}
		added, err := a.store.Record(ctx, entry)
		if err != nil {
			rep.Failures = append(rep.Failures, exam.Wrap(exam.KindAcquisition, l.URL, err))
			continue
		}
		if added {
			rep.New++
			a.logger.Info("downloaded", "url", l.URL, "path", entry.Path)
		} else {
			rep.Skipped++
		}
	}
	return rep, nil
}

func (a *Acquirer) fetch(ctx context.Context, l Listing, subject, topic string) (store.Entry, error) {
	resp, err := a.client.Download(ctx, l.URL)
	if err != nil {
		return store.Entry{}, err
	}
	if err := ValidatePayload(resp.ContentType, resp.Body); err != nil {
		return store.Entry{}, err
	}

	name := SafeName(l.Title, l.Fingerprint) + ".pdf"
	path := filepath.Join(a.rawDir, name)
	if err := writeFileAtomic(path, resp.Body); err != nil {
		return store.Entry{}, err
	}

	return store.Entry{
		Fingerprint: l.Fingerprint,
		Subject:     subject,
		Topic:       topic,
		Origin:      l.URL,
		Name:        name,
		Path:        path,
		AcquiredAt:  a.now().UTC(),
	}, nil
}

// ValidatePayload rejects empty bodies and small bodies that carry neither
// a PDF content type nor the PDF signature.
func ValidatePayload(contentType string, body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	isPDF := strings.Contains(strings.ToLower(contentType), "pdf") || bytes.HasPrefix(body, []byte("%PDF"))
	if !isPDF && len(body) < minPayloadBytes {
		return fmt.Errorf("%w: %d bytes of %q", ErrInvalidPayload, len(body), contentType)
	}
	return nil
}

var (
	unsafeChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	dashRuns    = regexp.MustCompile(`[-_]{2,}`)
)

// SafeName turns a title into a file-system safe stem. The fingerprint
// prefix keeps distinct documents with equal titles apart.
func SafeName(title, fingerprint string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = unsafeChars.ReplaceAllString(s, "_")
	s = dashRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_-")
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "_-")
	}
	if s == "" {
		s = "paper"
	}
	if len(fingerprint) > 8 {
		fingerprint = fingerprint[:8]
	}
	if fingerprint != "" {
		s += "_" + fingerprint
	}
	return s
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
