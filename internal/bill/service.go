package bill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feedetective/feedetective/internal/analysis"
	"github.com/feedetective/feedetective/internal/extraction"
	"github.com/feedetective/feedetective/internal/scanning"
)

// ErrUnsupportedFileType is returned for uploads that are not a PDF or a
// supported image format.
var ErrUnsupportedFileType = fmt.Errorf("unsupported file type")

var supportedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
	"image/gif":       {},
	"image/heic":      {},
	"image/heif":      {},
}

// IDGenerator generates unique IDs for uploads.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles bill uploads and fee analysis.
type Service struct {
	registry    Registry
	scanner     scanning.Scanner
	classifier  *analysis.Classifier
	detector    *analysis.Detector
	retention   time.Duration
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with uuid IDs and wall-clock time.
func NewService(registry Registry, scanner scanning.Scanner, classifier *analysis.Classifier, detector *analysis.Detector, retention time.Duration) *Service {
	return &Service{
		registry:    registry,
		scanner:     scanner,
		classifier:  classifier,
		detector:    detector,
		retention:   retention,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(registry Registry, scanner scanning.Scanner, classifier *analysis.Classifier, detector *analysis.Detector, retention time.Duration, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		registry:    registry,
		scanner:     scanner,
		classifier:  classifier,
		detector:    detector,
		retention:   retention,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Upload scans an uploaded bill, extracts its structured data, and holds
// the result until its retention window passes. The bill type and
// provider are hints from the caller; a missing provider is back-filled
// from the document when extraction found one.
func (s *Service) Upload(filename string, data []byte, contentType string, billType analysis.BillType, provider string) (*Upload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if _, ok := supportedContentTypes[contentType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, contentType)
	}

	result, err := s.scanner.ScanDocument(data, contentType)
	if err != nil {
		slog.Error("Failed to scan document",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc := extraction.BuildDocument(result.Pages)
	if provider == "" {
		provider = doc.ServiceProvider
	}

	now := s.timeSource.Now()
	upload := &Upload{
		ID:        s.idGenerator.Generate(),
		BillType:  billType,
		Provider:  provider,
		Document:  doc,
		CreatedAt: now,
		ExpiresAt: now.Add(s.retention),
	}

	if err := s.registry.SaveUpload(upload); err != nil {
		return nil, fmt.Errorf("saving upload: %w", err)
	}

	return upload, nil
}

// Analyze runs fee detection over a previously uploaded bill. Request
// hints override the ones stored at upload time; the bill type is
// classified from the document when neither gave one.
func (s *Service) Analyze(uploadID string, billType analysis.BillType, provider string) (*analysis.AnalysisResult, error) {
	upload, err := s.registry.GetUpload(uploadID)
	if err != nil {
		return nil, fmt.Errorf("getting upload: %w", err)
	}

	if provider == "" {
		provider = upload.Provider
	}

	// The classifier and detector read the provider off the document;
	// a hint fills the gap when extraction found none.
	doc := upload.Document
	if provider != "" && doc.ServiceProvider == "" {
		withProvider := *doc
		withProvider.ServiceProvider = provider
		doc = &withProvider
	}

	if billType == "" || billType == analysis.BillTypeUnknown {
		billType = upload.BillType
	}
	if billType == "" || billType == analysis.BillTypeUnknown {
		billType = s.classifier.Classify(doc)
	}

	return s.detector.DetectFees(doc, billType), nil
}

// Classify determines the bill type of a previously uploaded bill.
func (s *Service) Classify(uploadID string) (analysis.BillType, error) {
	upload, err := s.registry.GetUpload(uploadID)
	if err != nil {
		return analysis.BillTypeUnknown, fmt.Errorf("getting upload: %w", err)
	}

	doc := upload.Document
	if upload.Provider != "" && doc.ServiceProvider == "" {
		withProvider := *doc
		withProvider.ServiceProvider = upload.Provider
		doc = &withProvider
	}
	return s.classifier.Classify(doc), nil
}

// DeleteUpload removes an upload before its expiry.
func (s *Service) DeleteUpload(uploadID string) error {
	if err := s.registry.DeleteUpload(uploadID); err != nil {
		return fmt.Errorf("deleting upload: %w", err)
	}
	return nil
}

// RunSweeper deletes expired uploads on the given interval until the
// context is canceled. Meant to run in its own goroutine; the registry
// serializes access, so the sweeper shares nothing with request handling.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.registry.SweepExpired()
			if err != nil {
				slog.Error("Sweeping expired uploads", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("Swept expired uploads", "count", removed)
			}
		}
	}
}
