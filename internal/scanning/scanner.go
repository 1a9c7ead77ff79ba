// Package scanning turns uploaded bill files into raw text. PDFs are
// rendered page by page and each page is transcribed independently;
// images are treated as a single page.
package scanning

// ScanResult holds the transcribed text of one document.
type ScanResult struct {
	// Pages contains the raw text of each page, in document order.
	Pages []string
}

// Scanner defines the interface for document text extraction.
type Scanner interface {
	// ScanDocument transcribes a bill image or PDF into per-page text.
	ScanDocument(data []byte, contentType string) (*ScanResult, error)
	// Close closes the scanner and releases resources.
	Close() error
}
