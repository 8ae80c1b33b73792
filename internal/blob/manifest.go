package blob

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var (
	ErrInvalidManifest = errors.New("invalid_manifest")
	ErrNoBlobName      = errors.New("manifest_without_blob")
)

// Manifest is the run descriptor written next to every export.
type Manifest struct {
	RunInfo RunInfo        `json:"runInfo"`
	Blobs   []ManifestBlob `json:"blobs"`
}

type RunInfo struct {
	RunID         string `json:"runId"`
	StartDate     string `json:"startDate,omitempty"`
	EndDate       string `json:"endDate,omitempty"`
	ReportName    string `json:"reportName,omitempty"`
	ReportType    string `json:"reportType,omitempty"`
	SubmittedTime string `json:"submittedTime,omitempty"`
}

type ManifestBlob struct {
	BlobName  string `json:"blobName"`
	ByteCount int64  `json:"byteCount,omitempty"`
}

func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.RunInfo.RunID = strings.TrimSpace(m.RunInfo.RunID)
	if m.RunInfo.RunID == "" {
		return nil, fmt.Errorf("%w: missing runId", ErrInvalidManifest)
	}
	return &m, nil
}

// ReportDate is the date part of runInfo.endDate, or nil when absent.
func (m *Manifest) ReportDate() (*time.Time, error) {
	raw, _, _ := strings.Cut(strings.TrimSpace(m.RunInfo.EndDate), "T")
	if raw == "" {
		return nil, nil
	}
	date, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: endDate %q", ErrInvalidManifest, m.RunInfo.EndDate)
	}
	return &date, nil
}

// CSVBlob is the name of the first data blob.
func (m *Manifest) CSVBlob() (string, error) {
	if len(m.Blobs) == 0 || strings.TrimSpace(m.Blobs[0].BlobName) == "" {
		return "", ErrNoBlobName
	}
	return strings.TrimSpace(m.Blobs[0].BlobName), nil
}

func isManifest(name string) bool {
	return strings.HasSuffix(name, "manifest.json")
}

func isCSV(name string) bool {
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.gz")
}
