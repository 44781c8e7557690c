package consumer

import (
	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/filetypes"
)

// ReportInvalidContent records files that no known consumer processed. Repository
// bookkeeping such as metadata and signature files is never reported.
type ReportInvalidContent struct {
	base
	reported []string
}

// NewReportInvalidContent creates the report-invalid-content consumer.
func NewReportInvalidContent(env Env) *ReportInvalidContent {
	return &ReportInvalidContent{
		base: newBase(IDReportInvalidContent, "Report repository files that are not recognised content.", env.Logger,
			fixed("**/*"), fixed(filetypes.DefaultExclusions...)),
	}
}

func (c *ReportInvalidContent) BeginScan(repo *domain.Repository) error {
	c.reported = nil
	return c.begin(repo)
}

func (c *ReportInvalidContent) ProcessFile(path string) error {
	c.reported = append(c.reported, path)
	c.logger.Debug("Unrecognised content", "path", path)
	return nil
}

func (c *ReportInvalidContent) CompleteScan() error {
	if len(c.reported) > 0 {
		c.logger.Warn("Repository contains unrecognised content", "count", len(c.reported))
	}
	return nil
}

// Reported returns the files reported during the last scan.
func (c *ReportInvalidContent) Reported() []string {
	return c.reported
}
