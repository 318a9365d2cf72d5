package reports

import (
	"context"
	"io"

	"github.com/rmax-ai/linkgate/pkg/client"
)

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
	ReportFormatDOT  ReportFormat = "dot"
)

// LinkSource defines the data access required by reports.
type LinkSource interface {
	Links(ctx context.Context) ([]client.Link, error)
}

type Generator interface {
	Generate(ctx context.Context) (io.Reader, error)
}
