package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// LinksReport exports one snapshot of the store.
type LinksReport struct {
	source LinkSource
	format ReportFormat
}

// NewLinksReport creates a report generator for the given format.
func NewLinksReport(source LinkSource, format ReportFormat) (*LinksReport, error) {
	switch format {
	case ReportFormatCSV, ReportFormatJSON, ReportFormatDOT:
	default:
		return nil, fmt.Errorf("unknown report format: %s", format)
	}
	return &LinksReport{source: source, format: format}, nil
}

// Generate fetches the links and renders them in the report's format.
func (r *LinksReport) Generate(ctx context.Context) (io.Reader, error) {
	ls, err := r.source.Links(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch links: %w", err)
	}

	buf := &bytes.Buffer{}
	switch r.format {
	case ReportFormatJSON:
		enc := json.NewEncoder(buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ls); err != nil {
			return nil, fmt.Errorf("failed to encode links: %w", err)
		}

	case ReportFormatDOT:
		// Graphviz digraph; each link is a node with edges to its source and target.
		buf.WriteString("digraph links {\n")
		for _, l := range ls {
			fmt.Fprintf(buf, "  %d -> %d [label=\"from\"];\n", l.ID, l.FromID)
			fmt.Fprintf(buf, "  %d -> %d [label=\"to\"];\n", l.ID, l.ToID)
		}
		buf.WriteString("}\n")

	default:
		writer := csv.NewWriter(buf)
		if err := writer.Write([]string{"id", "from_id", "to_id"}); err != nil {
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
		for _, l := range ls {
			row := []string{
				strconv.FormatUint(l.ID, 10),
				strconv.FormatUint(l.FromID, 10),
				strconv.FormatUint(l.ToID, 10),
			}
			if err := writer.Write(row); err != nil {
				return nil, fmt.Errorf("failed to write row: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, fmt.Errorf("failed to flush writer: %w", err)
		}
	}

	return buf, nil
}
