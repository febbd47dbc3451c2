// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export converts the audit trail to portable formats for review
// outside the application (AU-6: audit review, analysis, and reporting).
//
// Exports operate on entries already written through the audit logger, so
// everything here is post-redaction; an export can never surface a secret
// the trail itself does not contain.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jeranaias/adminguard/internal/security"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options filters which entries an export includes.
type Options struct {
	// Actor limits the export to one actor (empty = all).
	Actor string

	// Category limits the export to one category (empty = all).
	Category string

	// After excludes entries at or before this instant (zero = no bound).
	After time.Time

	// Before excludes entries at or after this instant (zero = no bound).
	Before time.Time
}

// DefaultOptions returns an unfiltered export.
func DefaultOptions() *Options {
	return &Options{}
}

func (o *Options) match(e *security.AuditEntry) bool {
	if o.Actor != "" && e.Actor != o.Actor {
		return false
	}
	if o.Category != "" && e.Category != o.Category {
		return false
	}
	if !o.After.IsZero() && !e.Timestamp.After(o.After) {
		return false
	}
	if !o.Before.IsZero() && !e.Timestamp.Before(o.Before) {
		return false
	}
	return true
}

// filter applies opts and returns the surviving entries in timestamp order.
func filter(entries []security.AuditEntry, opts *Options) []security.AuditEntry {
	if opts == nil {
		opts = DefaultOptions()
	}
	out := make([]security.AuditEntry, 0, len(entries))
	for i := range entries {
		if opts.match(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports audit entries as a pretty-printed JSON array.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter with the given filter options.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export serializes the filtered entries.
func (e *JSONExporter) Export(entries []security.AuditEntry) ([]byte, error) {
	if entries == nil {
		return nil, fmt.Errorf("entries is nil")
	}
	return json.MarshalIndent(filter(entries, e.options), "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

// =============================================================================
// CSV EXPORTER
// =============================================================================

// csvHeader is the fixed column order for CSV exports.
var csvHeader = []string{"timestamp", "id", "actor", "category", "action", "description"}

// CSVExporter exports audit entries as RFC 4180 CSV with a header row.
// Timestamps are rendered in UTC RFC 3339 so spreadsheet imports sort
// correctly regardless of the reviewer's locale.
type CSVExporter struct {
	options *Options
}

// NewCSVExporter creates a CSV exporter with the given filter options.
func NewCSVExporter(opts *Options) *CSVExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &CSVExporter{options: opts}
}

// Export serializes the filtered entries.
func (e *CSVExporter) Export(entries []security.AuditEntry) ([]byte, error) {
	if entries == nil {
		return nil, fmt.Errorf("entries is nil")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, entry := range filter(entries, e.options) {
		record := []string{
			entry.Timestamp.UTC().Format(time.RFC3339),
			entry.ID,
			entry.Actor,
			entry.Category,
			entry.Action,
			entry.Description,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for CSV.
func (e *CSVExporter) FileExtension() string {
	return ".csv"
}

// MimeType returns the MIME type for CSV.
func (e *CSVExporter) MimeType() string {
	return "text/csv"
}
