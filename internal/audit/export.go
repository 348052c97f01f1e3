package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Format defines supported export formats.
type Format string

const (
	// FormatJSON exports events as an indented JSON array with a fixed
	// field order.
	FormatJSON Format = "json"
	// FormatCSV exports events as a flat table with a fixed column set;
	// metadata is stringified as compact JSON.
	FormatCSV Format = "csv"
	// FormatCBOR exports events using RFC 8949 core deterministic encoding.
	FormatCBOR Format = "cbor"
)

// exportEvent is the serialization shape for exported events. Unlike the
// Event JSON tags, previous_hash and signature are never omitted: the whole
// point of an export is to hand an auditor an independently verifiable
// artifact.
type exportEvent struct {
	ID           string         `json:"id"`
	Timestamp    string         `json:"timestamp"`
	EventType    string         `json:"event_type"`
	Severity     string         `json:"severity"`
	ActorID      string         `json:"actor_id"`
	SessionID    string         `json:"session_id"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	Metadata     map[string]any `json:"metadata"`
	PreviousHash string         `json:"previous_hash"`
	Signature    string         `json:"signature"`
}

// exportColumns is the fixed CSV column set.
var exportColumns = []string{
	"id",
	"timestamp",
	"event_type",
	"severity",
	"actor_id",
	"session_id",
	"ip_address",
	"user_agent",
	"resource_type",
	"resource_id",
	"action",
	"metadata",
	"previous_hash",
	"signature",
}

// Export serializes the given events in the requested format. It is a pure
// function of its inputs: the same events in the same order always produce
// byte-identical output, so exported artifacts can be compared and
// re-verified independently.
func Export(events []*Event, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return exportJSON(events)
	case FormatCSV:
		return exportCSV(events)
	case FormatCBOR:
		return exportCBOR(events)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// ContentType returns the MIME type for an export format, for handoff to
// object storage or HTTP responses.
func ContentType(format Format) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatCBOR:
		return "application/cbor"
	default:
		return "application/octet-stream"
	}
}

// FileExtension returns the artifact file extension for an export format.
func FileExtension(format Format) string {
	switch format {
	case FormatJSON:
		return ".json"
	case FormatCSV:
		return ".csv"
	case FormatCBOR:
		return ".cbor"
	default:
		return ".bin"
	}
}

func toExportEvent(e *Event) exportEvent {
	return exportEvent{
		ID:           e.ID,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		EventType:    string(e.Type),
		Severity:     string(e.Severity),
		ActorID:      e.ActorID,
		SessionID:    e.SessionID,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Action:       e.Action,
		Metadata:     e.Metadata,
		PreviousHash: e.PreviousHash,
		Signature:    e.Signature,
	}
}

func exportJSON(events []*Event) ([]byte, error) {
	out := make([]exportEvent, len(events))
	for i, e := range events {
		out[i] = toExportEvent(e)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export JSON: %w", err)
	}
	return data, nil
}

func exportCSV(events []*Event) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	if err := writer.Write(exportColumns); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range events {
		metadata := ""
		if len(e.Metadata) > 0 {
			// encoding/json sorts map keys, keeping the cell deterministic.
			data, err := json.Marshal(e.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal metadata for event %s: %w", e.ID, err)
			}
			metadata = string(data)
		}

		row := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.Type),
			string(e.Severity),
			e.ActorID,
			e.SessionID,
			e.IPAddress,
			e.UserAgent,
			e.ResourceType,
			e.ResourceID,
			e.Action,
			metadata,
			e.PreviousHash,
			e.Signature,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func exportCBOR(events []*Event) ([]byte, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to build CBOR encoder: %w", err)
	}

	out := make([]exportEvent, len(events))
	for i, e := range events {
		out[i] = toExportEvent(e)
	}

	data, err := enc.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export CBOR: %w", err)
	}
	return data, nil
}

// ExportOptions selects the range and format for ExportRange.
type ExportOptions struct {
	Format Format
	// From and To bound the exported range by timestamp, inclusive.
	From time.Time
	To   time.Time
	// Types and ActorID optionally narrow the export.
	Types   []EventType
	ActorID string
	// Limit caps the number of exported events (0 = no cap).
	Limit int
}

// Exporter produces compliance artifacts from a stored range.
type Exporter struct {
	store   ChainStore
	metrics *Metrics
}

// NewExporter creates an Exporter over the given store.
func NewExporter(store ChainStore, metrics *Metrics) (*Exporter, error) {
	if store == nil {
		return nil, fmt.Errorf("chain store is required")
	}
	return &Exporter{store: store, metrics: metrics}, nil
}

// ExportRange queries the selected range in insertion order (ascending, the
// order verification uses) and serializes it. Same range and format always
// produce byte-identical output.
func (x *Exporter) ExportRange(ctx context.Context, opts ExportOptions) ([]byte, error) {
	events, err := x.store.Range(ctx, Filter{
		Types:     opts.Types,
		ActorID:   opts.ActorID,
		From:      opts.From,
		To:        opts.To,
		Ascending: true,
		Limit:     opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("export range read failed: %w", err)
	}

	data, err := Export(events, opts.Format)
	if err != nil {
		return nil, err
	}

	x.metrics.ObserveExport(opts.Format, len(events))
	return data, nil
}
