package cloudevents

import (
	"time"
)

// Event types published by the ledger
const (
	MovementRecorded    = "ledger.movement.recorded"
	MovementDeactivated = "ledger.movement.deactivated"
	ItemCreated         = "ledger.item.created"
	ItemDeactivated     = "ledger.item.deactivated"
)

// SourceLedger is the CloudEvents source of every ledger event
const SourceLedger = "/ledger/lot-ledger-service"

// Extension attribute names
const (
	ExtOwnerID       = "ledgerownerid"
	ExtCorrelationID = "ledgercorrelationid"
	ExtTraceParent   = "traceparent"
	ExtTraceState    = "tracestate"
)

// LedgerCloudEvent represents a CloudEvents v1.0 event emitted by the ledger
type LedgerCloudEvent struct {
	SpecVersion     string    `json:"specversion" bson:"specversion"`
	Type            string    `json:"type" bson:"type"`
	Source          string    `json:"source" bson:"source"`
	Subject         string    `json:"subject,omitempty" bson:"subject,omitempty"`
	ID              string    `json:"id" bson:"id"`
	Time            time.Time `json:"time" bson:"time"`
	DataContentType string    `json:"datacontenttype" bson:"datacontenttype"`
	Data            any       `json:"data" bson:"data"`

	OwnerID       string `json:"ledgerownerid,omitempty" bson:"ledgerownerid,omitempty"`
	CorrelationID string `json:"ledgercorrelationid,omitempty" bson:"ledgercorrelationid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty" bson:"traceparent,omitempty"`
	TraceState    string `json:"tracestate,omitempty" bson:"tracestate,omitempty"`
}

// Headers returns the binary-mode CloudEvents headers for the event
func (e *LedgerCloudEvent) Headers() map[string]string {
	headers := map[string]string{
		"ce-specversion": e.SpecVersion,
		"ce-type":        e.Type,
		"ce-source":      e.Source,
		"ce-id":          e.ID,
		"ce-time":        e.Time.Format(time.RFC3339Nano),
		"content-type":   e.DataContentType,
	}
	optional := map[string]string{
		"ce-" + ExtOwnerID:       e.OwnerID,
		"ce-" + ExtCorrelationID: e.CorrelationID,
		"ce-" + ExtTraceParent:   e.TraceParent,
		"ce-" + ExtTraceState:    e.TraceState,
		"ce-subject":             e.Subject,
	}
	for k, v := range optional {
		if v != "" {
			headers[k] = v
		}
	}
	return headers
}
