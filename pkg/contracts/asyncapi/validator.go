package asyncapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/wms-platform/lot-ledger/pkg/cloudevents"
	"gopkg.in/yaml.v3"
)

// EventPrefix is prepended to every event type derived from a schema name
const EventPrefix = "ledger"

// EventValidator validates CloudEvent payloads against AsyncAPI schemas.
type EventValidator struct {
	schemas    map[string]*jsonschema.Schema
	rawSchemas map[string]any
	compiler   *jsonschema.Compiler
}

// CloudEvent is the structured-mode envelope accepted by ValidateEventJSON.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	ID              string          `json:"id"`
	Time            string          `json:"time,omitempty"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// Spec represents the parts of an AsyncAPI document the validator reads.
type Spec struct {
	AsyncAPI   string             `yaml:"asyncapi"`
	Info       Info               `yaml:"info"`
	Channels   map[string]Channel `yaml:"channels"`
	Components Components         `yaml:"components"`
}

// Info contains the AsyncAPI info section.
type Info struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// Channel represents a channel in AsyncAPI.
type Channel struct {
	Address  string         `yaml:"address"`
	Messages map[string]any `yaml:"messages"`
}

// Components contains reusable components.
type Components struct {
	Schemas  map[string]any `yaml:"schemas"`
	Messages map[string]any `yaml:"messages"`
}

// NewEventValidator creates a new event validator from an AsyncAPI specification file.
func NewEventValidator(asyncAPIPath string) (*EventValidator, error) {
	data, err := os.ReadFile(asyncAPIPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read AsyncAPI spec: %w", err)
	}

	return NewEventValidatorFromBytes(data)
}

// NewEventValidatorFromBytes creates a new event validator from AsyncAPI specification bytes.
// Every component schema named <Aggregate><Action>Data is registered for the
// event type ledger.<aggregate>.<action>.
func NewEventValidatorFromBytes(specBytes []byte) (*EventValidator, error) {
	var spec Spec
	if err := yaml.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}

	v := &EventValidator{
		schemas:    make(map[string]*jsonschema.Schema),
		rawSchemas: make(map[string]any),
		compiler:   jsonschema.NewCompiler(),
	}

	for schemaName, schema := range spec.Components.Schemas {
		eventType := DeriveEventType(schemaName)
		if eventType == "" {
			continue
		}

		schemaJSON, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema %s: %w", schemaName, err)
		}
		if err := v.register(eventType, "asyncapi://schemas/"+schemaName, schemaJSON); err != nil {
			return nil, fmt.Errorf("schema %s: %w", schemaName, err)
		}
	}

	return v, nil
}

func (v *EventValidator) register(eventType, uri string, schemaJSON []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("failed to parse schema JSON: %w", err)
	}
	if err := v.compiler.AddResource(uri, doc); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}

	compiled, err := v.compiler.Compile(uri)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	v.schemas[eventType] = compiled
	v.rawSchemas[eventType] = doc
	return nil
}

// Validate checks the payload of a ledger CloudEvent against the schema of its type.
func (v *EventValidator) Validate(event *cloudevents.LedgerCloudEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.Data == nil {
		return fmt.Errorf("event data is required")
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	return v.ValidatePayload(event.Type, data)
}

// ValidatePayload validates raw JSON data for the given event type.
func (v *EventValidator) ValidatePayload(eventType string, payload []byte) error {
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}

	schema, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", eventType)
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to parse event data: %w", err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", eventType, err)
	}
	return nil
}

// ValidateEventJSON validates a structured-mode CloudEvent.
func (v *EventValidator) ValidateEventJSON(eventJSON []byte) error {
	var event CloudEvent
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return fmt.Errorf("failed to parse CloudEvent: %w", err)
	}
	if len(event.Data) == 0 {
		return fmt.Errorf("event data is required")
	}
	return v.ValidatePayload(event.Type, event.Data)
}

// SupportedEventTypes returns the registered event types in sorted order.
func (v *EventValidator) SupportedEventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for eventType := range v.schemas {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// HasSchema checks if a schema exists for the given event type.
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}

// GetSchema returns the raw schema for a given event type.
func (v *EventValidator) GetSchema(eventType string) (any, bool) {
	schema, ok := v.rawSchemas[eventType]
	return schema, ok
}

// RegisterSchema adds a custom schema for an event type.
func (v *EventValidator) RegisterSchema(eventType string, schemaJSON []byte) error {
	return v.register(eventType, "custom://schemas/"+eventType, schemaJSON)
}

// DeriveEventType converts a schema name to an event type:
//
//	MovementRecordedData -> ledger.movement.recorded
//	ItemDeactivatedData  -> ledger.item.deactivated
//	StockLevelChangedData -> ledger.stock.level-changed
//
// Names without a Data suffix, or with a single word, are not events.
func DeriveEventType(schemaName string) string {
	name, ok := strings.CutSuffix(schemaName, "Data")
	if !ok {
		return ""
	}

	words := splitCamel(name)
	if len(words) < 2 {
		return ""
	}

	return EventPrefix + "." + words[0] + "." + strings.Join(words[1:], "-")
}

func splitCamel(s string) []string {
	var words []string
	var current []rune
	for _, r := range s {
		if unicode.IsUpper(r) && len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		words = append(words, strings.ToLower(string(current)))
	}
	return words
}
