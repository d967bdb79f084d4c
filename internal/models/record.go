package models

import (
	"fmt"
	"strings"
	"time"
)

type Field string

const (
	FieldName               Field = "Name"
	FieldEmail              Field = "Email"
	FieldPhone              Field = "Phone"
	FieldRegistrationNumber Field = "RegistrationNumber"
	FieldStatus             Field = "Status"
	FieldBalance            Field = "Balance"
	FieldDueDate            Field = "DueDate"
)

// RequiredFields is the fixed semantic schema, in mapping order.
var RequiredFields = []Field{
	FieldName,
	FieldEmail,
	FieldPhone,
	FieldRegistrationNumber,
	FieldStatus,
	FieldBalance,
	FieldDueDate,
}

var fieldAliases = map[string]Field{
	"regno": FieldRegistrationNumber,
}

// ParseField resolves a field name case-insensitively. "RegNo" is accepted for
// RegistrationNumber.
func ParseField(s string) (Field, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, f := range RequiredFields {
		if strings.ToLower(string(f)) == key {
			return f, true
		}
	}
	f, ok := fieldAliases[key]
	return f, ok
}

// FieldMapping maps a semantic field to a dataset header. Absent keys are missing.
type FieldMapping map[Field]string

func (m FieldMapping) Header(f Field) (string, bool) {
	h, ok := m[f]
	if !ok || h == "" {
		return "", false
	}
	return h, true
}

// MappingFromStrings converts a caller supplied {field: header} object, dropping
// unknown fields and empty headers.
func MappingFromStrings(raw map[string]string) FieldMapping {
	mapping := make(FieldMapping, len(raw))
	for k, header := range raw {
		f, ok := ParseField(k)
		if !ok || header == "" {
			continue
		}
		mapping[f] = header
	}
	return mapping
}

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// ChannelPriority is the order in which selected channels are considered for delivery.
var ChannelPriority = []Channel{ChannelEmail, ChannelWhatsApp}

func (c Channel) DisplayName() string {
	switch c {
	case ChannelEmail:
		return "Email"
	case ChannelWhatsApp:
		return "WhatsApp"
	default:
		return string(c)
	}
}

// Channels is the caller's channel selection, e.g. {"email": true, "whatsapp": false}.
type Channels map[Channel]bool

func (c Channels) Enabled(ch Channel) bool {
	return c[ch]
}

// Selected returns the enabled known channels in priority order.
func (c Channels) Selected() []Channel {
	var out []Channel
	for _, ch := range ChannelPriority {
		if c.Enabled(ch) {
			out = append(out, ch)
		}
	}
	return out
}

type RecordStage string

const (
	StagePending          RecordStage = "PENDING"
	StageContentGenerated RecordStage = "CONTENT_GENERATED"
	StageGenerationFailed RecordStage = "GENERATION_FAILED"
	StageSent             RecordStage = "SENT"
	StageDeliveryFailed   RecordStage = "DELIVERY_FAILED"
	StageSkipped          RecordStage = "SKIPPED"
)

var stageTransitions = map[RecordStage][]RecordStage{
	StagePending:          {StageContentGenerated, StageGenerationFailed},
	StageContentGenerated: {StageSent, StageDeliveryFailed, StageSkipped},
}

func (s RecordStage) Terminal() bool {
	switch s {
	case StageSent, StageDeliveryFailed, StageSkipped, StageGenerationFailed:
		return true
	}
	return false
}

type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "Sent"
	DeliverySimulated DeliveryStatus = "Simulated"
	DeliveryFailed    DeliveryStatus = "Failed"
	DeliverySkipped   DeliveryStatus = "Skipped"
)

// CanonicalRecord is one recipient row after mapping, carried through the pipeline.
type CanonicalRecord struct {
	Index              int               `json:"index"`
	Name               string            `json:"name"`
	Email              string            `json:"email,omitempty"`
	Phone              string            `json:"phone,omitempty"`
	RegistrationNumber string            `json:"registration_number,omitempty"`
	AccountStatus      string            `json:"account_status,omitempty"`
	Balance            string            `json:"balance"`
	DueDate            string            `json:"due_date,omitempty"`
	Raw                map[string]string `json:"-"`

	Subject   string      `json:"subject,omitempty"`
	Body      string      `json:"body,omitempty"`
	Stage     RecordStage `json:"stage"`
	Channel   Channel     `json:"channel,omitempty"`
	Simulated bool        `json:"simulated,omitempty"`
	Error     *string     `json:"error,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Transition moves the record forward in its lifecycle. Backward or skipping
// moves are rejected.
func (r *CanonicalRecord) Transition(to RecordStage, errMsg *string) error {
	for _, allowed := range stageTransitions[r.Stage] {
		if allowed == to {
			r.Stage = to
			r.UpdatedAt = time.Now()
			if errMsg != nil {
				r.Error = errMsg
			}
			return nil
		}
	}
	return fmt.Errorf("invalid record transition %s -> %s", r.Stage, to)
}

func (r *CanonicalRecord) HasContent() bool {
	return r.Subject != "" && r.Body != ""
}

// Address returns the recipient address used on the given channel.
func (r *CanonicalRecord) Address(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return strings.TrimSpace(r.Email)
	case ChannelWhatsApp:
		return strings.TrimSpace(r.Phone)
	}
	return ""
}

// DeliveryStatus reports the record's terminal outcome as it is logged.
func (r *CanonicalRecord) DeliveryStatus() DeliveryStatus {
	switch r.Stage {
	case StageSent:
		if r.Simulated {
			return DeliverySimulated
		}
		return DeliverySent
	case StageSkipped:
		return DeliverySkipped
	default:
		return DeliveryFailed
	}
}
