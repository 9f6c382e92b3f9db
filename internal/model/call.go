package model

import "time"

// CallType distinguishes call directions as reported by the portal.
type CallType string

const (
	CallOutbound  CallType = "outbound"
	CallInbound   CallType = "inbound"
	CallForwarded CallType = "forwarded"
	CallCallback  CallType = "callback"
)

// portal telephony codes: 1=outbound, 2=inbound, 3=forwarded, 4=callback.
var callTypeByCode = map[string]CallType{
	"1": CallOutbound,
	"2": CallInbound,
	"3": CallForwarded,
	"4": CallCallback,
}

// CallTypeFromCode maps a portal call-type code to a CallType.
// Unknown codes return an empty CallType.
func CallTypeFromCode(code string) CallType {
	return callTypeByCode[code]
}

// AudioMetadata describes a stored recording as probed from the file itself,
// plus the durable storage URI it was uploaded to.
type AudioMetadata struct {
	Encoding        string  `json:"encoding"`
	NumChannels     int     `json:"num_channels"`
	SampleRateHertz int     `json:"sample_rate_hertz"`
	DurationSeconds float64 `json:"duration"`
	URI             string  `json:"uri,omitempty"`
}

// Complete reports whether the metadata carries everything the speech
// recognizer needs. Incomplete metadata means the record is skipped this
// cycle, not failed.
func (m AudioMetadata) Complete() bool {
	return m.URI != "" && m.Encoding != "" && m.NumChannels > 0 && m.SampleRateHertz > 0
}

// CriterionResult is one criterion's outcome for a single call: optional free
// text and an optional numeric score. A nil Evaluation means the criterion was
// not scored (distinct from a zero score).
type CriterionResult struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Text       string   `json:"text"`
	Evaluation *float64 `json:"evaluation"`
}

// CallData holds the structured analysis results attached to a call record:
// the dialogue's category and the per-criterion evaluations.
type CallData struct {
	CategoryID int               `json:"category_id,omitempty"`
	Category   string            `json:"category,omitempty"`
	Criteria   []CriterionResult `json:"criteria,omitempty"`
	// Extra carries open-ended CRM fields that have no fixed schema.
	Extra map[string]any `json:"extra,omitempty"`
}

// CriteriaComplete reports whether every criterion result carries the fields
// the aggregation stage needs. Records with incomplete criteria keep their
// data updated but do not advance status.
func (d CallData) CriteriaComplete() bool {
	if len(d.Criteria) == 0 {
		return false
	}
	for _, c := range d.Criteria {
		if c.Name == "" {
			return false
		}
	}
	return true
}

// CallRecord is one row in a portal's calls table. Records are created when a
// recording is first downloaded and never deleted; each pipeline stage mutates
// fields it owns and advances the status.
type CallRecord struct {
	ID          string        `json:"id"`
	Date        time.Time     `json:"date"`
	UserID      *int          `json:"user_id,omitempty"`
	EntityID    *int          `json:"entity_id,omitempty"`
	PhoneNumber string        `json:"phone_number,omitempty"`
	CallType    CallType      `json:"call_type,omitempty"`
	Audio       AudioMetadata `json:"audio_metadata"`
	Dialogue    string        `json:"dialogue,omitempty"`
	Summary     string        `json:"summary,omitempty"`
	Data        CallData      `json:"data"`
	Status      CallStatus    `json:"status"`
}

// RemoteCall is a call as enumerated from the portal's telephony API, before
// it has been downloaded or persisted. EntityID/EntityType reference the CRM
// object in portal terms, not our internal entity key.
type RemoteCall struct {
	ID           string
	Date         time.Time
	UserID       int
	PhoneNumber  string
	RecordingURL string
	EntityID     int
	EntityType   CRMEntityType
	CallType     CallType
}
