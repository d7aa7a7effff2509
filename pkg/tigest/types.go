package tigest

import "time"

// Result types for credential and token handling
type Result[T any] struct {
	Data    T
	Error   *AgentError
	Success bool
}

func Ok[T any](data T) Result[T] {
	return Result[T]{Data: data, Success: true}
}

func Err[T any](err *AgentError) Result[T] {
	return Result[T]{Error: err, Success: false}
}

// SessionState enum for the controller state machine
type SessionState string

const (
	StateIdle        SessionState = "idle"
	StateConnecting  SessionState = "connecting"
	StateActive      SessionState = "active"
	StateTerminating SessionState = "terminating"
	StateError       SessionState = "error"
)

// Role identifies the speaker a finalized turn belongs to.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one finalized, attributed segment of conversation.
// Turns are immutable once appended; the transcript is append-only.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// AudioFrame is a transient block of captured audio, consumed
// immediately by the transport.
type AudioFrame struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Seq        uint64
}

// FunctionCall is a single structured call issued by the backend.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// LeadRecord holds the fields collected by capture_lead_info over the
// life of one session.
type LeadRecord struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	BusinessNature string `json:"business_nature"`

	// Extra keeps any additional fields the model supplies.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Merge folds tool-call arguments into the record. Known fields map to
// their slots, everything else lands in Extra.
func (l *LeadRecord) Merge(args map[string]interface{}) {
	for k, v := range args {
		s, _ := v.(string)
		switch k {
		case "name":
			l.Name = s
		case "email":
			l.Email = s
		case "business_nature":
			l.BusinessNature = s
		default:
			if l.Extra == nil {
				l.Extra = make(map[string]interface{})
			}
			l.Extra[k] = v
		}
	}
}

// LiveTranscript is the in-progress accumulator preview exposed while a
// turn is still open.
type LiveTranscript struct {
	User  string
	Agent string
}

// ExpiryReason tells the controller which supervisor limit fired.
type ExpiryReason string

const (
	ExpiryInactivity  ExpiryReason = "inactivity"
	ExpiryMaxDuration ExpiryReason = "max_duration"
)

// AvailabilitySlot is one bookable slot returned by the scheduling
// collaborator.
type AvailabilitySlot struct {
	Start           string `json:"start"`
	End             string `json:"end,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Label           string `json:"label,omitempty"`
}

// AvailabilityRequest is the outbound payload for the scheduling
// collaborator.
type AvailabilityRequest struct {
	Date            string `json:"date,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	SessionID       string `json:"session_id"`
}

// AvailabilityResponse is the collaborator's success payload.
type AvailabilityResponse struct {
	AvailableSlots []AvailabilitySlot `json:"available_slots"`
	Message        string             `json:"message"`
}

// DeliveryPayload is the fire-and-forget post-call submission.
type DeliveryPayload struct {
	SessionID       string     `json:"session_id"`
	LeadData        LeadRecord `json:"lead_data"`
	FullTranscript  []Turn     `json:"full_transcript"`
	DurationSeconds int        `json:"duration_seconds"`
	AudioFile       string     `json:"audio_file"`
}

// APIKey wraps a broker-issued or static backend credential.
type APIKey struct {
	Key       string
	ExpiresAt time.Time // zero when the key does not expire
}

// Expired reports whether the key is past its expiry, honoring a
// refresh buffer so a nearly-dead key is treated as expired.
func (k APIKey) Expired(now time.Time, buffer time.Duration) bool {
	if k.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(k.ExpiresAt.Add(-buffer))
}

// Handler types
type StateHandler func(from, to SessionState)
type TranscriptHandler func([]Turn)
type LiveHandler func(LiveTranscript)
type SpeakingHandler func(role Role, speaking bool)
type ErrorHandler func(*AgentError)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
