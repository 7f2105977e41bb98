package domain

// Sender identifies who authored a transcript entry.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ApologyText is the bot reply appended when an answer could not be obtained.
const ApologyText = "Sorry, something went wrong while getting an answer. Please try again."

// Message is one immutable transcript entry.
type Message struct {
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}

// RequestState models the single-flight answer request lifecycle.
type RequestState string

const (
	RequestStateIdle    RequestState = "idle"
	RequestStatePending RequestState = "pending"
)

// ListeningState models the speech recognition lifecycle.
type ListeningState string

const (
	ListeningStateIdle      ListeningState = "idle"
	ListeningStateListening ListeningState = "listening"
)

// Draft is the not-yet-sent input and its live token estimate.
type Draft struct {
	Text          string  `json:"text"`
	TokenEstimate float64 `json:"tokenEstimate"`
	OverBudget    bool    `json:"overBudget"`
}

// ErrorCode identifies non-fatal failures surfaced to the UI and diagnostics.
type ErrorCode string

const (
	ErrorCodeStartup   ErrorCode = "startup"
	ErrorCodeAnswer    ErrorCode = "answer"
	ErrorCodeSpeech    ErrorCode = "speech"
	ErrorCodeRules     ErrorCode = "rules"
	ErrorCodeClipboard ErrorCode = "clipboard"
)

// Snapshot is a read-only copy of the session state for presentation.
type Snapshot struct {
	Transcript     []Message      `json:"transcript"`
	Draft          Draft          `json:"draft"`
	RequestState   RequestState   `json:"requestState"`
	ListeningState ListeningState `json:"listeningState"`
	VoiceAvailable bool           `json:"voiceAvailable"`
}
