package gateway

import "time"

// Session identifies the frontend session that originated a battle.
type Session struct {
	UUID           string    `json:"uuid"`
	CreateTime     time.Time `json:"create_time"`
	FrontendGitHash string   `json:"frontend_git_hash"`
	AckToS         bool      `json:"ack_tos"`
}

// User identifies a battle participant by salted fingerprints only; there
// is no authentication in the core.
type User struct {
	SaltedIP          string `json:"salted_ip"`
	SaltedFingerprint string `json:"salted_fingerprint"`
}

// PromptRequest is the free-text prompt and optional hints submitted with a
// battle request.
type PromptRequest struct {
	Prompt       string   `json:"prompt"`
	Duration     *float64 `json:"duration,omitempty"`
	Instrumental *bool    `json:"instrumental,omitempty"`
}

// ListenEventKind identifies one playback event.
type ListenEventKind string

const (
	ListenEventPlay  ListenEventKind = "PLAY"
	ListenEventPause ListenEventKind = "PAUSE"
	ListenEventSeek  ListenEventKind = "SEEK"
)

// ListenEvent is one entry in a listen-data sequence.
type ListenEvent struct {
	Event     ListenEventKind `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
}

// Preference is the user's pairwise judgment.
type Preference string

const (
	PreferenceA        Preference = "A"
	PreferenceB        Preference = "B"
	PreferenceTie      Preference = "TIE"
	PreferenceBothBad  Preference = "BOTH_BAD"
)

// Vote is the recorded outcome of a battle.
type Vote struct {
	Preference     Preference    `json:"preference"`
	PreferenceTime time.Time     `json:"preference_time"`
	AListenData    []ListenEvent `json:"a_listen_data"`
	BListenData    []ListenEvent `json:"b_listen_data"`
	AFeedback      *string       `json:"a_feedback,omitempty"`
	BFeedback      *string       `json:"b_feedback,omitempty"`
}

// BattleRecord is the persisted JSON document for one battle.
type BattleRecord struct {
	UUID        string         `json:"uuid"`
	CreateTime  time.Time      `json:"create_time"`
	Session     Session        `json:"session"`
	User        User           `json:"user"`
	PromptFree  string         `json:"prompt_free"`
	ASystemKey  string         `json:"a_system_key"`
	BSystemKey  string         `json:"b_system_key"`
	AAudioURI   string         `json:"a_audio_uri"`
	BAudioURI   string         `json:"b_audio_uri"`
	AGenMs      float64        `json:"a_gen_ms"`
	BGenMs      float64        `json:"b_gen_ms"`
	Vote        *Vote          `json:"vote,omitempty"`
}

// listenSeconds sums PLAY-to-PAUSE intervals in events. An unmatched PLAY
// (no following PAUSE) is coerced to last until asOf, per the spec's
// resolution of malformed listen-data sequences.
func listenSeconds(events []ListenEvent, asOf time.Time) float64 {
	var total float64
	var playStart *time.Time
	for _, e := range events {
		switch e.Event {
		case ListenEventPlay:
			if playStart == nil {
				t := e.Timestamp
				playStart = &t
			}
		case ListenEventPause:
			if playStart != nil {
				total += e.Timestamp.Sub(*playStart).Seconds()
				playStart = nil
			}
		}
	}
	if playStart != nil {
		total += asOf.Sub(*playStart).Seconds()
	}
	return total
}
