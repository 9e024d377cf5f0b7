package registry

// PromptSupport reports how well a candidate prompt is supported by a
// system. Producers of a DetailedTextToMusicPrompt-like value can be
// filtered by the matchup sampler using this enum.
type PromptSupport string

const (
	Supported            PromptSupport = "SUPPORTED"
	Unsupported          PromptSupport = "UNSUPPORTED"
	UnsupportedLyrics    PromptSupport = "UNSUPPORTED_LYRICS"
	UnsupportedDuration  PromptSupport = "UNSUPPORTED_DURATION"
)

// MaxDurationSeconds bounds every prompt regardless of system, per the
// DetailedTextToMusicPrompt invariant duration ∈ (0, 300].
const MaxDurationSeconds = 300

// PromptSupportLocal evaluates the capability predicate the gateway can
// decide from registry metadata alone, without calling the system's
// /prompt_support probe: lyrics requirement and duration bound.
func PromptSupportLocal(m SystemMetadata, wantsLyrics bool, durationSeconds float64) PromptSupport {
	if durationSeconds <= 0 || durationSeconds > MaxDurationSeconds {
		return UnsupportedDuration
	}
	if wantsLyrics && !m.SupportsLyrics {
		return UnsupportedLyrics
	}
	return Supported
}
