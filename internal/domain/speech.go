package domain

// SpeechBackend names the synthesis engine that produced an audio file.
type SpeechBackend string

const (
	SpeechBasic   SpeechBackend = "basic"
	SpeechPremium SpeechBackend = "premium"
)

// Speech is the outcome of a synthesis attempt. Both backends report
// through it so callers handle success and failure the same way.
type Speech struct {
	Path    string
	Backend SpeechBackend
	Err     error
}

// OK reports whether an audio file was produced.
func (s Speech) OK() bool {
	return s.Err == nil && s.Path != ""
}

// SpeechFailed builds a failed outcome for the given backend.
func SpeechFailed(backend SpeechBackend, err error) Speech {
	return Speech{Backend: backend, Err: err}
}
