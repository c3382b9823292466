package domain

import "strings"

// Fixed strings returned in place of errors. Callers surface them to the
// user verbatim.
const (
	MsgNoInput          = "No input provided"
	MsgNoDoctorResponse = "No doctor response"
	MsgNoTextInput      = "No text input provided"
	MsgMissingSTTKey    = "Error: Missing GROQ API Key"

	MsgAudioNotFound       = "Error: Audio file not found."
	MsgTranscriptionFailed = "Error: Failed to transcribe audio."
	MsgNoTranscription     = "Error: No transcription result."
	MsgNoModelResponse     = "Error: No valid response from the model."
	MsgImageAnalysisPrefix = "Error during image analysis: "

	EmotionNeutral = "neutral"
)

// Request carries one consultation's inputs. Any combination of the three
// inputs may be set, but at least one must be.
type Request struct {
	AudioPath string
	ImagePath string
	Text      string
	Language  string // language name or code; empty means the default language
}

// Empty reports whether the request carries no input at all.
func (r Request) Empty() bool {
	return r.AudioPath == "" && r.ImagePath == "" && strings.TrimSpace(r.Text) == ""
}

// Response is the outcome of a consultation.
type Response struct {
	Input         string `json:"input"`
	Reply         string `json:"response"`
	AudioPath     string `json:"audio_path,omitempty"`
	Emotion       string `json:"emotion,omitempty"`
	ImageAnalysis string `json:"image_analysis,omitempty"`
	Language      string `json:"language,omitempty"`
	Speech        Speech `json:"-"`
}
