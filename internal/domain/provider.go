package domain

import "context"

// Transcriber converts a recorded audio file to text. Failures are reported
// as one of the Msg* sentinel strings, never as an error.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) string
}

// VisionModel queries a vision-capable language model with an optional
// image (as a data URI) and prior conversation turns.
type VisionModel interface {
	Complete(ctx context.Context, query, imageDataURI string, history []Turn) string
}

// Translator renders text in the target language code.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// Synthesizer speaks text aloud and returns where the audio was written.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, langCode string) Speech
}

// EmotionDetector labels the speaker's emotional state from a recording.
type EmotionDetector interface {
	Detect(ctx context.Context, audioPath string) string
}
