// Package transcription converts recordings to text.
// A Pipeline decodes and chunks the audio, then the Transcriber sends each
// segment to a Recognizer with bounded parallelism and a per-segment timeout.
// Failed segments are soft failures: they are logged, counted and left out
// of the joined text. Two recognizers are provided: an OpenAI-compatible
// Whisper client and a generic multipart HTTP client with retries.
package transcription
