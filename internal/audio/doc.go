// Package audio decodes inbound recordings and splits them for recognition.
// PCM WAV is read with go-audio/wav; other containers are converted to mono
// PCM by an external ffmpeg process. Decoded audio is cut into ordered,
// gapless WAV segments no longer than a configured duration.
package audio
