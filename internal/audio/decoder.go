package audio

import (
	"context"
	"fmt"
)

// DecodeError reports that an inbound recording is not a decodable audio container.
// It is fatal for the recording it belongs to.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio decode failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("audio decode failed: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Converter turns an arbitrary audio container into mono PCM
type Converter interface {
	ToPCM(ctx context.Context, data []byte) (*PCM, error)
}

// Decoder turns inbound recordings into mono PCM. PCM WAV is decoded
// natively; anything else goes through the converter when one is set.
type Decoder struct {
	converter Converter
}

// NewDecoder creates a decoder. A nil converter limits input to PCM WAV.
func NewDecoder(converter Converter) *Decoder {
	return &Decoder{converter: converter}
}

// Decode decodes data into mono PCM or returns a *DecodeError
func (d *Decoder) Decode(ctx context.Context, data []byte) (*PCM, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty input"}
	}

	if IsWAV(data) {
		pcm, err := DecodeWAV(data)
		if err == nil {
			return pcm, nil
		}
		if d.converter == nil {
			return nil, &DecodeError{Reason: "unreadable WAV", Err: err}
		}
	} else if d.converter == nil {
		return nil, &DecodeError{Reason: "unsupported container and no converter configured"}
	}

	pcm, err := d.converter.ToPCM(ctx, data)
	if err != nil {
		return nil, &DecodeError{Reason: "conversion failed", Err: err}
	}

	return pcm, nil
}
