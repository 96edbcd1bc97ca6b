package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// wireEnvelope is the JSON shape of one line on the wire.
type wireEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// FramingError describes a single malformed line inside a physical message.
// A FramingError never aborts decoding of sibling lines.
type FramingError struct {
	Line int
	Err  error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error on line %d: %v", e.Line, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// Encode serializes envelopes as newline-delimited JSON, one envelope per line.
func Encode(envelopes []Envelope) ([]byte, error) {
	var buf bytes.Buffer
	for i, env := range envelopes {
		if i > 0 {
			buf.WriteByte('\n')
		}
		line, err := json.Marshal(wireEnvelope{T: env.Type, D: env.Data})
		if err != nil {
			return nil, errors.Wrapf(err, "encode envelope %q failed", env.Type)
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// Decode parses a physical message into envelopes. Each non-blank line is an
// independent JSON object; a malformed line is reported as a *FramingError in
// the returned slice and does not drop the remaining lines.
func Decode(p []byte) ([]Envelope, []error) {
	var (
		envelopes []Envelope
		errs      []error
	)
	for i, line := range bytes.Split(p, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var we wireEnvelope
		if err := json.Unmarshal(line, &we); err != nil {
			errs = append(errs, &FramingError{Line: i + 1, Err: err})
			continue
		}
		envelopes = append(envelopes, Envelope{Type: we.T, Data: we.D})
	}
	return envelopes, errs
}
