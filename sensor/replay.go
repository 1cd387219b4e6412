// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/relvacode/iso8601"
	"github.com/visisec/edge-sdk/errors"
)

// Timestamp is an epoch-millisecond timestamp that also accepts ISO-8601
// strings when decoded from JSON.
type Timestamp int64

// UnmarshalJSON accepts either a number of milliseconds or an ISO-8601 string.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		ts, err := iso8601.ParseString(s)
		if err != nil {
			return err
		}
		*t = Timestamp(ts.UnixMilli())
		return nil
	}

	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*t = Timestamp(ms)
	return nil
}

type replaySample struct {
	Timestamp Timestamp `json:"timestamp"`
	Sample
}

// ReadSamples decodes JSON-lines motion samples, as captured by a recording
// device, for replay into a rolling buffer. Blank lines are skipped.
func ReadSamples(r io.Reader) ([]Sample, error) {
	var out []Sample
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		var rs replaySample
		if err := json.Unmarshal(text, &rs); err != nil {
			return nil, &errors.Error{
				Message:       fmt.Sprintf("invalid sample on line %d", line),
				Kind:          errors.PayloadInvalid,
				NestedError:   err,
				PropertyName:  "line",
				PropertyValue: line,
			}
		}
		s := rs.Sample
		s.Timestamp = int64(rs.Timestamp)
		out = append(out, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Normalize(err, "read samples")
	}
	return out, nil
}
