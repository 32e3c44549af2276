package authapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const maxBodyBytes = 1 << 20 // 1 MB

func decodeJSON(r io.Reader, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrMalformedResponse)
		}
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// errorMessage extracts a human message from an error body, falling back to the raw text.
func errorMessage(body []byte) string {
	var e envelope
	if json.Unmarshal(body, &e) == nil && (e.Error != "" || e.Message != "") {
		return e.reason()
	}
	return string(body)
}
