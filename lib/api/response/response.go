package response

import "github.com/skylinesee/reeQute/lib/clock"

// Response is the envelope every API endpoint returns. The optional grant
// fields are only set when a temporary access grant is involved.
type Response struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	Temporary       *bool  `json:"temporary,omitempty"`
	ExpiresIn       *int   `json:"expiresIn,omitempty"`
	ExpiryTimestamp *int64 `json:"expiryTimestamp,omitempty"`
	Timestamp       string `json:"timestamp"`
}

func Ok(message string) Response {
	return Response{
		Success:   true,
		Message:   message,
		Timestamp: clock.Now(),
	}
}

func Error(message string) Response {
	return Response{
		Success:   false,
		Message:   message,
		Timestamp: clock.Now(),
	}
}

// WithGrant marks the response as describing a grant valid for expiresIn
// more minutes, ending at expiry (unix seconds).
func (r Response) WithGrant(temporary bool, expiresIn int, expiry int64) Response {
	r.Temporary = &temporary
	if temporary {
		r.ExpiresIn = &expiresIn
		r.ExpiryTimestamp = &expiry
	}
	return r
}
