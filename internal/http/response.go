package http

import (
	"encoding/json"
	"mime"
	"net/http"
	"time"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode   int
	Status       string
	Headers      http.Header
	Body         []byte
	Truncated    bool
	ResponseTime time.Duration
	Timing       TimingInfo
}

// IsJSON reports whether the response declares a JSON content type or, when
// it declares none, whether the body parses as JSON.
func (r *Response) IsJSON() bool {
	ct := r.Headers.Get("Content-Type")
	if ct == "" {
		return len(r.Body) > 0 && json.Valid(r.Body)
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || (len(mt) > 5 && mt[len(mt)-5:] == "+json")
}

// DecodeBody returns the body as a decoded JSON value when it is JSON,
// otherwise as a string. An empty body yields nil.
func (r *Response) DecodeBody() interface{} {
	if len(r.Body) == 0 {
		return nil
	}
	if r.IsJSON() && !r.Truncated {
		var v interface{}
		if err := json.Unmarshal(r.Body, &v); err == nil {
			return v
		}
	}
	return string(r.Body)
}

// IsSuccess returns true if the response status code is in the 2xx range
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
