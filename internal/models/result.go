package models

import (
	"encoding/json"
	"fmt"
)

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// Result is the envelope every capability returns. On the wire Data is
// flattened next to status and message.
type Result struct {
	Status  ResultStatus
	Message string
	Data    map[string]any
}

func Success(message string, data map[string]any) Result {
	return Result{Status: ResultSuccess, Message: message, Data: data}
}

func Failure(format string, args ...any) Result {
	return Result{Status: ResultError, Message: fmt.Sprintf(format, args...)}
}

func (r Result) OK() bool { return r.Status == ResultSuccess }

func (r Result) String(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

func (r Result) Float(key string) (float64, bool) {
	switch v := r.Data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Strings reads a list of strings, tolerating []any from decoded JSON.
func (r Result) Strings(key string) []string {
	switch v := r.Data[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(x))
			}
		}
		return out
	}
	return nil
}

func (r Result) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		m[k] = v
	}
	m["status"] = r.Status
	if r.Message != "" {
		m["message"] = r.Message
	}
	return json.Marshal(m)
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*r = ResultFromMap(m)
	return nil
}

// ResultFromMap builds an envelope from a decoded JSON object. A missing or
// unrecognised status counts as an error.
func ResultFromMap(m map[string]any) Result {
	r := Result{Status: ResultError, Data: map[string]any{}}
	for k, v := range m {
		switch k {
		case "status":
			if s, _ := v.(string); ResultStatus(s) == ResultSuccess {
				r.Status = ResultSuccess
			}
		case "message":
			r.Message, _ = v.(string)
		default:
			r.Data[k] = v
		}
	}
	return r
}
