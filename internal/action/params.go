package action

import "fmt"

// String returns params[key] when it is a non-empty string.
func String(params map[string]interface{}, key string) (string, bool) {
	s, ok := params[key].(string)
	return s, ok && s != ""
}

// RequireString is String that reports a missing key as an error.
func RequireString(params map[string]interface{}, actionType, key string) (string, error) {
	s, ok := String(params, key)
	if !ok {
		return "", fmt.Errorf("%s: %q is required", actionType, key)
	}
	return s, nil
}

// Strings accepts a single string or a list of strings.
func Strings(params map[string]interface{}, key string) []string {
	switch v := params[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Map returns params[key] when it is an object.
func Map(params map[string]interface{}, key string) map[string]interface{} {
	m, _ := params[key].(map[string]interface{})
	return m
}

// Fail builds an unsuccessful result carrying err's message.
func Fail(actionType string, err error) *Result {
	return &Result{Type: actionType, Success: false, Message: err.Error()}
}
