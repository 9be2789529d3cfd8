package pollpool

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ResponseCheck inspects an HTTP response and returns an error when the
// response should count as a failed task. A task with a check is judged by
// the check alone, whatever the status code.
//
// ResponseCheck functions are called within the worker's panic recovery
// boundary; a panicking check fails the task with a correlation ID.
//
// Built-in checks: [ExpectJSONField], [ExpectBodyContains],
// [ExpectBodyMatch], [ExpectStatus], composed with [AllChecks].
type ResponseCheck func(body []byte, statusCode int) error

// ErrCheckFailed is wrapped by every error returned from a built-in check.
var ErrCheckFailed = errors.New("response check failed")

// healthyValues are the field values [ExpectJSONField] accepts by default.
var healthyValues = []string{
	"ok", "healthy", "up", "active", "running", "pass", "passed",
	"true", "green", "none", "operational",
}

// ExpectJSONField returns a [ResponseCheck] that reads a JSON field using
// dot notation (e.g. "data.health.status") and requires its value to be one
// of accepted, compared case-insensitively.
//
// With no accepted values, common healthy values such as "ok", "healthy",
// "up" and "pass" are accepted. Booleans and the numbers 0 and 1 are
// compared as "false" and "true".
//
// Example:
//
//	// For response: {"data": {"status": "healthy"}}
//	check := pollpool.ExpectJSONField("data.status")
func ExpectJSONField(path string, accepted ...string) ResponseCheck {
	parts := strings.Split(path, ".")
	if len(accepted) == 0 {
		accepted = healthyValues
	}
	want := make([]string, len(accepted))
	for i, a := range accepted {
		want[i] = strings.ToLower(a)
	}

	return func(body []byte, _ int) error {
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return fmt.Errorf("%w: body is not JSON: %v", ErrCheckFailed, err)
		}

		value, ok := jsonPath(data, parts)
		if !ok {
			return fmt.Errorf("%w: field %q not found", ErrCheckFailed, path)
		}
		if !slices.Contains(want, strings.ToLower(value)) {
			return fmt.Errorf("%w: field %q is %q", ErrCheckFailed, path, value)
		}
		return nil
	}
}

// jsonPath walks a decoded JSON document and renders the leaf as a string.
func jsonPath(data any, parts []string) (string, bool) {
	current := data
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		if current, ok = obj[part]; !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		switch v {
		case 0:
			return "false", true
		case 1:
			return "true", true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

// ExpectBodyContains returns a [ResponseCheck] that requires the body to
// contain text, case-insensitively.
func ExpectBodyContains(text string) ResponseCheck {
	lower := strings.ToLower(text)
	return func(body []byte, _ int) error {
		if strings.Contains(strings.ToLower(string(body)), lower) {
			return nil
		}
		return fmt.Errorf("%w: body does not contain %q", ErrCheckFailed, text)
	}
}

// ExpectBodyMatch returns a [ResponseCheck] that matches the body against
// pattern and requires the first capture group to equal want,
// case-insensitively.
//
// Returns an error if the pattern is invalid or has no capture group.
//
// Example:
//
//	check, err := pollpool.ExpectBodyMatch(`"status":\s*"(\w+)"`, "ok")
func ExpectBodyMatch(pattern, want string) (ResponseCheck, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("pattern %q needs a capture group", pattern)
	}

	return func(body []byte, _ int) error {
		matches := re.FindSubmatch(body)
		if len(matches) < 2 {
			return fmt.Errorf("%w: pattern %q did not match", ErrCheckFailed, pattern)
		}
		if got := string(matches[1]); !strings.EqualFold(got, want) {
			return fmt.Errorf("%w: captured %q, want %q", ErrCheckFailed, got, want)
		}
		return nil
	}, nil
}

// MustExpectBodyMatch is like [ExpectBodyMatch] but panics if the pattern
// is invalid. Use it for compile-time constant patterns.
func MustExpectBodyMatch(pattern, want string) ResponseCheck {
	check, err := ExpectBodyMatch(pattern, want)
	if err != nil {
		panic("pollpool: invalid body pattern: " + err.Error())
	}
	return check
}

// ExpectStatus returns a [ResponseCheck] that requires one of the given
// status codes. It replaces the default 2xx/3xx success range, e.g. to treat
// a redirect as a failure or an expected 503 as a success.
func ExpectStatus(codes ...int) ResponseCheck {
	return func(_ []byte, statusCode int) error {
		if slices.Contains(codes, statusCode) {
			return nil
		}
		return fmt.Errorf("%w: status %d not in %v", ErrCheckFailed, statusCode, codes)
	}
}

// AllChecks returns a [ResponseCheck] that runs checks in order and returns
// the first error. Nil checks are skipped.
func AllChecks(checks ...ResponseCheck) ResponseCheck {
	return func(body []byte, statusCode int) error {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(body, statusCode); err != nil {
				return err
			}
		}
		return nil
	}
}
