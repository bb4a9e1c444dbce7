package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reasoning prefixes that mark a failed classification. Failed outcomes are
// stored like filtered ones (no interest, not signal) and are told apart by
// these markers only.
const (
	ParseErrorPrefix          = "parse error: "
	ClassificationErrorPrefix = "classification error: "
)

const noReasoning = "No reasoning provided"

// Decision is a classification outcome.
type Decision struct {
	Interest  *string
	IsSignal  bool
	Reasoning string
}

// Failed reports whether the decision records a parse or call failure.
func (d Decision) Failed() bool {
	return IsFailure(d.Reasoning)
}

// IsFailure reports whether stored reasoning carries a failure marker.
func IsFailure(reasoning string) bool {
	return strings.HasPrefix(reasoning, ParseErrorPrefix) || strings.HasPrefix(reasoning, ClassificationErrorPrefix)
}

func failure(prefix string, err error) Decision {
	return Decision{Reasoning: prefix + err.Error()}
}

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*\\s*(\\{.*?\\})\\s*```")

// ParseResponse decodes the oracle's raw reply. It never fails: malformed
// replies produce a Decision whose reasoning starts with ParseErrorPrefix.
//
// Rules, applied in order:
//  1. A fenced code block holding a JSON object wins over the surrounding text.
//  2. Otherwise the trimmed text is decoded as-is; if that fails, the span
//     from the first '{' to the last '}' is tried.
//  3. interest: a non-empty string in "interest", else in the legacy "topic"
//     field. "" and "null" mean no match. Any other type is an error.
//  4. is_signal: booleans as-is, non-zero numbers true, strings through
//     strconv.ParseBool. Absent, null, or anything else is false.
//  5. reasoning: a string, or a list joined into "• item" lines. Absent or
//     null becomes "No reasoning provided". Strings without a leading bullet
//     are split into bullet lines with blank lines dropped.
func ParseResponse(raw string) Decision {
	fields, err := decodeObject(raw)
	if err != nil {
		return failure(ParseErrorPrefix, err)
	}

	interest, err := decodeInterest(fields)
	if err != nil {
		return failure(ParseErrorPrefix, err)
	}

	reasoning, err := decodeReasoning(fields["reasoning"])
	if err != nil {
		return failure(ParseErrorPrefix, err)
	}

	return Decision{
		Interest:  interest,
		IsSignal:  decodeSignal(fields["is_signal"]),
		Reasoning: reasoning,
	}
}

func decodeObject(raw string) (map[string]json.RawMessage, error) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	fields, err := unmarshalObject(text)
	if err == nil {
		return fields, nil
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if inner, innerErr := unmarshalObject(text[start : end+1]); innerErr == nil {
			return inner, nil
		}
	}
	return nil, err
}

func unmarshalObject(text string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if fields == nil {
		return nil, errors.New("response is not a JSON object: null")
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeInterest(fields map[string]json.RawMessage) (*string, error) {
	for _, name := range []string{"interest", "topic"} {
		raw, ok := fields[name]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("field %q must be a string or null", name)
		}
		s = strings.TrimSpace(s)
		switch {
		case s == "":
			continue
		case strings.EqualFold(s, "null"):
			return nil, nil
		}
		return &s, nil
	}
	return nil, nil
}

func decodeSignal(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	}
	return false
}

func decodeReasoning(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return bulletize(noReasoning), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return bulletize(noReasoning), nil
		}
		return bulletize(s), nil
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", errors.New(`field "reasoning" must be a string or a list of strings`)
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				lines = append(lines, "• "+v)
			}
		case float64, bool:
			lines = append(lines, fmt.Sprintf("• %v", v))
		case nil:
		default:
			return "", errors.New(`field "reasoning" list items must be strings`)
		}
	}
	if len(lines) == 0 {
		return bulletize(noReasoning), nil
	}
	return strings.Join(lines, "\n"), nil
}

// bulletize prefixes each non-empty line with "• " unless the text already
// starts with a bullet marker.
func bulletize(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "•") || strings.HasPrefix(s, "-") {
		return s
	}
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "•") && !strings.HasPrefix(line, "-") {
			line = "• " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
