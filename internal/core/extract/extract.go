// Package extract pulls a single JSON value out of free-form LLM output.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxReasoningLen bounds the reasoning text attached to thinking logs.
const MaxReasoningLen = 500

const maxErrorText = 300

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\\r?\\n?(.*?)```")

// Error reports LLM output that could not be turned into structured data.
type Error struct {
	Reason string
	Text   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v (text: %q)", e.Reason, e.Err, e.Text)
	}
	return fmt.Sprintf("extraction failed: %s (text: %q)", e.Reason, e.Text)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(reason, text string, err error) *Error {
	return &Error{Reason: reason, Text: Truncate(text, maxErrorText), Err: err}
}

type Result struct {
	// Reasoning is the text found inside <think> spans.
	Reasoning string
	JSON      json.RawMessage
}

// StripReasoning removes every <think>...</think> span from text and returns
// the remainder along with the removed reasoning. A closing tag without an
// opening one marks everything before it as reasoning; an opening tag without
// a closing one marks everything after it.
func StripReasoning(text string) (clean, reasoning string) {
	const openTag, closeTag = "<think>", "</think>"
	var kept, thoughts []string

	rest := text
	if c := strings.Index(rest, closeTag); c >= 0 {
		if o := strings.Index(rest, openTag); o < 0 || o > c {
			thoughts = append(thoughts, strings.TrimSpace(rest[:c]))
			rest = rest[c+len(closeTag):]
		}
	}
	for {
		o := strings.Index(rest, openTag)
		if o < 0 {
			kept = append(kept, rest)
			break
		}
		kept = append(kept, rest[:o])
		rest = rest[o+len(openTag):]
		c := strings.Index(rest, closeTag)
		if c < 0 {
			thoughts = append(thoughts, strings.TrimSpace(rest))
			break
		}
		thoughts = append(thoughts, strings.TrimSpace(rest[:c]))
		rest = rest[c+len(closeTag):]
	}

	var nonEmpty []string
	for _, t := range thoughts {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "")), strings.Join(nonEmpty, "\n")
}

// Extract finds and validates the JSON value in text.
func Extract(text string) (*Result, error) {
	clean, reasoning := StripReasoning(text)
	res := &Result{Reasoning: reasoning}

	candidate := clean
	if m := fencePattern.FindStringSubmatch(clean); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	span, err := isolate(candidate)
	if err != nil {
		return res, err
	}
	if !json.Valid([]byte(span)) {
		var probe interface{}
		perr := json.Unmarshal([]byte(span), &probe)
		return res, newError("invalid JSON", span, perr)
	}
	res.JSON = json.RawMessage(span)
	return res, nil
}

// Decode extracts the JSON value from text and unmarshals it into T.
func Decode[T any](text string) (T, string, error) {
	var zero T
	res, err := Extract(text)
	if err != nil {
		return zero, res.Reasoning, err
	}
	var out T
	if err := json.Unmarshal(res.JSON, &out); err != nil {
		return zero, res.Reasoning, newError("unexpected shape", string(res.JSON), err)
	}
	return out, res.Reasoning, nil
}

// isolate returns the first balanced {...} or [...] span in s. Brackets inside
// string literals are ignored.
func isolate(s string) (string, error) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", newError("no JSON object or array found", s, nil)
	}

	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != ch {
				return "", newError(fmt.Sprintf("mismatched %q at offset %d", ch, i), s[start:], nil)
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", newError("unbalanced brackets", s[start:], nil)
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
