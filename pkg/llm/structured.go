package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a surrounding markdown code fence from model output.
func StripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 && !strings.ContainsAny(content[:nl], "{[") {
		content = content[nl+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// ExtractJSONObject returns the first balanced {...} object in s, or "".
func ExtractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// DecodeJSON decodes model output into target, tolerating code fences and
// prose around the object.
func DecodeJSON(content string, target interface{}) error {
	cleaned := StripFences(content)
	err := json.Unmarshal([]byte(cleaned), target)
	if err == nil {
		return nil
	}
	if obj := ExtractJSONObject(cleaned); obj != "" && obj != cleaned {
		if err2 := json.Unmarshal([]byte(obj), target); err2 == nil {
			return nil
		}
	}
	return &Error{
		Code:    ErrParseFailure,
		Message: fmt.Sprintf("parse JSON: %v", err),
		Details: content,
	}
}

// completeStructured runs the JSON retry loop shared by providers.
func completeStructured(ctx context.Context, p Provider, maxRetries int, req CompletionRequest, target interface{}) error {
	req.JSONMode = true
	if !strings.Contains(strings.ToLower(req.Prompt), "json") {
		req.Prompt += "\n\nRespond with valid JSON only."
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return err
			}
			if code, ok := CodeOf(err); ok && code != ErrUnavailable {
				return err
			}
			continue
		}

		if resp.FinishReason == "length" {
			return &Error{
				Code:    ErrTokenLimit,
				Message: fmt.Sprintf("response truncated: hit max_tokens limit (%d completion tokens used)", resp.TokensUsed.Completion),
				Details: resp.Content,
			}
		}

		if err := DecodeJSON(resp.Content, target); err != nil {
			lastErr = err
			if attempt < maxRetries {
				req.Prompt = fmt.Sprintf("%s\n\nIMPORTANT: Respond with valid JSON only. No markdown, no explanations.", req.Prompt)
			}
			continue
		}
		return nil
	}
	return lastErr
}
