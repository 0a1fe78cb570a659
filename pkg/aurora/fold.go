// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import "strings"

// FoldResponse folds the concatenated response body according to policy.
//
// String returns the raw text. Array returns the trimmed non-blank lines.
// Object parses the text with a ResponseDecoder; a line the decoder rejects
// is returned as the error together with what was decoded so far.
func FoldResponse(policy ResponseType, body []byte) (any, error) {
	switch policy {
	case ResponseArray:
		return foldArray(string(body)), nil
	case ResponseObject:
		return foldObject(string(body))
	default:
		return string(body), nil
	}
}

func foldArray(text string) []string {
	lines := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func foldObject(text string) (any, error) {
	dec := NewResponseDecoder()
	var firstErr error
	for _, line := range strings.Split(text, "\n") {
		if err := dec.FeedDetectLine(strings.TrimRight(line, "\r")); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	response := dec.Response()
	if response == nil {
		return NewObject(), firstErr
	}
	return response, firstErr
}

// MergeResponse deep-merges next into acc. Objects merge key by key and
// tables append rows; any other combination keeps next.
func MergeResponse(acc, next any) any {
	switch a := acc.(type) {
	case *Object:
		if n, ok := next.(*Object); ok {
			a.Merge(n)
			return a
		}
	case Table:
		if n, ok := next.(Table); ok {
			return append(a, n...)
		}
	}
	return next
}

// foldBLE applies policy to a BLE response: the decoded data-channel
// response and the raw command output.
func foldBLE(policy ResponseType, response any, output []byte) (any, error) {
	switch policy {
	case ResponseObject:
		if response == nil {
			return foldObject(string(output))
		}
		if len(output) > 0 {
			// Output that also decodes cleanly is merged in.
			if extra, err := foldObject(string(output)); err == nil {
				return MergeResponse(response, extra), nil
			}
		}
		return response, nil
	case ResponseArray:
		if len(output) == 0 && response != nil {
			return response, nil
		}
		return foldArray(string(output)), nil
	default:
		if len(output) == 0 && response != nil {
			return response, nil
		}
		return string(output), nil
	}
}
