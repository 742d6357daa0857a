// Package jsonc reads JSON with comments (JSONC).
//
// Comments are removed with a single lexical pass and the result is handed to
// encoding/json. There is no JSON5 support: trailing commas, unquoted keys and
// the like are still rejected by the decoder.
package jsonc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
)

// StripComments removes // and /* */ comments from data. Comment markers inside
// string literals are kept. A line comment keeps its terminating newline so
// line numbers in later parser diagnostics still match the source.
func StripComments(data []byte) []byte {
	result := make([]byte, 0, len(data))
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]

		if c == '"' && !escaped {
			inString = !inString
			result = append(result, c)
			continue
		}

		if inString && c == '\\' {
			escaped = !escaped
			result = append(result, c)
			continue
		}
		escaped = false

		if !inString && c == '/' && i+1 < len(data) {
			switch data[i+1] {
			case '/':
				i = skipLineComment(data, i+2, &result)
				continue
			case '*':
				i = skipBlockComment(data, i+2)
				continue
			}
		}

		result = append(result, c)
	}

	return result
}

// skipLineComment returns the index of the newline ending the comment, or the
// last index of data. The newline is appended to out.
func skipLineComment(data []byte, i int, out *[]byte) int {
	for ; i < len(data); i++ {
		if data[i] == '\n' {
			*out = append(*out, '\n')
			return i
		}
	}
	return len(data) - 1
}

// skipBlockComment returns the index of the '/' closing the comment. Block
// comments do not nest.
func skipBlockComment(data []byte, i int) int {
	end := bytes.Index(data[i:], []byte("*/"))
	if end < 0 {
		return len(data) - 1
	}
	return i + end + 1
}

// Strip is StripComments for strings.
func Strip(s string) string {
	return string(StripComments([]byte(s)))
}

// Validate reports whether data is strict JSON. Comments are not allowed.
func Validate(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &apperr.Error{
			Kind: apperr.Validation,
			Msg:  "invalid JSON: " + describe(data, err),
			Err:  err,
		}
	}
	return nil
}

// ValidateJSONC strips comments from data and checks the remainder is JSON.
func ValidateJSONC(data []byte) error {
	stripped := StripComments(data)
	var v any
	if err := json.Unmarshal(stripped, &v); err != nil {
		return &apperr.Error{
			Kind: apperr.Parse,
			Msg:  "failed to parse JSON: " + describe(stripped, err),
			Err:  err,
		}
	}
	return nil
}

// Unmarshal strips comments from data and decodes it into v.
func Unmarshal(data []byte, v any) error {
	stripped := StripComments(data)
	if err := json.Unmarshal(stripped, v); err != nil {
		return &apperr.Error{
			Kind: apperr.Parse,
			Msg:  "failed to parse JSON: " + describe(stripped, err),
			Err:  err,
		}
	}
	return nil
}

// Parse reads JSONC from r and decodes it into v.
func Parse(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return apperr.Wrap(apperr.IO, "reading JSONC", err)
	}
	return Unmarshal(data, v)
}

// describe appends the line and column of a syntax error to the decoder's
// message. Stripping preserves newlines, so these match the original file.
func describe(data []byte, err error) string {
	var se *json.SyntaxError
	if !errors.As(err, &se) {
		return err.Error()
	}
	line, col := position(data, se.Offset)
	return fmt.Sprintf("%s at line %d, column %d", se.Error(), line, col)
}

// position converts a syntax error offset into a 1-based line and column.
// encoding/json reports the offset just past the offending byte.
func position(data []byte, offset int64) (int, int) {
	end := offset - 1
	if end < 0 {
		end = 0
	}
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	line, col := 1, 1
	for _, c := range data[:end] {
		if c == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
