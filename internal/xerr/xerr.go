/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package xerr provides the error type shared by every layer of the gateway:
// a small numeric code, a human message, and an optional parent chain. It
// plays the role of the teacher library's "errors" package, trimmed to the
// codes the gateway core actually raises.
package xerr

import (
	"fmt"
	"strings"
)

// Code identifies a class of failure. Ranges are reserved per package, the
// same way the teacher library reserves a MinPkgXxx base per component.
type Code uint16

const (
	_ Code = iota

	// Site lifecycle (worker / fleet command errors), base 100.
	CodeSiteNotExist Code = 100 + iota
	CodeStagedNotExist
	CodeCommittedNotExist
	CodeBuildService
	CodeBuildListener
	CodeRouteEmptyUpstreams

	// Request-boundary errors, base 400 (mirrors the HTTP status they cause).
	CodeRequestURI Code = 400
	CodeRouteMiss  Code = 404
	CodeInternal   Code = 500
	CodeUpstream   Code = 502

	// Config loading, base 600.
	CodeConfigRead Code = 600 + iota
	CodeConfigDecode
	CodeConfigValidate
	CodeConfigTooLarge
)

// Error is a code-carrying error with an optional parent cause.
type Error struct {
	code   Code
	msg    string
	parent error
}

func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func Wrap(code Code, msg string, parent error) *Error {
	return &Error{code: code, msg: msg, parent: parent}
}

func (e *Error) Code() Code {
	if e == nil {
		return 0
	}
	return e.code
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", e.code, e.msg)
	if e.parent != nil {
		fmt.Fprintf(&b, ": %s", e.parent.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.parent
}

// Is reports whether target carries the same code, so callers can branch on
// `errors.Is(err, xerr.New(xerr.CodeSiteNotExist, ""))`-style sentinels.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	o, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == o.code
}

// HTTPStatus maps a boundary error code to the status the spec assigns it.
// Codes with no explicit mapping fall back to 500.
func HTTPStatus(err error) int {
	e, ok := err.(*Error)
	if !ok {
		return 500
	}
	switch e.code {
	case CodeRequestURI:
		return 400
	case CodeRouteMiss:
		return 404
	case CodeUpstream:
		return 502
	case CodeInternal:
		return 500
	default:
		return 500
	}
}
