/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
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

// Package duration parses the "_sec" timeout fields of the config schema
// into time.Duration, trimmed from the teacher library's duration package
// down to the one conversion the gateway needs.
package duration

import "time"

// Seconds turns a config-file second count into a time.Duration. A zero or
// negative value means "no timeout applied", matching spec.md's "All
// optional; absent = no timeout applied."
func Seconds(n int) (time.Duration, bool) {
	if n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// OrDefault returns d if present is true, else def.
func OrDefault(d time.Duration, present bool, def time.Duration) time.Duration {
	if present {
		return d
	}
	return def
}
