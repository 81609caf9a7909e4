/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

// Package runtimeshim pins one goroutine to one OS thread, and on Linux
// to one logical CPU, giving each fleet worker the single-threaded,
// single-core runtime the rest of the core assumes. There is no
// equivalent of a userland thread-per-core async runtime in Go; an OS
// thread locked for the goroutine's lifetime plus the Go scheduler's own
// work-stealing avoidance (nothing else is scheduled onto a locked
// thread) is the idiomatic substitute.
package runtimeshim

import "runtime"

// RunPinned locks the calling goroutine to its OS thread, optionally
// pins that thread to logical core, then runs fn. fn is expected to block
// for the lifetime of the worker (Worker.Run's event loop).
func RunPinned(core int, affinity bool, fn func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if affinity {
		// Affinity is an optimization, not a correctness requirement; a
		// failure here still leaves the worker single-threaded, just not
		// guaranteed to stay on one core.
		_ = setAffinity(core)
	}

	fn()
}
