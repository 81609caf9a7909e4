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

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/viper"

	"github.com/sabouaram/monoproxy/internal/xerr"
)

var validate = validator.New()

// Load reads path (TOML or JSON, sniffed from the first non-whitespace
// byte per spec.md §6), enforces MaxFileSize, decodes it with viper, and
// validates every field. The worker-thread count is resolved against the
// host's logical CPU count when left at zero.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerr.Wrap(xerr.CodeConfigRead, "open config file", err)
	}
	defer f.Close()

	limited := io.LimitReader(f, MaxFileSize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, xerr.Wrap(xerr.CodeConfigRead, "read config file", err)
	}
	if len(raw) > MaxFileSize {
		return nil, xerr.New(xerr.CodeConfigTooLarge, fmt.Sprintf("config file exceeds %d bytes", MaxFileSize))
	}

	return Parse(raw)
}

// Parse decodes an in-memory config document, auto-detecting TOML vs JSON
// from the first non-whitespace byte ('{' means JSON, anything else is
// treated as TOML).
func Parse(raw []byte) (*File, error) {
	v := viper.New()
	v.SetConfigType(sniffFormat(raw))

	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, xerr.Wrap(xerr.CodeConfigDecode, "decode config", err)
	}

	var file File
	if err := v.Unmarshal(&file); err != nil {
		return nil, xerr.Wrap(xerr.CodeConfigDecode, "unmarshal config", err)
	}

	applyDefaults(&file)
	resolveWorkerThreads(&file.Runtime)

	if err := validate.Struct(&file); err != nil {
		return nil, xerr.Wrap(xerr.CodeConfigValidate, "validate config", err)
	}
	if err := validateListenerBind(&file); err != nil {
		return nil, xerr.Wrap(xerr.CodeConfigValidate, "validate config", err)
	}

	return &file, nil
}

func sniffFormat(raw []byte) string {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return "json"
		default:
			return "toml"
		}
	}
	return "toml"
}

// resolveWorkerThreads fills Runtime.WorkerThreads from the host's logical
// CPU count when the config leaves it at zero, the same "one worker per
// core" default spec.md's runtime model assumes.
func resolveWorkerThreads(r *Runtime) {
	if r.WorkerThreads > 0 {
		return
	}
	if counts, err := cpu.Counts(true); err == nil && counts > 0 {
		r.WorkerThreads = counts
		return
	}
	r.WorkerThreads = 1
}
