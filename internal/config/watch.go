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
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// PatchKind classifies one site-level difference between two successive
// config generations, the vocabulary the worker's Command tagged union is
// built from (spec.md §4.1/§4.2).
type PatchKind int

const (
	PatchAdd PatchKind = iota
	PatchUpdate
	PatchRemove
)

// Patch is one site that changed between the previous and current config
// generation.
type Patch struct {
	Kind PatchKind
	Name string
	Site Site // zero value when Kind == PatchRemove
}

// Diff compares two loaded configs by site name and returns the ordered
// set of patches to apply. Comparison is by value equality of the Site
// struct: any field change produces a PatchUpdate.
func Diff(previous, current *File) []Patch {
	prevByName := make(map[string]Site, len(previous.Sites))
	for _, s := range previous.Sites {
		prevByName[s.Name] = s
	}

	curByName := make(map[string]Site, len(current.Sites))
	var patches []Patch

	for _, s := range current.Sites {
		curByName[s.Name] = s
		old, existed := prevByName[s.Name]
		switch {
		case !existed:
			patches = append(patches, Patch{Kind: PatchAdd, Name: s.Name, Site: s})
		case !sitesEqual(old, s):
			patches = append(patches, Patch{Kind: PatchUpdate, Name: s.Name, Site: s})
		}
	}

	for name := range prevByName {
		if _, stillPresent := curByName[name]; !stillPresent {
			patches = append(patches, Patch{Kind: PatchRemove, Name: name})
		}
	}

	return patches
}

func sitesEqual(a, b Site) bool {
	if a.Listener.Type != b.Listener.Type ||
		a.Listener.Address != b.Listener.Address ||
		a.Listener.UnixPath != b.Listener.UnixPath ||
		a.Listener.Protocol != b.Listener.Protocol ||
		a.Listener.ProxyProto != b.Listener.ProxyProto ||
		a.Listener.TLS != b.Listener.TLS ||
		a.Listener.PoolCapacity != b.Listener.PoolCapacity ||
		a.Timeouts != b.Timeouts ||
		len(a.Listener.Routes) != len(b.Listener.Routes) {
		return false
	}
	for i := range a.Listener.Routes {
		ra, rb := a.Listener.Routes[i], b.Listener.Routes[i]
		if ra.Prefix != rb.Prefix || ra.Policy != rb.Policy || len(ra.Upstreams) != len(rb.Upstreams) {
			return false
		}
		if (ra.Rewrite == nil) != (rb.Rewrite == nil) || (ra.Rewrite != nil && *ra.Rewrite != *rb.Rewrite) {
			return false
		}
		for j := range ra.Upstreams {
			if ra.Upstreams[j] != rb.Upstreams[j] {
				return false
			}
		}
	}
	return true
}

// Watcher reloads path whenever fsnotify reports it changed, emitting the
// patch set relative to the previously loaded generation on Patches.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	current *File

	Patches chan []Patch
	Errors  chan error
}

// NewWatcher loads path once to establish the baseline generation, then
// arms an fsnotify watch on it.
func NewWatcher(path string) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	return &Watcher{
		path:    path,
		fsw:     fsw,
		current: initial,
		Patches: make(chan []Patch, 1),
		Errors:  make(chan error, 1),
	}, nil
}

// Current returns the most recently loaded generation.
func (w *Watcher) Current() *File {
	return w.current
}

// Run blocks, reloading and diffing on every write/create event until
// stop is closed.
func (w *Watcher) Run(stop <-chan struct{}) {
	defer w.fsw.Close()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			next, err := Load(w.path)
			if err != nil {
				select {
				case w.Errors <- err:
				default:
				}
				continue
			}
			patches := Diff(w.current, next)
			w.current = next
			if len(patches) == 0 {
				continue
			}
			select {
			case w.Patches <- patches:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
			}
		}
	}
}
