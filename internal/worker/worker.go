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

// Package worker runs the single-threaded-per-core command loop: it owns
// one site.Registry, which no other goroutine mutates (the admin status
// endpoint reads it under the registry's lock), and applies Commands to
// it one at a time. Grounded on the teacher library's
// httpserver.PoolServer command surface (Add/Get/Del/MapRun), narrowed to
// the tagged-union Command set the gateway actually needs.
package worker

import (
	"context"

	"github.com/sabouaram/monoproxy/internal/metrics"
	"github.com/sabouaram/monoproxy/internal/service"
	"github.com/sabouaram/monoproxy/internal/site"
	"github.com/sabouaram/monoproxy/internal/slot"
	"github.com/sabouaram/monoproxy/internal/xerr"
	"github.com/sabouaram/monoproxy/internal/xlog"
)

// Kind tags the variant carried by a Command.
type Kind int

const (
	KindPrecommit Kind = iota
	KindUpdate
	KindCommit
	KindPrepareAndCommit
	KindAbort
	KindRemove
)

func (k Kind) String() string {
	switch k {
	case KindPrecommit:
		return "precommit"
	case KindUpdate:
		return "update"
	case KindCommit:
		return "commit"
	case KindPrepareAndCommit:
		return "prepare_and_commit"
	case KindAbort:
		return "abort"
	case KindRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Command is the cheaply clonable tagged union the fleet manager fans out
// to every worker. Only the fields relevant to Kind are populated.
type Command struct {
	Kind            Kind
	Name            string
	ServiceFactory  service.Factory
	ListenerFactory service.ListenerFactory
}

// Reply is sent back on a command's one-shot reply channel.
type Reply struct {
	Err error
}

// job pairs a Command with the channel its Reply is delivered on.
type job struct {
	cmd   Command
	reply chan<- Reply
}

// Worker owns one site.Registry and drains jobs from its command channel
// until ctx is cancelled (Fleet.Shutdown) or the channel is closed; the
// fleet never closes it.
type Worker struct {
	ID       int
	Registry *site.Registry
	log      xlog.Logger

	jobs chan job
	ctx  context.Context
}

// New constructs a worker bound to ctx (cancelled on fleet shutdown) with
// a command queue depth of 128, matching the fleet's bounded-channel
// contract.
func New(ctx context.Context, id int, log xlog.Logger) *Worker {
	return &Worker{
		ID:       id,
		Registry: site.NewRegistry(),
		log:      log.WithField("worker", id),
		jobs:     make(chan job, 128),
		ctx:      ctx,
	}
}

// Send enqueues cmd and returns the reply channel the caller should
// receive from exactly once. Returns false if the worker's context is
// cancelled while its queue is full, meaning the caller should
// treat it as a dispatch failure for this worker only.
func (w *Worker) Send(cmd Command) (<-chan Reply, bool) {
	reply := make(chan Reply, 1)
	select {
	case w.jobs <- job{cmd: cmd, reply: reply}:
		return reply, true
	case <-w.ctx.Done():
		return reply, false
	}
}

// Run is the worker's event loop. It must run on the goroutine pinned to
// this worker's core (see internal/runtimeshim).
func (w *Worker) Run() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case j, ok := <-w.jobs:
			if !ok {
				return
			}
			j.reply <- Reply{Err: w.apply(j.cmd)}
		}
	}
}

func (w *Worker) apply(cmd Command) error {
	timer := metrics.NewTimer()
	defer timer.ObserveVec(metrics.CommandLatency, cmd.Kind.String())

	switch cmd.Kind {
	case KindPrecommit:
		return w.precommit(cmd)
	case KindUpdate:
		return w.update(cmd)
	case KindCommit:
		return w.commit(cmd)
	case KindPrepareAndCommit:
		return w.prepareAndCommit(cmd)
	case KindAbort:
		return w.abort(cmd)
	case KindRemove:
		return w.remove(cmd)
	default:
		return xerr.New(xerr.CodeInternal, "unknown command kind")
	}
}

func (w *Worker) precommit(cmd Command) error {
	e, exists := w.Registry.Get(cmd.Name)

	var old service.Service
	if exists && e.Committed() {
		old = *e.Slot.Load()
	}

	svc, err := cmd.ServiceFactory.Build(old)
	if err != nil {
		return xerr.Wrap(xerr.CodeBuildService, "precommit", err)
	}

	if !exists {
		e = &site.Entry{Name: cmd.Name, Slot: slot.New[service.Service](nil)}
		w.Registry.Put(e)
	}
	e.Staged = svc
	return nil
}

func (w *Worker) update(cmd Command) error {
	e, exists := w.Registry.Get(cmd.Name)
	if !exists {
		return xerr.New(xerr.CodeSiteNotExist, cmd.Name)
	}
	if !e.Committed() {
		return xerr.New(xerr.CodeCommittedNotExist, cmd.Name)
	}
	if !e.StagedPresent() {
		return xerr.New(xerr.CodeStagedNotExist, cmd.Name)
	}
	e.Slot.Store(&e.Staged)
	e.Staged = nil
	return nil
}

func (w *Worker) commit(cmd Command) error {
	e, exists := w.Registry.Get(cmd.Name)
	if !exists || !e.StagedPresent() {
		return xerr.New(xerr.CodeStagedNotExist, cmd.Name)
	}

	ln, err := cmd.ListenerFactory.Listen()
	if err != nil {
		return xerr.Wrap(xerr.CodeBuildListener, "commit", err)
	}

	svc := e.Staged
	e.Staged = nil

	entry := site.NewEntry(w.ctx, cmd.Name, ln, svc, w.log)
	w.Registry.Put(entry)
	return nil
}

func (w *Worker) prepareAndCommit(cmd Command) error {
	svc, err := cmd.ServiceFactory.Build(nil)
	if err != nil {
		return xerr.Wrap(xerr.CodeBuildService, "prepareAndCommit", err)
	}

	ln, err := cmd.ListenerFactory.Listen()
	if err != nil {
		return xerr.Wrap(xerr.CodeBuildListener, "prepareAndCommit", err)
	}

	if old, exists := w.Registry.Get(cmd.Name); exists {
		old.Stop()
		w.Registry.Delete(cmd.Name)
	}

	entry := site.NewEntry(w.ctx, cmd.Name, ln, svc, w.log)
	w.Registry.Put(entry)
	return nil
}

func (w *Worker) abort(cmd Command) error {
	e, exists := w.Registry.Get(cmd.Name)
	if !exists {
		return xerr.New(xerr.CodeSiteNotExist, cmd.Name)
	}
	e.Staged = nil
	return nil
}

func (w *Worker) remove(cmd Command) error {
	e, exists := w.Registry.Get(cmd.Name)
	if !exists {
		return xerr.New(xerr.CodeSiteNotExist, cmd.Name)
	}
	e.Stop()
	w.Registry.Delete(cmd.Name)
	return nil
}
