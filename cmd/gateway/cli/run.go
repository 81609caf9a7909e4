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

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sabouaram/monoproxy/internal/admin"
	"github.com/sabouaram/monoproxy/internal/config"
	"github.com/sabouaram/monoproxy/internal/fleet"
	"github.com/sabouaram/monoproxy/internal/service"
	"github.com/sabouaram/monoproxy/internal/worker"
)

var (
	flagAdminAddr   string
	flagCPUAffinity bool
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a config file and serve its sites until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagConfig == "" {
				return fmt.Errorf("run: --config is required")
			}
			return runGateway(flagConfig, flagAdminAddr, flagCPUAffinity)
		},
	}

	cmd.Flags().StringVar(&flagAdminAddr, "admin", "127.0.0.1:9090", "address the metrics/status listener binds to")
	cmd.Flags().BoolVar(&flagCPUAffinity, "cpu-affinity", true, "pin each worker thread to one logical CPU (Linux only)")

	return cmd
}

func runGateway(path, adminAddr string, cpuAffinity bool) error {
	file, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := fleet.New(log)
	f.SpawnWorkers(ctx, file.Runtime.WorkerThreads, cpuAffinity)
	log.WithField("workers", file.Runtime.WorkerThreads).Info("fleet started")

	for _, s := range file.Sites {
		if err := dispatchAdd(f, s); err != nil {
			log.WithError(err).WithField("site", s.Name).Error("failed to bring up site")
		}
	}

	adminSrv := admin.NewServer(adminAddr, f)
	go func() {
		if err := adminSrv.Serve(ctx); err != nil {
			log.WithError(err).Warn("admin listener stopped")
		}
	}()

	watcher, err := config.NewWatcher(path)
	if err != nil {
		return err
	}
	watchStop := make(chan struct{})
	go watcher.Run(watchStop)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			log.Info("shutdown signal received, draining sites")
			close(watchStop)
			for _, s := range file.Sites {
				f.Dispatch(worker.Command{Kind: worker.KindRemove, Name: s.Name})
			}
			f.Shutdown()
			return nil

		case patches := <-watcher.Patches:
			applyPatches(f, patches)

		case err := <-watcher.Errors:
			log.WithError(err).Warn("config watch error")
		}
	}
}

func applyPatches(f *fleet.Fleet, patches []config.Patch) {
	for _, p := range patches {
		switch p.Kind {
		case config.PatchAdd:
			if err := dispatchAdd(f, p.Site); err != nil {
				log.WithError(err).WithField("site", p.Name).Error("failed to add site")
			}
		case config.PatchUpdate:
			if err := dispatchUpdate(f, p.Site); err != nil {
				log.WithError(err).WithField("site", p.Name).Error("failed to update site")
			}
		case config.PatchRemove:
			res := f.Dispatch(worker.Command{Kind: worker.KindRemove, Name: p.Name})
			if err := res.Err(); err != nil {
				log.WithError(err).WithField("site", p.Name).Error("failed to remove site")
			}
		}
		log.WithField("site", p.Name).WithField("kind", patchKindString(p.Kind)).Info("applied config patch")
	}
}

// dispatchAdd brings up a brand-new site in one shot: build-and-commit
// against no predecessor, per worker.KindPrepareAndCommit.
func dispatchAdd(f *fleet.Fleet, s config.Site) error {
	cmd := worker.Command{
		Kind:            worker.KindPrepareAndCommit,
		Name:            s.Name,
		ServiceFactory:  service.BuildFactory(s, log),
		ListenerFactory: service.ListenerFor(s),
	}
	return f.Dispatch(cmd).Err()
}

// dispatchUpdate hot-swaps an existing site's service in place: stage the
// new build (inheriting pool state from the live instance), then swap the
// slot. The listener itself is never rebuilt.
func dispatchUpdate(f *fleet.Fleet, s config.Site) error {
	pre := worker.Command{
		Kind:           worker.KindPrecommit,
		Name:           s.Name,
		ServiceFactory: service.BuildFactory(s, log),
	}
	if err := f.Dispatch(pre).Err(); err != nil {
		return err
	}
	return f.Dispatch(worker.Command{Kind: worker.KindUpdate, Name: s.Name}).Err()
}

func patchKindString(k config.PatchKind) string {
	switch k {
	case config.PatchAdd:
		return "add"
	case config.PatchUpdate:
		return "update"
	case config.PatchRemove:
		return "remove"
	default:
		return "unknown"
	}
}
