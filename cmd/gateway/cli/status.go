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
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sabouaram/monoproxy/internal/admin"
)

var flagStatusAddr string

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a live table of sites per worker with their address and live/staged state",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := tea.NewProgram(newStatusModel(flagStatusAddr))
			_, err := p.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&flagStatusAddr, "addr", "127.0.0.1:9090", "address of a running gateway's admin listener")
	return cmd
}

// tickMsg drives the periodic re-poll; snapshotMsg/errMsg carry its
// outcome back into the model.
type tickMsg time.Time
type snapshotMsg admin.Snapshot
type errMsg struct{ err error }

// statusModel is a read-only polling view, unlike the teacher's
// promptModel (which collects keyboard input question-by-question): it
// has nothing to ask the operator, only a ticker and an HTTP fetch.
type statusModel struct {
	addr string
	snap admin.Snapshot
	err  error
}

func newStatusModel(addr string) *statusModel {
	return &statusModel{addr: addr}
}

func (m *statusModel) Init() tea.Cmd {
	return tea.Batch(fetchStatus(m.addr), tickEvery())
}

func (m *statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(fetchStatus(m.addr), tickEvery())
	case snapshotMsg:
		m.snap = admin.Snapshot(msg)
		m.err = nil
	case errMsg:
		m.err = msg.err
	}
	return m, nil
}

func (m *statusModel) View() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("gateway status — %s (q to quit)\n\n", m.addr))

	if m.err != nil {
		b.WriteString("error: " + m.err.Error() + "\n")
		return b.String()
	}

	workers := append([]admin.WorkerStatus(nil), m.snap.Workers...)
	sort.Slice(workers, func(i, j int) bool { return workers[i].WorkerID < workers[j].WorkerID })

	b.WriteString(fmt.Sprintf("%-6s %-24s %-22s %-6s %-6s\n", "WORKER", "SITE", "ADDRESS", "LIVE", "STAGED"))
	for _, w := range workers {
		for _, s := range w.Sites {
			b.WriteString(fmt.Sprintf("%-6d %-24s %-22s %-6v %-6v\n", w.WorkerID, s.Name, s.Address, s.Live, s.Staged))
		}
	}
	return b.String()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchStatus(addr string) tea.Cmd {
	return func() tea.Msg {
		client := http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get("http://" + addr + "/status")
		if err != nil {
			return errMsg{err}
		}
		defer resp.Body.Close()

		var snap admin.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return errMsg{err}
		}
		return snapshotMsg(snap)
	}
}
