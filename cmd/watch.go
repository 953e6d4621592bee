package cmd

import (
	"sync"

	"github.com/bnema/wayidle/internal/ipc"
	"github.com/bnema/wayidle/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of the daemon state",
	Long:  `Show the daemon state, refreshed twice a second. Press p to poke and q to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn := &watchConn{path: socketPath()}
		defer conn.close()

		p := tea.NewProgram(ui.NewWatchModel(conn.status, conn.poke))
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchConn keeps one client open across polls and reconnects after a
// failure, so the view survives daemon restarts.
type watchConn struct {
	path string

	mu     sync.Mutex
	client *ipc.Client
}

func (w *watchConn) do(req func(*ipc.Client) (*ipc.StatusInfo, error)) (*ipc.StatusInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client == nil {
		client, err := ipc.NewClient(w.path)
		if err != nil {
			return nil, err
		}
		w.client = client
	}

	status, err := req(w.client)
	if err != nil {
		w.client.Close()
		w.client = nil
	}
	return status, err
}

func (w *watchConn) status() (*ipc.StatusInfo, error) {
	return w.do((*ipc.Client).Status)
}

func (w *watchConn) poke() error {
	_, err := w.do((*ipc.Client).Poke)
	return err
}

func (w *watchConn) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		w.client.Close()
		w.client = nil
	}
}
