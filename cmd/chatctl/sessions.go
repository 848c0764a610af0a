package main

import (
	"fmt"
	"strconv"

	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

type sessionInfo struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List known sessions and whether their daemon runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		names, err := session.List()
		if err != nil {
			return err
		}
		infos := make([]sessionInfo, 0, len(names))
		for _, name := range names {
			pid, held := lock.Holder(session.LockPath(name))
			infos = append(infos, sessionInfo{Name: name, Running: held, PID: pid})
		}
		if jsonFlag {
			return outputJSON(cmd.OutOrStdout(), infos)
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "SESSION\tDAEMON\tPID")
		for _, s := range infos {
			state, pid := "stopped", "-"
			if s.Running {
				state = "running"
				pid = strconv.Itoa(s.PID)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, state, pid)
		}
		return tw.Flush()
	},
}
