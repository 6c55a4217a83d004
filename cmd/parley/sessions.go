package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/wire"
)

type sessionEntry struct {
	SessionID  string `json:"sessionId"`
	SiteID     string `json:"siteId"`
	CustomData string `json:"customData,omitempty"`
	State      string `json:"state"`
}

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sessions",
		Short:         "Inspect and control dialogue sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          listDialogueSessions,
	}

	startCmd := &cobra.Command{
		Use:           "start",
		Short:         "Start a dialogue session on a site",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          startDialogueSession,
	}
	startCmd.Flags().String("site", "default", "Target site")
	startCmd.Flags().String("custom-data", "", "Opaque payload carried through the session")

	endCmd := &cobra.Command{
		Use:           "end <session-id>",
		Short:         "End a dialogue session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          endDialogueSession,
	}

	cmd.AddCommand(startCmd, endCmd)
	return cmd
}

func listDialogueSessions(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	var sessions []sessionEntry
	if err := c.get(ctx, "/api/sessions", &sessions); err != nil {
		return out.Error("Failed to list sessions", err)
	}

	if out.jsonMode {
		return out.Print(map[string]interface{}{"sessions": sessions})
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSITE\tSTATE\tCUSTOM DATA")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.SessionID, s.SiteID, s.State, s.CustomData)
	}
	return w.Flush()
}

func startDialogueSession(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	site, _ := cmd.Flags().GetString("site")
	customData, _ := cmd.Flags().GetString("custom-data")

	ctx, cancel := requestContext(cmd)
	defer cancel()
	var started wire.SessionStarted
	payload := map[string]string{"siteId": site, "customData": customData}
	if err := c.postJSON(ctx, "/api/start-session", payload, &started); err != nil {
		return out.Error("Failed to start session", err)
	}

	if out.jsonMode {
		return out.Print(started)
	}
	fmt.Printf("Session %s started on %s\n", started.SessionID, started.SiteID)
	return nil
}

func endDialogueSession(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	var ended wire.SessionEnded
	payload := map[string]string{"sessionId": args[0]}
	if err := c.postJSON(ctx, "/api/end-session", payload, &ended); err != nil {
		return out.Error("Failed to end session", err)
	}

	if out.jsonMode {
		return out.Print(ended)
	}
	fmt.Printf("Session %s ended (%s)\n", ended.SessionID, ended.Termination.Reason)
	return nil
}
