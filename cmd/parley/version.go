package main

import (
	"fmt"

	"github.com/spf13/cobra"

	parleyversion "github.com/parley-ai/parley/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Show client and daemon versions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runVersion,
	}
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	result := map[string]interface{}{
		"client": parleyversion.String(),
	}

	c, err := newAPIClient(cmd)
	if err == nil {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		var daemonInfo struct {
			Version string `json:"version"`
		}
		if err := c.get(ctx, "/api/version", &daemonInfo); err == nil {
			result["daemon"] = daemonInfo.Version
			if warning := parleyversion.CheckVersionMismatch(daemonInfo.Version); warning != "" {
				result["warning"] = warning
			}
		}
	}

	if out.jsonMode {
		return out.Print(result)
	}

	fmt.Printf("Client: %s\n", result["client"])
	if daemonVersion, ok := result["daemon"]; ok {
		fmt.Printf("Daemon: %s\n", daemonVersion)
	} else {
		fmt.Println("Daemon: (not running)")
	}
	if warning, ok := result["warning"]; ok {
		fmt.Println(warning)
	}
	return nil
}
