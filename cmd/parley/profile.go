package main

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newSlotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "slots",
		Short:         "Manage slot vocabularies in the recognition profile",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listNamedValues(cmd, "/api/slots")
		},
	}

	setCmd := &cobra.Command{
		Use:           "set <name> <value>...",
		Short:         "Replace a slot's vocabulary",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return replaceNamedValues(cmd, "/api/slots/", args[0], args[1:])
		},
	}

	deleteCmd := &cobra.Command{
		Use:           "delete <name>",
		Short:         "Delete a slot",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteNamed(cmd, "/api/slots/", args[0])
		},
	}

	cmd.AddCommand(setCmd, deleteCmd)
	return cmd
}

func newSentencesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sentences",
		Short:         "Manage intent sentence templates in the recognition profile",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listNamedValues(cmd, "/api/sentences")
		},
	}

	setCmd := &cobra.Command{
		Use:           "set <intent> <template>...",
		Short:         "Replace an intent's sentence templates",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return replaceNamedValues(cmd, "/api/sentences/", args[0], args[1:])
		},
	}

	deleteCmd := &cobra.Command{
		Use:           "delete <intent>",
		Short:         "Delete an intent's sentence templates",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteNamed(cmd, "/api/sentences/", args[0])
		},
	}

	cmd.AddCommand(setCmd, deleteCmd)
	return cmd
}

func newTrainCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "train",
		Short:         "Recompile the recognition profile",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTrain,
	}
}

func listNamedValues(cmd *cobra.Command, path string) error {
	out := newOutputFormatter(cmd)

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	var entries map[string][]string
	if err := c.get(ctx, path, &entries); err != nil {
		return out.Error("Failed to fetch profile", err)
	}

	if out.jsonMode {
		return out.Print(entries)
	}
	if len(entries) == 0 {
		fmt.Println("(empty)")
		return nil
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s:\n", name)
		for _, value := range entries[name] {
			fmt.Printf("  %s\n", value)
		}
	}
	return nil
}

func replaceNamedValues(cmd *cobra.Command, prefix, name string, values []string) error {
	out := newOutputFormatter(cmd)

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	if err := c.postJSON(ctx, prefix+url.PathEscape(name), values, nil); err != nil {
		return out.Error("Failed to update profile", err)
	}
	return out.Print(fmt.Sprintf("%s updated (%d entries)", name, len(values)))
}

func deleteNamed(cmd *cobra.Command, prefix, name string) error {
	out := newOutputFormatter(cmd)

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	if err := c.delete(ctx, prefix+url.PathEscape(name)); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return out.Error(fmt.Sprintf("%s not found", name), nil)
		}
		return out.Error("Failed to delete", err)
	}
	return out.Print(fmt.Sprintf("%s deleted", name))
}

func runTrain(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	var result struct {
		Status    string `json:"status"`
		Templates int    `json:"templates"`
	}
	if err := c.postJSON(ctx, "/api/train", nil, &result); err != nil {
		return out.Error("Training failed", err)
	}

	if out.jsonMode {
		return out.Print(result)
	}
	fmt.Printf("Trained %d templates\n", result.Templates)
	return nil
}
