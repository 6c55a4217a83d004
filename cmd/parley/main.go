package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	parleyversion "github.com/parley-ai/parley/internal/version"
)

const defaultServerURL = "http://127.0.0.1:12101"

var rootCmd *cobra.Command

// OutputFormatter handles output in JSON or human-readable format.
type OutputFormatter struct {
	jsonMode bool
}

func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &OutputFormatter{jsonMode: jsonMode}
}

// Print outputs data in the appropriate format.
func (f *OutputFormatter) Print(data interface{}) error {
	if f.jsonMode {
		jsonBytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(jsonBytes))
		return nil
	}
	switch v := data.(type) {
	case string:
		fmt.Println(v)
	default:
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	}
	return nil
}

// Error outputs an error message and returns a wrapped error for cobra.
func (f *OutputFormatter) Error(message string, err error) error {
	if f.jsonMode {
		output := map[string]interface{}{"success": false, "error": message}
		if err != nil {
			output["details"] = err.Error()
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(os.Stderr, string(jsonBytes))
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", message, err)
	} else {
		fmt.Fprintln(os.Stderr, message)
	}
	if err == nil {
		return fmt.Errorf("%s", message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

func init() {
	rootCmd = &cobra.Command{
		Use:   "parley",
		Short: "Parley - voice assistant dialogue platform client",
		Long: `Parley talks to a running parleyd daemon over its HTTP API:
speak text, recognize intents, transcribe audio, manage dialogue sessions
and edit the recognition profile.`,
	}
	rootCmd.Version = parleyversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("server", defaultServerURL, "Base URL of the parleyd HTTP API")
}

func main() {
	rootCmd.AddCommand(
		newSayCommand(),
		newAskCommand(),
		newTranscribeCommand(),
		newSessionsCommand(),
		newSlotsCommand(),
		newSentencesCommand(),
		newTrainCommand(),
		newListenCommand(),
		newVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
