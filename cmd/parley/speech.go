package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/wire"
)

func newSayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "say [text]",
		Short:         "Synthesize text and play it on a site",
		Args:          cobra.MinimumNArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSay,
	}
	cmd.Flags().String("site", "", "Target site (default: daemon base site)")
	cmd.Flags().String("lang", "", "Language hint for synthesis")
	cmd.Flags().Bool("repeat", false, "Replay the last utterance instead of synthesizing")
	cmd.Flags().String("output", "", "Write the synthesized WAV to a file")
	return cmd
}

func runSay(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	repeat, _ := cmd.Flags().GetBool("repeat")

	text := strings.Join(args, " ")
	if text == "" && !repeat {
		return out.Error("Nothing to say", fmt.Errorf("pass text or --repeat"))
	}

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	params := url.Values{}
	if site, _ := cmd.Flags().GetString("site"); site != "" {
		params.Set("siteId", site)
	}
	if lang, _ := cmd.Flags().GetString("lang"); lang != "" {
		params.Set("lang", lang)
	}
	if repeat {
		params.Set("repeat", "true")
	}

	path := "/api/text-to-speech"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	audio, err := c.postRaw(ctx, path, "text/plain", []byte(text))
	if err != nil {
		return out.Error("Speech request failed", err)
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := os.WriteFile(output, audio, 0o644); err != nil {
			return out.Error("Failed to write audio", err)
		}
		return out.Print(fmt.Sprintf("Wrote %d bytes to %s", len(audio), output))
	}
	return out.Print(fmt.Sprintf("Spoken (%d bytes of audio)", len(audio)))
}

func newAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ask <text>",
		Short:         "Recognize an intent from text",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runAsk,
	}
	cmd.Flags().String("site", "", "Target site (default: daemon base site)")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	path := "/api/text-to-intent"
	if site, _ := cmd.Flags().GetString("site"); site != "" {
		path += "?siteId=" + url.QueryEscape(site)
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	body, err := c.postRaw(ctx, path, "text/plain", []byte(strings.Join(args, " ")))
	if err != nil {
		return out.Error("Recognition failed", err)
	}

	if out.jsonMode {
		fmt.Println(string(body))
		return nil
	}

	var intent wire.Intent
	if err := json.Unmarshal(body, &intent); err != nil || intent.Intent.IntentName == "" {
		fmt.Println("Not recognized")
		return nil
	}
	fmt.Printf("Intent: %s (confidence %.2f)\n", intent.Intent.IntentName, intent.Intent.ConfidenceScore)
	for _, slot := range intent.Slots {
		fmt.Printf("  %s = %v\n", slot.SlotName, slot.Value.Value)
	}
	return nil
}

func newTranscribeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "transcribe <file.wav>",
		Short:         "Transcribe a WAV file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTranscribe,
	}
	cmd.Flags().String("site", "", "Target site (default: daemon base site)")
	return cmd
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	audio, err := os.ReadFile(args[0])
	if err != nil {
		return out.Error("Failed to read audio file", err)
	}

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	path := "/api/speech-to-text"
	if site, _ := cmd.Flags().GetString("site"); site != "" {
		path += "?siteId=" + url.QueryEscape(site)
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	body, err := c.postRaw(ctx, path, "audio/wav", audio)
	if err != nil {
		return out.Error("Transcription failed", err)
	}

	if out.jsonMode {
		fmt.Println(string(body))
		return nil
	}
	var captured wire.TextCaptured
	if err := json.Unmarshal(body, &captured); err != nil {
		return out.Error("Invalid response from daemon", err)
	}
	fmt.Printf("%s (likelihood %.2f)\n", captured.Text, captured.Likelihood)
	return nil
}
