package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/server"
)

var eventStreams = map[string]string{
	"text":   "/api/events/text",
	"intent": "/api/events/intent",
	"wake":   "/api/events/wake",
}

func newListenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "listen [text|intent|wake]",
		Short:         "Stream platform events to stdout",
		Long:          "Stream recognized text, intents or wake events from the daemon.\nWith --topic, stream raw bus traffic matching an MQTT topic filter instead.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runListen,
	}
	cmd.Flags().String("topic", "", "Raw topic filter (e.g. parley/#) instead of a named stream")
	return cmd
}

func runListen(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	c, err := newAPIClient(cmd)
	if err != nil {
		return out.Error("Invalid server", err)
	}

	topic, _ := cmd.Flags().GetString("topic")
	var path string
	switch {
	case topic != "":
		path = "/api/mqtt/" + topic
	case len(args) == 1:
		stream, ok := eventStreams[args[0]]
		if !ok {
			return out.Error(fmt.Sprintf("Unknown stream %q", args[0]), nil)
		}
		path = stream
	default:
		path = eventStreams["intent"]
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL(path), nil)
	if err != nil {
		return out.Error("Failed to connect event stream", err)
	}
	defer conn.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		conn.Close()
	}()

	if !out.jsonMode {
		fmt.Fprintf(os.Stderr, "Listening on %s (Ctrl+C to stop)\n", path)
	}

	for {
		var frame server.EventFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return nil
		}
		if out.jsonMode {
			encoded, _ := json.Marshal(frame)
			fmt.Println(string(encoded))
			continue
		}
		if frame.Encoding == "base64" {
			fmt.Printf("%s  <%d bytes binary>\n", frame.Topic, len(frame.Data))
			continue
		}
		fmt.Printf("%s  %s\n", frame.Topic, string(frame.Payload))
	}
}
