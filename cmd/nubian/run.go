package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/agent"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

func buildRunCmd() *cobra.Command {
	var serverURL string
	var model string
	var noFollow bool
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Submit a run to a server and follow its stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := submitRun(serverURL, agent.StartRequest{
				Prompt: args[0],
				Model:  model,
			})
			if err != nil {
				return err
			}
			fmt.Printf("run %s started (thread %s)\n", run.ID, run.ThreadID)
			if noFollow {
				return nil
			}
			return followRun(serverURL, run.ID)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server base URL")
	cmd.Flags().StringVar(&model, "model", "", "Override the configured model")
	cmd.Flags().BoolVar(&noFollow, "no-follow", false, "Submit without following the stream")
	return cmd
}

func submitRun(serverURL string, req agent.StartRequest) (*models.Run, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/runs",
		"application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("submit run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("submit run: server returned %d: %s", resp.StatusCode, apiErr.Error)
	}

	var run models.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}

// followRun relays the run's stream to stdout until the server sends the
// terminal control frame.
func followRun(serverURL, runID string) error {
	wsURL := strings.TrimRight(serverURL, "/") + "/api/runs/" + runID + "/stream"
	wsURL = strings.Replace(wsURL, "http", "ws", 1)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("follow run: %w", err)
	}
	defer conn.Close()

	for {
		var frame struct {
			Message *models.Message `json:"message"`
			Control string          `json:"control"`
		}
		conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		if frame.Message != nil {
			printMessage(frame.Message)
		}
		if frame.Control != "" {
			fmt.Printf("--- stream ended (%s) ---\n", frame.Control)
			return nil
		}
	}
}

func printMessage(msg *models.Message) {
	text := msg.Text()
	if text == "" {
		return
	}
	switch msg.Type {
	case models.MessageTypeAssistant:
		fmt.Println(text)
	case models.MessageTypeToolResult:
		fmt.Printf("[tool] %s\n", text)
	case models.MessageTypeStatus:
		fmt.Printf("[status] %s\n", text)
	default:
		fmt.Printf("[%s] %s\n", msg.Type, text)
	}
}
