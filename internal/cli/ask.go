package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mfadhlan/selia/pkg/chat"
	"github.com/spf13/cobra"
)

var (
	askServer string
	askUser   string
	askChat   string
	askTenant string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a running Selia daemon a question",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askServer, "server", "http://127.0.0.1:8080", "daemon address")
	askCmd.Flags().StringVar(&askUser, "user", "cli", "user id")
	askCmd.Flags().StringVar(&askChat, "chat", "", "chat id, omit to start a new chat")
	askCmd.Flags().StringVar(&askTenant, "tenant", "default", "tenant id")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(chat.Request{
		Question: args[0],
		UserID:   askUser,
		ChatID:   askChat,
		TenantID: askTenant,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 3 * time.Minute}
	resp, err := client.Post(askServer+"/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", askServer, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon error: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	var reply chat.Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}

	cmd.Println(reply.Answer)
	cmd.Printf("\n(chat %s, %d iterations)\n", reply.ChatID, reply.Iterations)

	return nil
}
