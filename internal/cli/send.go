package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"github.com/callrelay-systems/callrelay/internal/models"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a test call event",
	Long:  "Send a call event to the relay webhook, either from --json or generated from flags.",
	Example: `  relayctl send --did "+1 (555) 123-4567" --campaign ACA-National
  relayctl send --json '{"call_id":"c1","did":"5551234567"}'
  relayctl send --random`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := activeProfile(cmd)
		if err != nil {
			return err
		}

		payload, err := buildPayload(cmd)
		if err != nil {
			return err
		}

		headers := map[string]string{}
		if profile.WebhookSecret != "" {
			headers["X-Webhook-Secret"] = profile.WebhookSecret
		}

		var resp models.WebhookResponse
		status, err := postJSON(profile.RelayURL+"/webhook/calls", headers, payload, &resp)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("relay answered %d", status)
		}

		fmt.Printf("Call accepted: %s\n", resp.Status)
		return nil
	},
}

func buildPayload(cmd *cobra.Command) (interface{}, error) {
	if jsonData, _ := cmd.Flags().GetString("json"); jsonData != "" {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(jsonData), &payload); err != nil {
			return nil, fmt.Errorf("invalid --json payload: %w", err)
		}
		return payload, nil
	}

	callID, _ := cmd.Flags().GetString("call-id")
	did, _ := cmd.Flags().GetString("did")
	campaign, _ := cmd.Flags().GetString("campaign")
	publisher, _ := cmd.Flags().GetString("publisher")
	random, _ := cmd.Flags().GetBool("random")

	if random {
		if did == "" {
			did = gofakeit.Numerify("1##########")
		}
		if callID == "" {
			callID = gofakeit.UUID()
		}
		if publisher == "" {
			publisher = gofakeit.Company()
		}
	}
	if did == "" {
		return nil, fmt.Errorf("either --did, --json, or --random is required")
	}

	return map[string]interface{}{
		"call_id":       callID,
		"callStartUtc":  time.Now().UTC().Format(time.RFC3339),
		"did":           did,
		"campaignName":  campaign,
		"publisherName": publisher,
	}, nil
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("call-id", "", "call ID (omit to synthesize)")
	sendCmd.Flags().String("did", "", "destination number")
	sendCmd.Flags().String("campaign", "", "campaign name")
	sendCmd.Flags().String("publisher", "", "publisher name")
	sendCmd.Flags().String("json", "", "raw JSON payload")
	sendCmd.Flags().Bool("random", false, "fill missing fields with generated data")
}
