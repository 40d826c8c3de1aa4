package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/callrelay-systems/callrelay/internal/models"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check relay health",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := activeProfile(cmd)
		if err != nil {
			return err
		}

		var resp models.HealthResponse
		if err := getJSON(profile.RelayURL+"/healthz", &resp); err != nil {
			return err
		}

		status := "healthy"
		if !resp.OK {
			status = "unhealthy"
		}
		fmt.Printf("Status:        %s\n", status)
		fmt.Printf("Realtime DIDs: %d\n", resp.RealtimeDIDs)
		fmt.Printf("Queue depth:   %d\n", resp.QueueDepth)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show relay ingestion counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := activeProfile(cmd)
		if err != nil {
			return err
		}

		var resp models.StatsResponse
		if err := getJSON(profile.RelayURL+"/debug/stats", &resp); err != nil {
			return err
		}

		fmt.Printf("Processed calls: %d\n", resp.ProcessedCalls)
		fmt.Printf("Queue:           %d / %d\n", resp.QueueDepth, resp.QueueCapacity)
		fmt.Printf("Realtime DIDs:   %d\n", resp.RealtimeDIDs)
		fmt.Printf("Received:        %d\n", resp.TotalReceived)
		fmt.Printf("Queued:          %d\n", resp.Queued)
		fmt.Printf("Duplicates:      %d\n", resp.Duplicates)
		fmt.Printf("Invalid:         %d\n", resp.Invalid)
		fmt.Printf("Overloads:       %d\n", resp.Overloads)
		if len(resp.CampaignFiltering) > 0 {
			fmt.Printf("Campaigns:       %v\n", resp.CampaignFiltering)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statsCmd)
}
