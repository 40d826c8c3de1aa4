package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/callrelay-systems/callrelay/internal/dlq"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead letter queue",
	Long:  "List and inspect calls the relay could not deliver to the sheet bridge.",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		queue, cleanup, err := openDLQ(cmd, ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		calls, err := queue.List(ctx, limit)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			fmt.Println("Dead letter queue is empty")
			return nil
		}

		for _, failed := range calls {
			id := "(none)"
			did := ""
			if failed.Call != nil {
				id = failed.Call.ID
				did = failed.Call.DID
			}
			fmt.Printf("%s  call=%s did=%s reason=%s error=%q\n",
				failed.Timestamp.Format(time.RFC3339), id, did, failed.Reason, failed.Error)
		}
		return nil
	},
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead letter queue counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		queue, cleanup, err := openDLQ(cmd, ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		for key, value := range queue.Stats(ctx) {
			fmt.Printf("%s: %v\n", key, value)
		}
		return nil
	},
}

// dlqReader is the read side shared by the jetstream and file backends.
type dlqReader interface {
	List(ctx context.Context, limit int) ([]dlq.FailedCall, error)
	Stats(ctx context.Context) map[string]interface{}
}

func openDLQ(cmd *cobra.Command, ctx context.Context) (dlqReader, func(), error) {
	backend, _ := cmd.Flags().GetString("backend")
	switch backend {
	case "jetstream":
		natsURL, _ := cmd.Flags().GetString("nats-url")
		queue, err := dlq.NewJetStreamQueue(ctx, natsURL)
		if err != nil {
			return nil, nil, err
		}
		return queue, queue.Close, nil
	case "file":
		path, _ := cmd.Flags().GetString("path")
		queue, err := dlq.NewFileQueue(path)
		if err != nil {
			return nil, nil, err
		}
		return queue, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown DLQ backend: %s (supported: jetstream, file)", backend)
	}
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqStatsCmd)

	dlqCmd.PersistentFlags().String("backend", "jetstream", "DLQ backend: jetstream or file")
	dlqCmd.PersistentFlags().String("nats-url", "nats://localhost:4222", "NATS server URL")
	dlqCmd.PersistentFlags().String("path", "/var/lib/callrelay/dlq", "file DLQ directory")
	dlqListCmd.Flags().Int("limit", 50, "maximum entries to list")
}
