package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewPublishCmd создаёт команду публикации задачи.
func NewPublishCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var task string
	var identity string
	var data string
	var fields []string

	cmd := &cobra.Command{
		Use:   "publish QUEUE",
		Short: "Publish a task to a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload, err := parseData(data, fields)
			if err != nil {
				return err
			}

			resp, err := client.PublishTask(args[0], PublishRequest{
				Task:     task,
				Identity: identity,
				Data:     payload,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task published: %s", resp.Identity))
			out.Print(
				[]string{"QUEUE", "TASK", "IDENTITY"},
				[][]string{{resp.Queue, resp.Task, resp.Identity}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "Task name (required)")
	cmd.Flags().StringVar(&identity, "identity", "", "Correlation id (uuid if not specified)")
	cmd.Flags().StringVar(&data, "data", "", "Task data as a JSON object")
	cmd.Flags().StringSliceVar(&fields, "field", nil, "Data value as KEY=VALUE (repeatable, overrides --data)")
	cmd.MarkFlagRequired("task")

	return cmd
}

// parseData собирает data из JSON-объекта и пар KEY=VALUE.
func parseData(data string, fields []string) (map[string]any, error) {
	payload := map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("invalid --data, expected a JSON object: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}

	for _, kv := range fields {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field format %q, expected KEY=VALUE", kv)
		}
		payload[key] = value
	}

	return payload, nil
}
