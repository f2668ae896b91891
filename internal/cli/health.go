package cli

import (
	"errors"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewHealthCmd создаёт команду проверки зависимостей API.
// При деградации выводит состояние и завершается с ошибкой.
func NewHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show API health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			health, err := client.Health()
			if err != nil && !errors.Is(err, ErrDegraded) {
				return err
			}

			names := make([]string, 0, len(health.Checks))
			for name := range health.Checks {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([][]string, len(names))
			for i, name := range names {
				rows[i] = []string{name, strconv.FormatBool(health.Checks[name])}
			}

			out.Success("Status: " + health.Status)
			out.Print([]string{"CHECK", "OK"}, rows, health)
			return err
		},
	}
}

// NewPingCmd создаёт команду проверки доступности API.
func NewPingCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := clientFn().Ping()
			if err != nil {
				return err
			}
			outputFn().Fields([]string{"REPLY"}, map[string]string{"REPLY": reply}, map[string]string{"reply": reply})
			return nil
		},
	}
}
