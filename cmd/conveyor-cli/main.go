// Conveyor CLI — инструмент командной строки для producer API.
//
// Использование:
//
//	conveyor [--api-url URL] [--auth HEADER] [--json] <command> [flags]
//
// Команды:
//
//	publish   Опубликовать задачу в очередь
//	health    Состояние API и его зависимостей
//	ping      Доступность API
//
// --api-url и --auth по умолчанию берутся из CONVEYOR_API_URL
// и CONVEYOR_AUTH.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var auth string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — publish tasks and check the producer API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("CONVEYOR_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().StringVar(&auth, "auth", os.Getenv("CONVEYOR_AUTH"), "Authorization header value, e.g. \"Bearer <jwt>\"")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, auth) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewPublishCmd(clientFn, outputFn),
		cli.NewHealthCmd(clientFn, outputFn),
		cli.NewPingCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
