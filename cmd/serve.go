package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/craftlabs/forma/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a local formulation server for development",
	Long: `Start an HTTP server that implements the formulation streaming
protocol with canned responses. Point server.base_url at it to exercise
the client without a real backend.

By default it listens on port 8080. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := viper.GetInt("serve.port")
		stepDelay := time.Duration(viper.GetInt("serve.step_delay_ms")) * time.Millisecond

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		server := api.NewServer(logger, stepDelay)

		addr := fmt.Sprintf(":%d", port)
		ui.Info("Serving formulation API at http://localhost%s", addr)
		return http.ListenAndServe(addr, server.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Int("step-delay-ms", 300, "delay between streamed status frames")
	viper.SetDefault("serve.port", 8080)
	viper.SetDefault("serve.step_delay_ms", 300)
	_ = viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("serve.step_delay_ms", serveCmd.Flags().Lookup("step-delay-ms"))
}
