package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/craftlabs/forma/internal/formclient"
	"github.com/craftlabs/forma/internal/llm"
	"github.com/craftlabs/forma/internal/models"
	"github.com/craftlabs/forma/internal/stream"
	"github.com/craftlabs/forma/internal/workflow"
)

// newRunner builds the formulation runner from config. When
// server.base_url is set the streaming HTTP client is used; otherwise we
// fall back to calling Anthropic directly with the configured API key.
func newRunner(status func(models.StatusUpdate)) (workflow.Runner, error) {
	if baseURL := viper.GetString("server.base_url"); baseURL != "" {
		cfg := stream.Config{
			SuccessClearDelay: time.Duration(viper.GetInt("stream.success_clear_ms")) * time.Millisecond,
			ErrorClearDelay:   time.Duration(viper.GetInt("stream.error_clear_ms")) * time.Millisecond,
		}
		opts := []formclient.Option{formclient.WithStreamConfig(cfg)}
		if status != nil {
			opts = append(opts, formclient.WithStatusFunc(status))
		}
		return formclient.New(baseURL, opts...), nil
	}

	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no formulation backend configured: set server.base_url or anthropic.api_key")
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model")), nil
}
