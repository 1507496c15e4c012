package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "forma"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage forma configuration.

Running bare 'forma config' is the same as 'forma config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# forma configuration
# See: forma config show (for effective values and sources)

# State/data directory (default: ~/.config/forma)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/forma/forma.db)
# db_path: {{ .DBPath }}

# Formulation server
server:
  # Base URL of the streaming formulation service. Leave empty to call
  # Anthropic directly with the key below.
  base_url: "{{ .ServerBaseURL }}"

# Anthropic (used when server.base_url is empty)
anthropic:
  # API key (or set ANTHROPIC_API_KEY)
  api_key: "{{ .AnthropicAPIKey }}"

  # Model to use
  model: "{{ .AnthropicModel }}"

# Streaming behavior
stream:
  # How long a completed status stays visible before clearing (ms)
  success_clear_ms: {{ .StreamSuccessClearMs }}

  # How long an error status stays visible before clearing (ms)
  error_clear_ms: {{ .StreamErrorClearMs }}

# Simulated progress
progress:
  # Percent added per ramp tick
  ramp_step: {{ .ProgressRampStep }}

  # Ramp tick interval (ms)
  ramp_interval_ms: {{ .ProgressRampIntervalMs }}

  # Delay before 100% resets to 0 (ms)
  finish_reset_ms: {{ .ProgressFinishResetMs }}

  # Optional YAML file overriding the scripted phase labels
  # phases_file: {{ .ProgressPhasesFile }}
`

type configTemplateData struct {
	StateDir               string
	DBPath                 string
	ServerBaseURL          string
	AnthropicAPIKey        string
	AnthropicModel         string
	StreamSuccessClearMs   int
	StreamErrorClearMs     int
	ProgressRampStep       int
	ProgressRampIntervalMs int
	ProgressFinishResetMs  int
	ProgressPhasesFile     string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:               viper.GetString("state_dir"),
		DBPath:                 viper.GetString("db_path"),
		ServerBaseURL:          viper.GetString("server.base_url"),
		AnthropicAPIKey:        viper.GetString("anthropic.api_key"),
		AnthropicModel:         viper.GetString("anthropic.model"),
		StreamSuccessClearMs:   viper.GetInt("stream.success_clear_ms"),
		StreamErrorClearMs:     viper.GetInt("stream.error_clear_ms"),
		ProgressRampStep:       viper.GetInt("progress.ramp_step"),
		ProgressRampIntervalMs: viper.GetInt("progress.ramp_interval_ms"),
		ProgressFinishResetMs:  viper.GetInt("progress.finish_reset_ms"),
		ProgressPhasesFile:     viper.GetString("progress.phases_file"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "FORMA_STATE_DIR"},
	{Key: "db_path", EnvVar: "FORMA_DB_PATH"},
	{Key: "server.base_url", EnvVar: "FORMA_SERVER_BASE_URL"},
	{Key: "anthropic.model", EnvVar: "FORMA_ANTHROPIC_MODEL"},
	{Key: "stream.success_clear_ms", EnvVar: "FORMA_STREAM_SUCCESS_CLEAR_MS"},
	{Key: "stream.error_clear_ms", EnvVar: "FORMA_STREAM_ERROR_CLEAR_MS"},
	{Key: "progress.ramp_step", EnvVar: "FORMA_PROGRESS_RAMP_STEP"},
	{Key: "progress.ramp_interval_ms", EnvVar: "FORMA_PROGRESS_RAMP_INTERVAL_MS"},
	{Key: "progress.finish_reset_ms", EnvVar: "FORMA_PROGRESS_FINISH_RESET_MS"},
	{Key: "progress.phases_file", EnvVar: "FORMA_PROGRESS_PHASES_FILE"},
	{Key: "workflow.error_clear_ms", EnvVar: "FORMA_WORKFLOW_ERROR_CLEAR_MS"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set, set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'forma config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
