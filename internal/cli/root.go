package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/riskpilot/internal/model"
)

// Version is set at build time via -ldflags
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool
	logJSON bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "riskpilot",
	Short: "riskpilot - AI-assisted risk, cost and efficiency signals for programs",
	Long: `riskpilot turns program artifacts (status reports, cost exports, meeting
notes, analyst entries) into auditable signals:

  delivery_risk   LOW | MEDIUM | HIGH
  cost_risk       NORMAL | ANOMALOUS
  ai_efficiency   LOW | MODERATE | HIGH

Every signal carries a confidence score, an explanation and the cost of the
model call that produced it. Analysts can override any signal; overrides are
append-only and the latest one defines the effective value.

Without a model credential riskpilot runs a deterministic rule-based
generator, so every command works offline.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("riskpilot v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.riskpilot/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")

	_ = viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log-json"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads .env, the config file and RISKPILOT_* variables
func initConfig() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: reading .env: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".riskpilot"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	registerDefaults(model.DefaultConfig())

	// RISKPILOT_LLM_MODEL overrides llm.model
	viper.SetEnvPrefix("RISKPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// registerDefaults makes every section.field key known to viper so that
// environment variables reach Unmarshal
func registerDefaults(cfg *model.Config) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return
	}
	var sections map[string]map[string]any
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return
	}
	for section, fields := range sections {
		for field, value := range fields {
			viper.SetDefault(section+"."+field, value)
		}
	}
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("embedding.api_key", "")
}

// loadConfig merges defaults, config file, env and flags, then validates
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
