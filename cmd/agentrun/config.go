package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentrun/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging the user config, the project
.agentrun.yaml and AGENTRUN_* environment variables.

Secrets in worker.env are masked.

Examples:
  agentrun config
  agentrun config worker.command
  agentrun config init`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfig,
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the user config file",
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	entries := configEntries(cfg)
	if len(args) == 1 {
		for _, e := range entries {
			if e.key == args[0] {
				fmt.Println(e.value)
				return nil
			}
		}
		return fmt.Errorf("unknown config key %q", args[0])
	}

	fmt.Println(headerStyle.Render("Configuration"))
	fmt.Println(mutedStyle.Render("user:    " + config.GetUserConfigPath()))
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Println(mutedStyle.Render("project: " + p))
	}
	fmt.Println()
	for _, e := range entries {
		fmt.Printf("%-32s %s\n", e.key, e.value)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.GetUserConfigPath()
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(config.Default()); err != nil {
		return err
	}
	printStatus("✓", "wrote "+path, color.FgGreen)
	return nil
}

type configEntry struct {
	key   string
	value string
}

// configEntries flattens cfg into displayable key/value pairs.
func configEntries(cfg *config.Config) []configEntry {
	return []configEntry{
		{"worker.command", cfg.Worker.Command},
		{"worker.args", strings.Join(cfg.Worker.Args, " ")},
		{"worker.dir", cfg.Worker.Dir},
		{"worker.env", strings.Join(config.MaskEnv(cfg.Worker.Env), " ")},
		{"worker.inherit_env", fmt.Sprint(cfg.Worker.InheritEnv)},
		{"worker.kill_after", cfg.Worker.KillAfter.String()},
		{"state.db_path", cfg.DBPath()},
		{"state.retention", cfg.State.Retention.String()},
		{"orchestrator.inbox_size", fmt.Sprint(cfg.Orchestrator.InboxSize)},
		{"orchestrator.subscriber_buffer", fmt.Sprint(cfg.Orchestrator.SubscriberBuffer)},
		{"orchestrator.max_run_duration", cfg.Orchestrator.MaxRunDuration.String()},
		{"orchestrator.close_grace", cfg.Orchestrator.CloseGrace.String()},
		{"signals.dir", cfg.SignalsDir()},
		{"notify.nats_url", cfg.Notify.NATSURL},
		{"notify.subject_prefix", cfg.Notify.SubjectPrefix},
		{"metrics.addr", cfg.Metrics.Addr},
		{"log.debug_file", cfg.Log.DebugFile},
	}
}
