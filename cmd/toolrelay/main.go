// toolrelay: MCP tool relay over Server-Sent Events
//
// Exposes developer-assistant tools (task creation, project status, code
// context, address validation) to any MCP client that speaks the SSE
// transport.
//
// Usage:
//
//	toolrelay serve     # Start the HTTP/SSE server
//	toolrelay tools     # Print the tool catalog
//	toolrelay version   # Print the version
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/HendryAvila/toolrelay/internal/config"
	"github.com/HendryAvila/toolrelay/internal/logging"
	"github.com/HendryAvila/toolrelay/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:           "toolrelay",
		Short:         "MCP tool relay over Server-Sent Events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				v.SetConfigFile(path)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default ./toolrelay.yaml)")
	flags.String("env-file", ".env", "dotenv file loaded before reading config")
	flags.String("host", "", "listen host")
	flags.Int("port", 0, "listen port")
	flags.String("tasks-dir", "", "directory for task Markdown files")
	flags.String("data-dir", "", "directory for the task index")
	flags.String("source-root", "", "root directory for get_code_context")
	flags.String("project-root", "", "git repository for query_project_status")
	flags.Bool("strict-args", false, "reject tool calls with invalid arguments")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")

	for key, flag := range map[string]string{
		config.KeyHost:        "host",
		config.KeyPort:        "port",
		config.KeyTasksDir:    "tasks-dir",
		config.KeyDataDir:     "data-dir",
		config.KeySourceRoot:  "source-root",
		config.KeyProjectRoot: "project-root",
		config.KeyStrictArgs:  "strict-args",
		config.KeyLogLevel:    "log-level",
		config.KeyLogFormat:   "log-format",
	} {
		// Only flags set on the command line override env and file values.
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", flag, err))
		}
	}

	root.AddCommand(
		newServeCmd(v),
		newToolsCmd(v),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/SSE server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load(v)
			if err != nil {
				return err
			}

			srv, cleanup, err := server.New(cfg, log)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			// Graceful shutdown on interrupt.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}
}

func newToolsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load(v)
			if err != nil {
				return err
			}

			srv, cleanup, err := server.New(cfg, logging.NewNop())
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			return printTools(cmd.OutOrStdout(), srv)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", server.Name, server.Version)
		},
	}
}

func load(v *viper.Viper) (config.Config, logging.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func printTools(w io.Writer, srv *server.Server) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(srv.Registry().List())
}
