package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Its-donkey/campus-portal/internal/apiclient"
	"github.com/Its-donkey/campus-portal/internal/assistant"
	"github.com/Its-donkey/campus-portal/internal/config"
	"github.com/Its-donkey/campus-portal/internal/session"
	"github.com/Its-donkey/campus-portal/internal/tables"
	"github.com/Its-donkey/campus-portal/logging"
)

const logFileName = "campus.log"

// app holds everything a subcommand needs. It is filled by setup before any
// RunE runs and released by close once the command returns, failed or not.
type app struct {
	configFile string
	logLevel   string

	cfg     config.Config
	logger  *logging.Logger
	files   *logging.FileWriter
	shipper *logging.Shipper
	session *session.Store
	client  *apiclient.Client
	store   *tables.Store
	reader  *assistant.Reader
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:           "campus",
		Short:         "Campus portal client",
		Long:          "campus talks to the academic platform API: it streams answers from the AI assistant,\ncaches data tables and derives course listings and grade reports from them.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: ./config.yaml or ~/.campus/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newAskCmd(a),
		newTablesCmd(a),
		newCoursesCmd(a),
		newGradesCmd(a),
		newSessionCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root, a
}

// execute runs root and then releases a. Cobra skips post-run hooks when
// RunE fails, and failures are when queued warnings most need shipping.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	a.logger = logging.New(logging.ParseLevel(cfg.Log.Level), cmd.ErrOrStderr())
	if cfg.Log.Dir != "" {
		fw, err := logging.NewFileWriter(cfg.Log.Dir, logFileName, 0, 0)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.files = fw
		a.logger.AddWriter(fw)
	}
	if cfg.Log.Ship {
		a.shipper = logging.NewShipper(a.logger, cfg.Endpoint(cfg.LogPath), nil, logging.WARN)
	}

	a.session, err = session.Open(cfg.SessionFile)
	if err != nil {
		return err
	}
	a.client = apiclient.New(apiclient.Options{
		BaseURL:   cfg.APIBase,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Tokens:    a.session,
		Logger:    a.logger,
	})
	a.store = tables.NewStore(tables.NewHTTPFetcher(a.client, cfg.TablesPath, cfg.TablePath), a.logger)
	a.reader = assistant.NewReader(a.client, cfg.StreamPath, a.session)

	a.logger.Debug("cli", "configured", map[string]any{
		"command":  cmd.CommandPath(),
		"api_base": cfg.APIBase,
		"session":  filepath.Base(cfg.SessionFile),
	})
	return nil
}

func (a *app) close() error {
	if a.shipper != nil {
		a.shipper.Close()
		a.shipper = nil
	}
	if a.files != nil {
		err := a.files.Close()
		a.files = nil
		return err
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the campus version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "campus", version)
		},
	}
}
