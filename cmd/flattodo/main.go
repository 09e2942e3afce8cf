package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"flat-todo/internal/config"
	"flat-todo/internal/repository"
	"flat-todo/internal/service"
	"flat-todo/internal/ui"
)

// Set via ldflags at build time
var version = "dev"

var (
	configPath string
	noColor    bool
	cfg        config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "flattodo",
		Short:         "Per-category task lists kept in plain text files",
		Long:          "flattodo keeps one tab-separated text file per category in a data directory, with timestamped backups that expire after the retention window.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ui.Init(noColor, ""); err != nil {
				return err
			}
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			cfg = loaded
			return ui.Init(noColor, cfg.LogLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(doneCmd())
	rootCmd.AddCommand(saveCmd())
	rootCmd.AddCommand(renameCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(pruneCmd())
	rootCmd.AddCommand(botCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, repository.ErrDataDirUnavailable) {
			ui.Logger.Fatal("data directory unavailable, run `flattodo init` first", "dir", cfg.DataDir, "err", err)
		}
		ui.Error(err.Error())
		os.Exit(1)
	}
}

// app holds the services built from the loaded config.
type app struct {
	categories *service.CategoryService
	tasks      *service.TaskService
	reminders  *service.ReminderService
	logger     *log.Logger
}

func openApp() (*app, error) {
	c, err := cfg.Codec()
	if err != nil {
		return nil, err
	}
	rule, err := cfg.NameRule()
	if err != nil {
		return nil, err
	}
	policy, err := repository.ParseCasePolicy(cfg.CasePolicy)
	if err != nil {
		return nil, err
	}

	logger := ui.Logger
	store, err := repository.NewFileStore(cfg.DataDir, repository.Options{
		Codec:      c,
		Rule:       rule,
		Retention:  cfg.Retention,
		CasePolicy: policy,
		Logger:     logger.WithPrefix("store"),
	})
	if err != nil {
		return nil, err
	}

	taskRepo := repository.NewTaskRepository(store)
	categorySvc := service.NewCategoryService(repository.NewCategoryRepository(store), taskRepo, logger)
	taskSvc := service.NewTaskService(taskRepo, categorySvc, service.TaskConfig{
		Codec:       c,
		Labels:      cfg.Labels(),
		MaxPriority: cfg.MaxPriority,
	}, logger)

	return &app{
		categories: categorySvc,
		tasks:      taskSvc,
		reminders:  service.NewReminderService(taskSvc, categorySvc),
		logger:     logger,
	}, nil
}
