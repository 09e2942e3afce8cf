package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flat-todo/internal/bot"
	"flat-todo/internal/config"
	"flat-todo/internal/model"
	"flat-todo/internal/repository"
	"flat-todo/internal/service"
	"flat-todo/internal/ui"
)

func initCmd() *cobra.Command {
	var writeConfig bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Create the data directory",
		Long:    "Create the data directory named by data_dir. The other commands never create it and stop when it is missing.",
		Example: "  flattodo init\n  flattodo init --write-config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := repository.EnsureDataDir(cfg.DataDir); err != nil {
				return err
			}
			ui.Success("data directory ready")
			ui.Detail("Dir:", cfg.DataDir)

			if writeConfig {
				path := configPath
				if path == "" {
					path = filepath.Join(".", "flattodo.yaml")
				}
				wrote, err := config.WriteDefault(path)
				if err != nil {
					return err
				}
				if wrote {
					ui.Success("default config written")
				} else {
					ui.Warning("config already exists, left untouched")
				}
				ui.Detail("Config:", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&writeConfig, "write-config", false, "Also write a config file with the default settings")
	return cmd
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "categories",
		Aliases: []string{"ls"},
		Short:   "List categories and their file sizes",
		Long:    "List every category in name order. Listing also removes backups older than the retention window.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			categories, err := a.categories.List(cmd.Context())
			if err != nil {
				return err
			}
			printCategories(categories)
			return nil
		},
	}
}

func printCategories(categories []model.Category) {
	if len(categories) == 0 {
		ui.EmptyState("No categories yet.")
		return
	}
	rows := make([][]string, 0, len(categories))
	for _, c := range categories {
		note := ""
		if c.Deletable() {
			note = ui.Dim("empty")
		}
		rows = append(rows, []string{c.Name, strconv.FormatInt(c.Size, 10), note})
	}
	ui.Table([]string{"CATEGORY", "BYTES", ""}, rows)
}

func showCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "show <category>",
		Short:   "Show the tasks of a category",
		Long:    "Show the open tasks of a category, highest priority first. Done tasks are hidden unless --all is given.",
		Example: "  flattodo show Work\n  flattodo show Work --all",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			resp, err := a.tasks.Process(cmd.Context(), service.Request{Category: args[0]})
			if err != nil {
				return err
			}
			if !resp.Valid {
				printCategories(resp.Categories)
				return fmt.Errorf("%q: %w", args[0], repository.ErrInvalidCategory)
			}

			tasks := resp.Tasks
			if !all {
				tasks = service.VisibleTasks(tasks, a.tasks.Labels())
			}
			ui.Header(resp.Category)
			printTasks(tasks, all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include done tasks")
	return cmd
}

func printTasks(tasks []model.Task, all bool) {
	var rows [][]string
	n := 0
	for _, t := range tasks {
		if t.IsPlaceholder() {
			continue
		}
		n++
		num := strconv.Itoa(n)
		if all {
			num = "-"
		}
		rows = append(rows, []string{num, strconv.Itoa(t.Priority), t.Description, t.StartDate, t.DueDate, t.Status})
	}
	if len(rows) == 0 {
		ui.EmptyState("No open tasks.")
		return
	}
	ui.Table([]string{"#", "PRI", "DESCRIPTION", "START", "DUE", "STATUS"}, rows)
}

func addCmd() *cobra.Command {
	var task model.Task
	cmd := &cobra.Command{
		Use:     "add <category> <description>",
		Short:   "Add a task to a category",
		Example: "  flattodo add Work \"Ship release\" --priority 4 --due 2025/11/30",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			task.Description = args[1]
			if task.StartDate == "" {
				task.StartDate = time.Now().Format("2006/01/02")
			}
			visible, err := a.tasks.Add(cmd.Context(), args[0], task)
			if err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("added to %s", args[0]))
			printTasks(visible, false)
			return nil
		},
	}
	cmd.Flags().IntVarP(&task.Priority, "priority", "p", 3, "Priority, higher sorts first")
	cmd.Flags().StringVar(&task.StartDate, "start", "", "Start date (default today)")
	cmd.Flags().StringVar(&task.DueDate, "due", "", "Due date, e.g. 2025/11/30")
	cmd.Flags().StringVar(&task.Status, "status", "", "Status label")
	return cmd
}

func doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "done <category> <n>",
		Short:   "Mark the n-th open task as done",
		Long:    "Mark the n-th open task, as numbered by `flattodo show`, as done. The task stays in the file until the list is saved again.",
		Example: "  flattodo done Work 2",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("task number %q: %w", args[1], err)
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			task, err := a.tasks.Complete(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("done: %s", task.Description))
			return nil
		},
	}
}

func saveCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "save <category>",
		Short: "Replace a list with tab-separated rows",
		Long: "Replace the list of a category with rows read from stdin (or --from), one task per line: " +
			"priority, description, start date, due date and status separated by tabs. " +
			"Rows with an empty description are dropped. The previous file is kept as a backup.",
		Example: "  printf '3\\tShip release\\t2024/01/01\\t2024/01/10\\t\\n' | flattodo save Work",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if from != "" {
				f, err := os.Open(from)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			rows, err := readRows(in)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			if err := a.tasks.Replace(cmd.Context(), args[0], rows); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("saved %s", args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Read rows from this file instead of stdin")
	return cmd
}

func readRows(r io.Reader) ([]model.Task, error) {
	var rows []model.Task
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, model.ParseTask(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rename <old> <new>",
		Short:   "Rename a category",
		Long:    "Move the open tasks of a category to a new name. The old file is kept as a backup. Renaming onto an existing category fails and changes nothing.",
		Example: "  flattodo rename Work Biz",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			if err := a.tasks.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("renamed %s to %s", args[0], args[1]))
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <category>",
		Short: "Delete an empty category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			resp, err := a.tasks.Process(cmd.Context(), service.Request{Category: args[0], Delete: true})
			if err != nil {
				return err
			}
			if resp.DeleteOutcome == nil {
				return fmt.Errorf("%q: %w", args[0], repository.ErrInvalidCategory)
			}
			if !resp.DeleteOutcome.Deleted {
				return fmt.Errorf("delete %s: %s", args[0], resp.DeleteOutcome.Reason)
			}
			ui.Success(fmt.Sprintf("deleted %s", args[0]))
			return nil
		},
	}
}

func pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove backups older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			pruned, err := a.categories.Prune(cmd.Context())
			if err != nil {
				return err
			}
			if len(pruned) == 0 {
				ui.Info("no expired backups")
				return nil
			}
			for _, name := range pruned {
				ui.Detail("removed", name)
			}
			ui.Success(fmt.Sprintf("%d backups removed", len(pruned)))
			return nil
		},
	}
}

func botCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		Long:  "Run the Telegram bot until interrupted. Backups are pruned every prune_interval and a summary of open tasks goes out every report_interval.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireTelegram(); err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			telegramBot, err := bot.New(cfg.TelegramToken, repository.NewUserRepository(), a.categories, a.tasks, a.reminders, cfg.ReportChatIDs, a.logger.WithPrefix("bot"))
			if err != nil {
				return err
			}

			scheduler := service.NewSchedulerService(time.Local, a.logger)
			if _, err := scheduler.ScheduleInterval(cfg.PruneInterval, func() {
				if _, err := a.categories.Prune(ctx); err != nil {
					a.logger.Error("prune", "err", err)
				}
			}); err != nil {
				return fmt.Errorf("schedule prune: %w", err)
			}

			report := func() {
				jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()
				if err := telegramBot.SendReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Error("report", "err", err)
				}
			}
			if _, err := scheduler.ScheduleInterval(cfg.ReportInterval, report); err != nil {
				return fmt.Errorf("schedule reports: %w", err)
			}
			if cfg.ReportAt != "" {
				if _, err := scheduler.ScheduleDaily(cfg.ReportAt, report); err != nil {
					return fmt.Errorf("schedule daily report: %w", err)
				}
			}
			scheduler.Start()
			defer scheduler.Stop()

			a.logger.Info("bot started", "data_dir", cfg.DataDir, "jobs", scheduler.Entries())
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}
}
