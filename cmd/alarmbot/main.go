package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"alarmbot/internal/app"
	"alarmbot/internal/config"
	"alarmbot/internal/version"
	logx "alarmbot/pkg/logx"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "alarmbot",
	Short:         "Telegram alarm bot",
	Long:          "alarmbot keeps daily, weekday and one-shot alarms per chat and\nsends them on time through a Telegram bot.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot until SIGINT or SIGTERM",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := app.New(cfgPath)
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			_ = a.Stop(context.Background(), app.StopFatalError)
			return err
		}

		reason := app.StopSignal
		select {
		case <-ctx.Done():
		case <-a.Done():
			reason = app.StopFatalError
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, reason)
		if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var listChat int64

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print stored alarms and their next fire times",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewConfigManager(cfgPath).Load()
		if err != nil {
			return err
		}
		return app.ListAlarms(cmd.Context(), cmd.OutOrStdout(), cfg, listChat, time.Now(), logx.Nop())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "alarmbot", version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (.json, .yaml); empty reads the environment only")
	listCmd.Flags().Int64Var(&listChat, "chat", 0, "only show alarms of this chat id")
	rootCmd.AddCommand(runCmd, listCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
