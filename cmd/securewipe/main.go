package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"securewipe/internal/app"
	"securewipe/internal/cancel"
	"securewipe/internal/config"
	"securewipe/internal/logging"
	"securewipe/internal/progress"
	"securewipe/internal/protocol"
	"securewipe/internal/reporting"
	"securewipe/internal/wipe"
	"securewipe/internal/wipeerr"
)

const AppName = "SecureWipe"

var (
	cfg            *config.Config
	logger         *logging.EnterpriseLogger
	emitter        = protocol.NewEmitter(os.Stdout)
	dryRun         bool
	verbose        bool
	configPath     string
	profile        string
	maxDurationStr string
	reported       bool
)

var rootCmd = &cobra.Command{
	Use:           "securewipe",
	Short:         "SecureWipe - безопасное уничтожение данных",
	Long:          "Затирание файлов, свободного места и целых томов. События выводятся в stdout как JSON lines.",
	Version:       reporting.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe <path>",
	Short: "Затереть файлы в каталоге (quick/overwrite/secure/paranoid)",
	Args:  cobra.ExactArgs(1),
	RunE:  runWipe,
}

var volumeCmd = &cobra.Command{
	Use:   "volume <device>",
	Short: "Очистить весь том (volume-secure/volume-paranoid/volume-fast)",
	Args:  cobra.ExactArgs(1),
	RunE:  runVolume,
}

var planCmd = &cobra.Command{
	Use:   "plan <path>",
	Short: "Рассчитать объём работы без записи",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

var drivesCmd = &cobra.Command{
	Use:   "drives",
	Short: "Показать смонтированные тома",
	Args:  cobra.NoArgs,
	RunE:  runDrives,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Работа с конфигурацией",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Записать конфигурацию по умолчанию",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(config.Default(), args[0]); err != nil {
			return fail(err)
		}
		emitter.Status(fmt.Sprintf("Configuration written to %s", args[0]))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Показать действующую конфигурацию",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = "(defaults)"
		}
		w := cfg.Wipe
		emitter.Status(fmt.Sprintf("Config %s: chunk %s, fill chunk %s, headroom %s, fill strategy %s, volume label %s, filesystems %s",
			path, progress.FormatSize(float64(w.ChunkSize)), progress.FormatSize(float64(w.FillChunkSize)),
			progress.FormatSize(float64(w.HeadroomBytes)), w.FillStrategy, cfg.Volume.Label,
			strings.Join(cfg.Volume.AllowedFilesystems, ", ")))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Тестовый режим: ничего не удаляется и не форматируется")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Подробный вывод в stderr")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Путь к конфигурации")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Профиль производительности (fast/balanced/thorough)")
	rootCmd.PersistentFlags().StringVar(&maxDurationStr, "max-duration", "", "Максимальное время работы (например: 30m, 2h)")

	wipeCmd.Flags().StringP("mode", "m", "overwrite", "Режим (quick/overwrite/secure/paranoid)")
	wipeCmd.Flags().IntP("passes", "p", 0, "Количество проходов")

	volumeCmd.Flags().StringP("mode", "m", "volume-secure", "Режим (volume-secure/volume-paranoid/volume-fast)")
	volumeCmd.Flags().IntP("passes", "p", 0, "Количество проходов (volume-paranoid)")
	volumeCmd.Flags().String("fs", "", "Файловая система после очистки")
	volumeCmd.Flags().String("label", "", "Метка тома")

	planCmd.Flags().IntP("passes", "p", 0, "Количество проходов")
	planCmd.Flags().Bool("fill", true, "Учитывать заполнение свободного места")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(wipeCmd, volumeCmd, planCmd, drivesCmd, configCmd)
}

// setup загружает конфигурацию и создаёт логгер.
func setup() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fail(err)
	}
	if profile != "" {
		if err := config.ApplyProfile(cfg, profile); err != nil {
			return fail(err)
		}
		if err := config.Validate(cfg); err != nil {
			return fail(err)
		}
	}

	logger, err = logging.NewEnterpriseLogger(cfg, verbose)
	if err != nil {
		return fail(err)
	}
	logger.Log("INFO", "Запуск "+AppName, "version", reporting.Version, "dry_run", dryRun, "profile", profile)
	return nil
}

// fail reports an error that happens before a run starts.
func fail(err error) error {
	reported = true
	emitter.Error(fmt.Sprintf("An error occurred: %v", err))
	return err
}

func runWipe(cmd *cobra.Command, args []string) error {
	job, err := buildJob(cmd, args[0], false)
	if err != nil {
		return fail(err)
	}
	return execute(job)
}

func runVolume(cmd *cobra.Command, args []string) error {
	job, err := buildJob(cmd, args[0], true)
	if err != nil {
		return fail(err)
	}
	return execute(job)
}

func buildJob(cmd *cobra.Command, target string, volume bool) (wipe.WipeJob, error) {
	modeName, _ := cmd.Flags().GetString("mode")
	passes, _ := cmd.Flags().GetInt("passes")

	mode, defaultPasses, err := wipe.ParseMode(modeName)
	if err != nil {
		return wipe.WipeJob{}, err
	}
	if mode.IsVolume() != volume {
		other := "volume"
		if !volume {
			other = "wipe"
		}
		return wipe.WipeJob{}, wipeerr.New(wipeerr.ErrInvalidTarget, "mode %s belongs to the %s command", modeName, other)
	}
	switch {
	case strings.EqualFold(strings.TrimSpace(modeName), "overwrite"):
		defaultPasses = cfg.Wipe.DefaultPasses
	case mode == wipe.ModeVolumeParanoid:
		defaultPasses = cfg.Volume.ParanoidPasses
	}

	var fs, label string
	if volume {
		fs, _ = cmd.Flags().GetString("fs")
		label, _ = cmd.Flags().GetString("label")
		if fs == "" {
			fs = cfg.Volume.DefaultFilesystem
		}
	}

	job, err := wipe.NewWipeJob(target, mode, passes, defaultPasses, fs, dryRun)
	if err != nil {
		return wipe.WipeJob{}, err
	}
	return job.WithLabel(label), nil
}

// execute runs one job with signal handling and the optional time limit.
func execute(job wipe.WipeJob) error {
	token := cancel.New()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if maxDurationStr != "" {
		d, err := time.ParseDuration(maxDurationStr)
		if err != nil {
			return fail(wipeerr.Mark(err, wipeerr.ErrInvalidTarget, "invalid max-duration"))
		}
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, d)
		defer cancelTimeout()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			emitter.Status("Cancellation signal received. Cleaning up...")
			logger.Log("WARN", "Получен сигнал остановки", "signal", sig.String())
			token.Cancel()
		case <-ctx.Done():
		}
	}()

	err := app.NewApp(cfg, logger, emitter, token).Run(ctx, job)
	reported = true
	return err
}

func runPlan(cmd *cobra.Command, args []string) error {
	passes, _ := cmd.Flags().GetInt("passes")
	fill, _ := cmd.Flags().GetBool("fill")
	if passes <= 0 {
		passes = cfg.Wipe.DefaultPasses
	}

	a := app.NewApp(cfg, logger, emitter, cancel.New())
	plan, err := a.Plan(args[0], passes, fill)
	if err != nil {
		return fail(err)
	}
	emitter.Status(fmt.Sprintf("Plan for %s: %d files (%s) x %d passes, %s free space, %s total; %d files and %d directories skipped",
		plan.Root, len(plan.Files), progress.FormatSize(float64(plan.FileBytes)), plan.Passes,
		progress.FormatSize(float64(plan.FreeBytes)), progress.FormatSize(float64(plan.TotalBytes)),
		len(plan.Skipped), len(plan.SkippedDirs)))
	return nil
}

func runDrives(cmd *cobra.Command, args []string) error {
	drives, err := app.NewApp(cfg, logger, emitter, cancel.New()).Drives()
	if err != nil {
		return fail(err)
	}
	emitter.Drives(drives)
	return nil
}

func main() {
	err := rootCmd.Execute()
	// usage errors from cobra have not been reported yet
	if err != nil && !reported {
		emitter.Error(err.Error())
	}
	os.Exit(wipeerr.ExitCode(err))
}
