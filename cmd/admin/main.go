// Package main - административная утилита Vitality Hub.
//
// Проверка каталога перед выкладкой, миграции, выдача доступа,
// сброс прогресса пользователя и выпуск тестовых токенов.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wellness-escape/vitality-hub/config"
	"github.com/wellness-escape/vitality-hub/internal/bootstrap"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env - лениво загружаемая конфигурация и логгер для подкоманд.
type env struct {
	verbose bool

	cfg *config.Config
	log *logger.Logger
}

func (e *env) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg
	return cfg, nil
}

func (e *env) logger() *logger.Logger {
	if e.log != nil {
		return e.log
	}
	if !e.verbose {
		e.log = logger.Nop()
		return e.log
	}
	opts := logger.DefaultOptions()
	opts.Format = logger.FormatConsole
	opts.Level = logger.LevelDebug
	opts.Output = os.Stderr
	e.log = logger.New(opts)
	return e.log
}

// open подключает инфраструктуру согласно конфигурации.
func (e *env) open(ctx context.Context, opts bootstrap.Options) (*bootstrap.Resources, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return bootstrap.Open(ctx, cfg, e.logger(), opts)
}

func rootCmd() *cobra.Command {
	e := &env{}

	cmd := &cobra.Command{
		Use:   "vitality-admin",
		Short: "Administer a Vitality Hub deployment",
		Long: `Operational commands for Vitality Hub.

Configuration is read from the environment and an optional .env file,
the same way the API server reads it.

Examples:
  vitality-admin validate-catalog content/program.yaml
  vitality-admin migrate up
  vitality-admin entitlement grant user-42 --source stripe
  vitality-admin reset-progress user-42
  vitality-admin mint-token user-42 --access
`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "Log infrastructure activity to stderr")

	cmd.AddCommand(
		validateCatalogCmd(),
		featuresCmd(e),
		hashAPIKeyCmd(),
		mintTokenCmd(e),
		resetProgressCmd(e),
		entitlementCmd(e),
		migrateCmd(e),
	)
	return cmd
}
