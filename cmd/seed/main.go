package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/seed"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:           "seed",
		Short:         "Fill a development environment with employees and attendance records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(employeesCmd(logger))
	rootCmd.AddCommand(attendancesCmd(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("seed failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func employeesCmd(logger *slog.Logger) *cobra.Command {
	var (
		n           int
		csvPath     string
		emailDomain string
		adminUserID int64
	)

	cmd := &cobra.Command{
		Use:   "employees",
		Short: "Create employees and their accounts through the employee service",
		Long: `Create employees through the employee service, so accounts, welcome mails
and events are produced exactly as for employees created by an administrator.

Either -n random employees are generated, or the rows of --csv are imported. The CSV
needs a header with the columns name, email, phone and job_title; photo_url is optional.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			var employees []domain.CreateEmployeeRequest
			switch {
			case csvPath != "":
				f, err := os.Open(csvPath)
				if err != nil {
					return err
				}
				defer f.Close()
				if employees, err = seed.ReadEmployeesCSV(f); err != nil {
					return fmt.Errorf("%s: %w", csvPath, err)
				}
			case n > 0:
				g := seed.NewGenerator(rand.New(rand.NewSource(time.Now().UnixNano())), emailDomain)
				for i := 0; i < n; i++ {
					employees = append(employees, g.Employee())
				}
			default:
				return fmt.Errorf("either -n or --csv is required")
			}

			conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
			if err != nil {
				return fmt.Errorf("connecting to rabbitmq: %w", err)
			}
			defer conn.Close()

			ch, err := conn.Channel()
			if err != nil {
				return err
			}
			defer ch.Close()

			// creating an account and a profile takes two hops
			client, err := rpc.NewAMQPClient(ch, rpc.QueueEmployee, cfg.APIKey, 2*time.Duration(cfg.RabbitMQ.RPCTimeout)*time.Second)
			if err != nil {
				return err
			}

			admin := &domain.AuthorizedUser{UserID: adminUserID, Role: domain.RoleKeyAdmin}
			created := seed.CreateEmployees(cmd.Context(), client, admin, employees, logger)
			logger.Info("employees seeded", slog.Int("created", created), slog.Int("requested", len(employees)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "number", "n", 0, "number of random employees to create")
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file of employees to import")
	cmd.Flags().StringVar(&emailDomain, "email-domain", "example.com", "domain of generated e-mail addresses")
	cmd.Flags().Int64Var(&adminUserID, "admin-user-id", 1, "user id recorded as the creator")

	return cmd
}

func attendancesCmd(logger *slog.Logger) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "attendances",
		Short: "Write finished attendance records of past working days for every employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}

			dbpool, err := repository.Open(cfg)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer dbpool.Close()

			repo := repository.NewRepository(cfg, dbpool)
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))

			written, err := seed.CreateHistory(cmd.Context(), repo, clock.New(cfg.Location()), rng, days)
			if err != nil {
				return err
			}
			logger.Info("attendances seeded", slog.Int("written", written), slog.Int("days", days))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "number of past days to fill")

	return cmd
}
