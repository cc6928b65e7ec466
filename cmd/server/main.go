package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/fridgechef/api/internal/auth"
	"github.com/fridgechef/api/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "fridgechef",
		Usage: "recipe scanning and fridge matching API",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API, with an embedded worker unless --no-worker is set",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-worker", Usage: "do not process queued jobs in this process"},
					&cli.BoolFlag{Name: "migrate", Usage: "migrate the database before serving"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return serve(ctx, !cmd.Bool("no-worker"), cmd.Bool("migrate"))
				},
			},
			{
				Name:  "worker",
				Usage: "process queued jobs and reclaim expired leases",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return work(ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "create or update the database schema",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return migrate(ctx)
				},
			},
			{
				Name:  "token",
				Usage: "issue a legacy development token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					return issueToken(cmd.String("user"), cmd.String("email"), cmd.Duration("ttl"))
				},
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, withWorker, withMigrate bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if withMigrate {
		if err := a.db.Migrate(ctx); err != nil {
			return err
		}
	}

	if withWorker {
		stopWorker, err := a.startWorker(ctx)
		if err != nil {
			return err
		}
		defer stopWorker()
	}

	return a.listen(ctx)
}

func work(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	stopWorker, err := a.startWorker(ctx)
	if err != nil {
		return err
	}
	defer stopWorker()

	a.log.Info("worker running")
	<-ctx.Done()
	a.log.Info("worker shutting down")
	return nil
}

func migrate(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.db.Migrate(ctx); err != nil {
		return err
	}
	a.log.Info("database migrated")
	return nil
}

func issueToken(userID, email string, ttl time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	token, err := auth.IssueLegacyToken(userID, email, cfg.JWT.Secret, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
