package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/database"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/server"
	"github.com/customeros/mailsync/services"
)

const appSourceCLI = "mailsync-cli"

func main() {
	app := &cli.App{
		Name:  "mailsync",
		Usage: "mailbox sync and attachment materialization",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: serve,
			},
			{
				Name:  "sync",
				Usage: "Sync one account and print the result",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Required: true},
					&cli.StringFlag{Name: "mode", Value: string(enum.SyncModeIncremental)},
					&cli.TimestampFlag{Name: "since", Layout: time.RFC3339},
					&cli.IntFlag{Name: "limit"},
					&cli.IntFlag{Name: "batch-size"},
					&cli.StringSliceFlag{Name: "folder"},
				},
				Action: syncAccount,
			},
			{
				Name:  "progress",
				Usage: "Print the sync progress of an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Required: true},
				},
				Action: progress,
			},
			{
				Name:  "download",
				Usage: "Materialize one attachment in object storage",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "attachment", Required: true},
					&cli.DurationFlag{Name: "timeout", Value: 2 * time.Minute},
				},
				Action: download,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config initialization failed: %w", err)
	}
	if cfg == nil {
		return nil, nil, fmt.Errorf("config is empty")
	}

	db, err := database.InitMailsyncDatabase(cfg.MailsyncDatabaseConfig)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func migrate(*cli.Context) error {
	_, db, err := setup()
	if err != nil {
		return err
	}

	if err := repository.MigrateMailsyncDB(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed successfully")
	return nil
}

func serve(*cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Mailsync starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}

	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// cliServices wires the services for one-shot commands.
func cliServices(c *cli.Context) (*services.Services, context.Context, error) {
	cfg, db, err := setup()
	if err != nil {
		return nil, nil, err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	svcs, err := services.InitServices(cfg, appLogger, repository.InitRepositories(db))
	if err != nil {
		return nil, nil, err
	}

	ctx := utils.WithCustomContext(c.Context, &utils.CustomContext{AppSource: appSourceCLI})
	return svcs, ctx, nil
}

func syncAccount(c *cli.Context) error {
	svcs, ctx, err := cliServices(c)
	if err != nil {
		return err
	}
	defer svcs.Close()

	span, ctx := tracing.StartTracerSpan(ctx, "CLI.sync")
	defer span.Finish()
	tracing.TagComponentCLI(span)

	accountID := c.String("account")
	result, err := svcs.SyncService.SyncAccount(utils.SetAccountIdInContext(ctx, accountID), accountID, dto.SyncOptions{
		Mode:      enum.SyncMode(c.String("mode")),
		Limit:     c.Int("limit"),
		BatchSize: c.Int("batch-size"),
		Since:     c.Timestamp("since"),
		Folders:   c.StringSlice("folder"),
	})
	if result != nil {
		_ = printJSON(result)
	}
	return err
}

func progress(c *cli.Context) error {
	svcs, ctx, err := cliServices(c)
	if err != nil {
		return err
	}
	defer svcs.Close()

	result, err := svcs.SyncService.GetSyncProgress(ctx, c.String("account"))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func download(c *cli.Context) error {
	svcs, ctx, err := cliServices(c)
	if err != nil {
		return err
	}
	defer svcs.Close()

	ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
	defer cancel()

	result, err := svcs.AttachmentService.DownloadAttachment(ctx, dto.DownloadAttachmentRequest{AttachmentID: c.String("attachment")})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
