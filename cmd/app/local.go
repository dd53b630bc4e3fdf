package main

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/sciencemap/internal/adapters/blob"
	"github.com/atvirokodosprendimai/sciencemap/internal/application"
	"github.com/atvirokodosprendimai/sciencemap/internal/config"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

// Commands in this file talk to the database directly and need the server
// config, not a login.

func usersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage API accounts (direct database access)",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an account",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "role", Value: string(domain.RoleReader), Usage: "reader or writer"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				}, databaseFlags()...),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadServerConfig(c)
					if err != nil {
						return err
					}
					repo, closeDB, err := openRepository(ctx, cfg)
					if err != nil {
						return err
					}
					defer closeDB()

					tokens, err := newTokenManager(cfg.Auth, zerolog.Nop())
					if err != nil {
						return err
					}
					accounts := application.NewAccountService(repo, tokens)
					user, err := accounts.CreateUser(ctx, c.String("username"), c.String("email"), c.String("password"), domain.Role(c.String("role")))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(map[string]any{"id": user.ID, "username": user.Username, "email": user.Email, "role": user.Role})
					}
					printUsers([]domain.User{user})
					return nil
				},
			},
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a JSON snapshot of the catalog to a directory or an S3 bucket",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "key", Usage: "object name, defaults to a timestamped file"},
			&cli.StringFlag{Name: "dir", Usage: "export directory"},
			&cli.StringFlag{Name: "s3-bucket", Usage: "export to this bucket instead of a directory"},
		}, databaseFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadServerConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("dir") {
				cfg.Export.Dir = c.String("dir")
			}
			if c.IsSet("s3-bucket") {
				cfg.Export.S3Bucket = c.String("s3-bucket")
			}

			repo, closeDB, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			writer, err := blobWriter(ctx, cfg.Export)
			if err != nil {
				return err
			}
			key := c.String("key")
			if key != "" && cfg.Export.S3Bucket == "" && cfg.Export.Prefix != "" {
				key = path.Join(cfg.Export.Prefix, key)
			}
			exporter := application.NewExportService(repo, application.NewCatalogService(repo))
			location, err := exporter.Export(ctx, writer, key)
			if err != nil {
				return err
			}
			fmt.Printf("exported to %s\n", location)
			return nil
		},
	}
}

func blobWriter(ctx context.Context, cfg config.ExportConfig) (application.BlobWriter, error) {
	if strings.TrimSpace(cfg.S3Bucket) != "" {
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			Prefix:    cfg.Prefix,
			PathStyle: cfg.S3PathStyle,
		})
	}
	return blob.NewFS(cfg.Dir)
}
