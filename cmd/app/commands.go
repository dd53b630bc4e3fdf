package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/sciencemap/internal/application"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Request an access token and store it for the CLI",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Value: "uds", Usage: "uds or http"},
					&cli.StringFlag{Name: "server", Value: "http://127.0.0.1:8080"},
					&cli.StringFlag{Name: "socket", Value: "/tmp/sciencemap.sock"},
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "scope", Usage: "space separated scopes, e.g. \"reader writer\""},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := cliConfig{Transport: c.String("transport"), Server: c.String("server"), Socket: c.String("socket")}
					token, err := doLogin(ctx, cfg, c.String("username"), c.String("password"), c.String("scope"))
					if err != nil {
						return err
					}
					cfg.Token = token.AccessToken
					if err := saveConfig(cfg); err != nil {
						return err
					}
					scopes := make([]string, 0, len(token.Scopes))
					for _, scope := range token.Scopes {
						scopes = append(scopes, string(scope))
					}
					fmt.Printf("logged in as %s (%s)\n", c.String("username"), strings.Join(scopes, " "))
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Clear local CLI auth token",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					cfg.Token = ""
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Println("logged out")
					return nil
				},
			},
		},
	}
}

func kindFlag() cli.Flag {
	names := make([]string, 0, 4)
	for _, spec := range domain.Kinds() {
		names = append(names, spec.Singular)
	}
	return &cli.StringFlag{Name: "kind", Required: true, Usage: strings.Join(names, ", ")}
}

func kindOf(c *cli.Command) (domain.KindSpec, error) {
	raw := strings.ToLower(strings.TrimSpace(c.String("kind")))
	if spec, ok := domain.SpecFor(domain.Kind(raw)); ok {
		return spec, nil
	}
	if spec, ok := domain.SpecForPlural(raw); ok {
		return spec, nil
	}
	return domain.KindSpec{}, fmt.Errorf("unknown kind %q", raw)
}

func fieldFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name"},
		&cli.StringFlag{Name: "birth-date", Usage: "YYYY-MM-DD"},
		&cli.StringFlag{Name: "death-date", Usage: "YYYY-MM-DD"},
		&cli.StringFlag{Name: "image-url"},
		&cli.StringFlag{Name: "wiki-url"},
		&cli.StringFlag{Name: "website-url", Usage: "associations only"},
	}
}

// fieldsOf sends only the flags the user set, so an update leaves the rest
// untouched.
func fieldsOf(c *cli.Command) map[string]any {
	fields := map[string]any{}
	for flag, field := range map[string]string{
		"name":        "name",
		"birth-date":  "birthDate",
		"death-date":  "deathDate",
		"image-url":   "imageUrl",
		"wiki-url":    "wikiUrl",
		"website-url": "websiteUrl",
	} {
		if c.IsSet(flag) {
			fields[field] = c.String(flag)
		}
	}
	return fields
}

func elementsCommand() *cli.Command {
	return &cli.Command{
		Name:  "elements",
		Usage: "Entity, association, person and product commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List elements of one kind",
				Flags: []cli.Flag{kindFlag(), &cli.StringFlag{Name: "q"}, &cli.IntFlag{Name: "limit"}, jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, spec, err := clientContext(c)
					if err != nil {
						return err
					}
					out, err := doElementsList(ctx, cfg, spec, c.String("q"), c.Int("limit"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printElements(spec, out)
					return nil
				},
			},
			{
				Name:  "get",
				Usage: "Show one element",
				Flags: []cli.Flag{kindFlag(), &cli.UintFlag{Name: "id", Required: true}, jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, spec, err := clientContext(c)
					if err != nil {
						return err
					}
					out, err := doElementGet(ctx, cfg, spec, c.Uint("id"))
					if err != nil {
						return err
					}
					return printElementReply(c, spec, out)
				},
			},
			{
				Name:  "create",
				Usage: "Create an element",
				Flags: append([]cli.Flag{kindFlag(), jsonFlag()}, fieldFlags()...),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, spec, err := clientContext(c)
					if err != nil {
						return err
					}
					out, err := doElementCreate(ctx, cfg, spec, fieldsOf(c))
					if err != nil {
						return err
					}
					return printElementReply(c, spec, out)
				},
			},
			{
				Name:  "update",
				Usage: "Update an element using its current ETag",
				Flags: append([]cli.Flag{kindFlag(), &cli.UintFlag{Name: "id", Required: true}, jsonFlag()}, fieldFlags()...),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, spec, err := clientContext(c)
					if err != nil {
						return err
					}
					out, err := doElementUpdate(ctx, cfg, spec, c.Uint("id"), fieldsOf(c))
					if err != nil {
						return err
					}
					return printElementReply(c, spec, out)
				},
			},
			{
				Name:  "delete",
				Usage: "Delete an element and all of its links",
				Flags: []cli.Flag{kindFlag(), &cli.UintFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, spec, err := clientContext(c)
					if err != nil {
						return err
					}
					if err := doElementDelete(ctx, cfg, spec, c.Uint("id")); err != nil {
						return err
					}
					fmt.Printf("deleted %s %d\n", spec.Singular, c.Uint("id"))
					return nil
				},
			},
		},
	}
}

func relationsCommand() *cli.Command {
	applyCommand := func(name, alias, usage string, op application.RelationOp) *cli.Command {
		return &cli.Command{
			Name:    name,
			Aliases: []string{alias},
			Usage:   usage,
			Flags: []cli.Flag{
				kindFlag(),
				&cli.UintFlag{Name: "id", Required: true},
				&cli.StringFlag{Name: "collection", Required: true},
				&cli.UintFlag{Name: "element-id", Required: true},
				jsonFlag(),
			},
			Action: func(ctx context.Context, c *cli.Command) error {
				cfg, spec, err := clientContext(c)
				if err != nil {
					return err
				}
				out, err := doRelationApply(ctx, cfg, spec, c.Uint("id"), c.String("collection"), op, c.Uint("element-id"))
				if err != nil {
					return err
				}
				return printElementReply(c, spec, out)
			},
		}
	}

	return &cli.Command{
		Name:  "relations",
		Usage: "Link and unlink elements",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the elements in one collection of an element",
				Flags: []cli.Flag{kindFlag(), &cli.UintFlag{Name: "id", Required: true}, &cli.StringFlag{Name: "collection", Required: true}, jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, spec, err := clientContext(c)
					if err != nil {
						return err
					}
					side, ok := domain.SideFor(spec.Kind, c.String("collection"))
					if !ok {
						return fmt.Errorf("%s has no collection %q", spec.Singular, c.String("collection"))
					}
					out, err := doRelationsList(ctx, cfg, spec, c.Uint("id"), side.Collection)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					related, _ := domain.SpecFor(side.Related)
					printElements(related, out)
					return nil
				},
			},
			applyCommand("add", "link", "Link an element into a collection", application.RelationAdd),
			applyCommand("remove", "rem", "Unlink an element from a collection", application.RelationRemove),
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Audit log commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List audit logs",
				Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 100}, &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := doAuditList(ctx, cfg, c.Int("limit"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printAuditRecords(out)
					return nil
				},
			},
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}
}

func clientContext(c *cli.Command) (cliConfig, domain.KindSpec, error) {
	spec, err := kindOf(c)
	if err != nil {
		return cliConfig{}, domain.KindSpec{}, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, domain.KindSpec{}, err
	}
	return cfg, spec, nil
}

func printElementReply(c *cli.Command, spec domain.KindSpec, out elementReply) error {
	if c.Bool("json") {
		return printJSON(out)
	}
	printElement(spec, out)
	return nil
}
