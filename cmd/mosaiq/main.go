package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mosaiq",
		Usage: "Classify saved content against a concept taxonomy with a local embedding model",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML config file (overrides MOSAIQ_CONFIG)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the content database",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "classify",
				Usage:     "Classify a title and text without storing anything",
				ArgsUsage: "[text...]",
				Action:    classifyCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Content title"},
					&cli.StringFlag{Name: "text", Usage: "Content body (defaults to the arguments)"},
				},
			},
			{
				Name:   "add",
				Usage:  "Store a content item",
				Action: addCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Content id", Required: true},
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Content title"},
					&cli.StringFlag{Name: "text", Usage: "Content body"},
					&cli.StringFlag{Name: "url", Usage: "Source URL"},
					&cli.BoolFlag{Name: "classify", Usage: "Classify the item after storing it"},
				},
			},
			{
				Name:      "classify-item",
				Usage:     "Classify a stored item and save the result",
				ArgsUsage: "<id>",
				Action:    classifyItemCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Supersede a running job"},
				},
			},
			{
				Name:      "batch",
				Usage:     "Reclassify several stored items",
				ArgsUsage: "[id...]",
				Action:    batchCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Reclassify every stored item"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Supersede running jobs"},
				},
			},
			{
				Name:      "status",
				Usage:     "Show engine availability, or the stored classifications of an item",
				ArgsUsage: "[id]",
				Action:    statusCommand,
			},
			{
				Name:      "verify",
				Usage:     "Mark a concept as confirmed for an item",
				ArgsUsage: "<id> <concept>",
				Action:    verifyCommand,
			},
			{
				Name:      "remove",
				Usage:     "Delete a stored item and its classifications",
				ArgsUsage: "<id>",
				Action:    removeCommand,
			},
			{
				Name:  "taxonomy",
				Usage: "Browse the concept taxonomy",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List concepts",
						Action: taxonomyListCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "roots", Usage: "Only top-level concepts"},
						},
					},
					{
						Name:      "get",
						Usage:     "Show one concept with its ancestors",
						ArgsUsage: "<concept>",
						Action:    taxonomyGetCommand,
					},
					{
						Name:      "search",
						Usage:     "Search concepts by label, synonym or meaning",
						ArgsUsage: "<query...>",
						Action:    taxonomySearchCommand,
					},
					{
						Name:      "children",
						Usage:     "List the direct children of a concept",
						ArgsUsage: "<concept>",
						Action:    taxonomyChildrenCommand,
					},
					{
						Name:      "content",
						Usage:     "List stored items classified under a concept",
						ArgsUsage: "<concept>",
						Action:    taxonomyContentCommand,
					},
				},
			},
		},
	}
}
