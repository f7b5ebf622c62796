// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

func slugFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "slug",
		Aliases: []string{"s"},
		Usage:   "Slug of the story being edited (omit for the new story draft)",
	}
}

// setupCommand handles setup of the configuration file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Write the default config file and run database migrations",
		Action: r.Setup,
	}
}

// authCommand handles the session lifecycle.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the admin session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in with an email or username and password",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "identity",
						Aliases: []string{"i"},
						Usage:   "Email or username (prompted when omitted)",
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Password (prompted without echo when omitted)",
						Sources: cli.EnvVars("STORYDESK_PASSWORD"),
					},
				}, jsonFlags()...),
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Clear the stored credential and every backend cookie",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Verify the stored credential with the backend",
				Flags:  jsonFlags(),
				Action: r.AuthStatus,
			},
			{
				Name:  "verify",
				Usage: "Confirm an unusual sign-in with the 6-digit code from your email",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "code"},
				},
				Action: r.AuthVerify,
			},
			{
				Name:  "resend",
				Usage: "Email a new unusual sign-in verification code",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "identity",
						Aliases: []string{"i"},
						Usage:   "Email to send the code to (defaults to the last login identity)",
					},
				},
				Action: r.AuthResend,
			},
		},
	}
}

// storiesCommand handles the author listing.
func storiesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "stories",
		Aliases: []string{"ls"},
		Usage:   "Browse and export your stories",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List one page of your stories",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page to fetch",
						Value: 1,
					},
					&cli.StringFlag{
						Name:  "author",
						Usage: "Author username (defaults to the logged in user)",
					},
					&cli.BoolFlag{
						Name:  "cached",
						Usage: "Show the cached listing without a request",
					},
				}, jsonFlags()...),
				Action: r.StoriesList,
			},
			{
				Name:  "export",
				Usage: "Export every page of your stories",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "author",
						Usage: "Author username (defaults to the logged in user)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: json, csv, markdown or txt",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: stories_export_{epoch})",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent page fetchers",
						Value: 4,
					},
					&cli.FloatFlag{
						Name:  "rate-limit",
						Usage: "Page requests per second",
						Value: 5,
					},
				},
				Action: r.StoriesExport,
			},
		},
	}
}

// draftCommand handles the locally cached story drafts.
func draftCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "draft",
		Usage: "Edit the cached draft of a new or existing story",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show a draft",
				Flags:  append([]cli.Flag{slugFlag()}, jsonFlags()...),
				Action: r.DraftShow,
			},
			{
				Name:  "mode",
				Usage: "Start editing a story in full, chapter or add mode",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "mode"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "slug",
						Aliases:  []string{"s"},
						Usage:    "Slug of the story to edit",
						Required: true,
					},
				},
				Action: r.DraftMode,
			},
			{
				Name:  "meta",
				Usage: "Set the title, summary or cover image",
				Flags: []cli.Flag{
					slugFlag(),
					&cli.StringFlag{Name: "title", Usage: "Story title"},
					&cli.StringFlag{Name: "summary", Usage: "Story summary"},
					&cli.StringFlag{Name: "summary-file", Usage: "Read the summary from a file"},
					&cli.StringFlag{Name: "image", Usage: "Path of the cover image"},
				},
				Action: r.DraftMeta,
			},
			{
				Name:  "tag",
				Usage: "Add or remove tags",
				Commands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Add an allowed tag",
						Arguments: []cli.Argument{&cli.StringArg{Name: "tag"}},
						Flags:     []cli.Flag{slugFlag()},
						Action:    r.DraftTagAdd,
					},
					{
						Name:      "remove",
						Aliases:   []string{"rm"},
						Usage:     "Remove a tag",
						Arguments: []cli.Argument{&cli.StringArg{Name: "tag"}},
						Flags:     []cli.Flag{slugFlag()},
						Action:    r.DraftTagRemove,
					},
				},
			},
			{
				Name:  "title",
				Usage: "Add or remove chapter titles",
				Commands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Add a chapter title",
						Arguments: []cli.Argument{&cli.StringArg{Name: "title"}},
						Flags:     []cli.Flag{slugFlag()},
						Action:    r.DraftTitleAdd,
					},
					{
						Name:      "remove",
						Aliases:   []string{"rm"},
						Usage:     "Remove a chapter title",
						Arguments: []cli.Argument{&cli.StringArg{Name: "title"}},
						Flags:     []cli.Flag{slugFlag()},
						Action:    r.DraftTitleRemove,
					},
				},
			},
			{
				Name:  "chapter",
				Usage: "Add, edit or delete chapters",
				Commands: []*cli.Command{
					{
						Name:   "add",
						Usage:  "Append an empty chapter",
						Flags:  []cli.Flag{slugFlag()},
						Action: r.DraftChapterAdd,
					},
					{
						Name:      "edit",
						Usage:     "Replace a chapter's content",
						Arguments: []cli.Argument{&cli.StringArg{Name: "index"}},
						Flags: []cli.Flag{
							slugFlag(),
							&cli.StringFlag{Name: "content", Usage: "Chapter content"},
							&cli.StringFlag{Name: "file", Usage: "Read the content from a file, - for stdin"},
						},
						Action: r.DraftChapterEdit,
					},
					{
						Name:      "delete",
						Aliases:   []string{"rm"},
						Usage:     "Delete a chapter and renumber the rest",
						Arguments: []cli.Argument{&cli.StringArg{Name: "index"}},
						Flags:     []cli.Flag{slugFlag()},
						Action:    r.DraftChapterDelete,
					},
				},
			},
			{
				Name:   "submit",
				Usage:  "Upload the new story or the edit of an existing one",
				Flags:  []cli.Flag{slugFlag()},
				Action: r.DraftSubmit,
			},
			{
				Name:   "clear",
				Usage:  "Discard a draft and its cached chapter edits",
				Flags:  []cli.Flag{slugFlag()},
				Action: r.DraftClear,
			},
		},
	}
}

// dashboardCommand returns the top-level TUI command.
func dashboardCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "dashboard",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch the interactive story dashboard",
		Action:  r.Dashboard,
	}
}
