package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/nhle/mailcheck/internal/app"
	"github.com/nhle/mailcheck/internal/credential"
	"github.com/nhle/mailcheck/internal/folders"
	"github.com/nhle/mailcheck/internal/logging"
	"github.com/nhle/mailcheck/internal/mail"
	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/internal/search"
	"github.com/nhle/mailcheck/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mailcheck",
		Usage: "count messages of one day by subject across selected mail folders",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path of the YAML configuration file",
				Value:   model.DefaultConfigPath(),
				EnvVars: []string{"MAILCHECK_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "settings",
				Usage: "path of the JSON settings file (overrides settings_path)",
			},
		},
		Action: runUI,
		Commands: []*cli.Command{
			{
				Name:   "ui",
				Usage:  "open the interactive terminal interface",
				Action: runUI,
			},
			{
				Name:   "folders",
				Usage:  "list the server folders, save them with every folder disabled, and print them",
				Action: runFolders,
			},
			{
				Name:  "search",
				Usage: "search one day for every configured subject and print the result",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "date",
						Usage: "day to search, YYYY-MM-DD (default today)",
					},
				},
				Action: runSearch,
			},
			{
				Name:  "password",
				Usage: "store the IMAP password in the system keyring (read from stdin)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "delete",
						Usage: "remove the stored password instead",
					},
				},
				Action: runPassword,
			},
			{
				Name:  "config",
				Usage: "manage the YAML configuration file",
				Subcommands: []*cli.Command{
					{
						Name:  "init",
						Usage: "write the effective configuration to --config",
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "force",
								Usage: "overwrite an existing file",
							},
						},
						Action: runConfigInit,
					},
				},
			},
		},
	}
}

// runtime is what every command needs before it talks to the server.
type runtime struct {
	cfg      *model.AppConfig
	store    *store.FileStore
	settings *model.Settings
	loc      *time.Location
	log      *logrus.Logger
	closeLog io.Closer
}

func (r *runtime) Close() {
	if r.closeLog != nil {
		_ = r.closeLog.Close()
	}
}

// setup loads config and settings. The interactive UI logs to the
// configured file; the other commands log to stderr.
func setup(c *cli.Context, toFile bool) (*runtime, error) {
	cfg, err := model.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if p := c.String("settings"); p != "" {
		cfg.SettingsPath = p
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, loc: loc}
	if toFile {
		rt.log, rt.closeLog, err = logging.NewFile(cfg.Log)
	} else {
		rt.log, err = logging.New(cfg.Log, os.Stderr)
	}
	if err != nil {
		return nil, err
	}

	rt.store = store.NewFileStore(cfg.SettingsPath)
	rt.settings, err = rt.store.Load()
	if err != nil {
		rt.Close()
		return nil, err
	}

	return rt, nil
}

// connect opens the mail session. Any failure here is fatal: nothing is
// shown or searched without a live session.
func (r *runtime) connect(ctx context.Context) (*mail.IMAPSession, error) {
	creds, err := credential.Resolve(r.settings.Credentials, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to the mail server: %w", err)
	}

	session, err := mail.Connect(ctx, creds, mail.OptionsFromConfig(r.cfg.IMAP, r.log))
	if err != nil {
		r.log.WithError(err).Error("Connection failed")
		return nil, fmt.Errorf("cannot connect to the mail server: %w", err)
	}
	return session, nil
}

func runUI(c *cli.Context) error {
	rt, err := setup(c, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	session, err := rt.connect(c.Context)
	if err != nil {
		return err
	}
	defer session.Close()

	m := app.New(&app.Env{
		Config:   rt.cfg,
		Store:    rt.store,
		Settings: rt.settings,
		Session:  session,
		Location: rt.loc,
		Log:      rt.log,
	})

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}

func runFolders(c *cli.Context) error {
	rt, err := setup(c, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	session, err := rt.connect(c.Context)
	if err != nil {
		return err
	}
	defer session.Close()

	list, err := folders.Reload(c.Context, session, rt.store, rt.settings, rt.cfg.Folders.PreserveSelection, rt.log)
	for _, f := range list {
		mark := " "
		if f.Enabled {
			mark = "x"
		}
		fmt.Fprintf(c.App.Writer, "[%s] %s\n", mark, f.Name)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "\nFolders loaded and saved to %s\n", rt.store.Path())
	return nil
}

func runSearch(c *cli.Context) error {
	rt, err := setup(c, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	date := time.Now().In(rt.loc)
	if s := c.String("date"); s != "" {
		date, err = search.ParseDate(s, rt.loc)
		if err != nil {
			return err
		}
	}

	session, err := rt.connect(c.Context)
	if err != nil {
		return err
	}
	defer session.Close()

	engine := search.NewEngine(session, rt.loc, rt.log)
	result, err := engine.Run(c.Context, search.Request{
		Date:     date,
		Subjects: rt.settings.Subjects,
		Folders:  rt.settings.Folders,
	})
	if result != nil {
		fmt.Fprint(c.App.Writer, search.Render(result))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runPassword(c *cli.Context) error {
	rt, err := setup(c, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	creds := rt.settings.Credentials
	if creds.Server == "" || creds.Login() == "" {
		return fmt.Errorf("set server and username or email in %s first", rt.store.Path())
	}

	key := credential.Key(creds)
	if c.Bool("delete") {
		if err := credential.Delete(key); err != nil {
			return err
		}
		fmt.Fprintf(c.App.ErrWriter, "Removed %q\n", key)
		return nil
	}

	fmt.Fprintf(c.App.ErrWriter, "Password for %s: ", creds.Login())
	password, err := readLine(c.App.Reader)
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("empty password")
	}

	if err := credential.Set(key, password); err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "\nStored under %q\n", key)
	return nil
}

// runConfigInit writes defaults merged with MAILCHECK_* overrides, or the
// current file when forced, so the result can be edited by hand.
func runConfigInit(c *cli.Context) error {
	path := c.String("config")
	if !c.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	cfg, err := model.LoadConfig(path)
	if err != nil {
		return err
	}
	if p := c.String("settings"); p != "" {
		cfg.SettingsPath = p
	}

	if err := model.SaveConfig(path, cfg); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Configuration written to %s\n", path)
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
