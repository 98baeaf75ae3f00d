package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/diamondburned/arikawa/v3/api/cmdroute"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/state"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"libdb.so/hackathon-bot/internal/commands"
	"libdb.so/hackathon-bot/internal/guildconfig"
	"libdb.so/hackathon-bot/internal/notify"
	"libdb.so/hackathon-bot/internal/sheets"
	"libdb.so/hackathon-bot/internal/status"
	"libdb.so/hackathon-bot/internal/tracker"
)

var (
	settingsPath = os.Getenv("HACKATHON_BOT_CONFIG")
	debug        = false
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Environment Variables:\n")
		fmt.Fprintf(os.Stderr, "  $DISCORD_TOKEN            the bot token\n")
		fmt.Fprintf(os.Stderr, "  $SPREADSHEET_ID           the default spreadsheet of every guild\n")
		fmt.Fprintf(os.Stderr, "  $DEADLINE_REMINDER_DAYS   the default reminder days (default 7,3,1)\n")
		fmt.Fprintf(os.Stderr, "  $GOOGLE_CREDENTIALS_FILE  the service account file (default credentials.json)\n")
		fmt.Fprintf(os.Stderr, "  $SHEET_RANGE              the range holding the hackathons (default A2:I)\n")
		fmt.Fprintf(os.Stderr, "  $CHECK_SCHEDULE           the cron schedule of the checks (default */30 * * * *)\n")
		fmt.Fprintf(os.Stderr, "  $TIMEZONE                 the timezone of deadlines (default UTC)\n")
		fmt.Fprintf(os.Stderr, "  $STATE_DIRECTORY          the directory to store the bot state\n")
		fmt.Fprintf(os.Stderr, "  $HTTP_ADDR                the address of the status endpoint, if any\n")
		fmt.Fprintf(os.Stderr, "  $HACKATHON_BOT_CONFIG     a YAML settings file, same as -config\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "A .env file in the working directory is loaded first.\n")
	}
	flag.StringVar(&settingsPath, "config", settingsPath, "path to a YAML settings file")
	flag.BoolVar(&debug, "debug", debug, "enable debug logging")
}

func main() {
	flag.Parse()

	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn(
			"Bot could not load the .env file. It will only use the environment.",
			"err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		slog.Error("This bot requires $DISCORD_TOKEN to be set.")
		return 1
	}

	settings, err := loadSettings(settingsPath, os.Getenv)
	if err != nil {
		slog.Error(
			"Bot could not load its settings.",
			"err", err)
		return 1
	}

	slog.Info(
		"This bot will be using a state directory.",
		"state_directory", settings.StateDirectory)

	store, err := guildconfig.Open(settings.StateDirectory, settings.defaults())
	if err != nil {
		slog.Error(
			"Bot could not open the guild config database. It will not be able to function.",
			"err", err)
		return 1
	}
	defer closeDatabase("guild config", store)

	ledger, err := tracker.OpenLedger(settings.StateDirectory)
	if err != nil {
		slog.Error(
			"Bot could not open the reminder database. It will not be able to function.",
			"err", err)
		return 1
	}
	defer closeDatabase("reminder", ledger)

	reader, err := sheets.New(ctx, settings.CredentialsFile, sheets.ReaderOpts{
		Range: settings.SheetRange,
	})
	if err != nil {
		slog.Error(
			"Bot could not set up the Google Sheets client.",
			"credentials_file", settings.CredentialsFile,
			"err", err)
		return 1
	}

	session := state.New("Bot " + token)
	session.AddIntents(gateway.IntentGuilds)

	notifier := notify.New(notify.DiscordSender{Client: session.Client}, notify.DefaultSendTimeout)

	checker := tracker.New(store, reader, notifier, ledger, tracker.Opts{
		Location: settings.location,
	})

	scheduler, err := tracker.NewScheduler(ctx, settings.CheckSchedule, settings.location, checker)
	if err != nil {
		slog.Error(
			"Bot could not set up its check schedule.",
			"err", err)
		return 1
	}

	handler := &commands.Handler{
		Discord:        session,
		Store:          store,
		Fetcher:        reader,
		Checker:        checker,
		Sender:         notify.DiscordSender{Client: session.Client},
		ServiceAccount: sheets.ServiceAccountEmail(settings.CredentialsFile),
	}

	router := cmdroute.NewRouter()
	router.Use(cmdroute.Deferrable(session, cmdroute.DeferOpts{
		Flags: discord.EphemeralMessage,
	}))
	handler.Register(router)

	session.AddInteractionHandler(router)
	session.AddHandler(func(ev *gateway.ReadyEvent) {
		slog.Info(
			"This bot is online. It is preparing to serve.",
			"bot_id", ev.User.ID,
			"bot_name", ev.User.Tag(),
			"guilds", len(ev.Guilds))

		if err := cmdroute.OverwriteCommands(session, commands.Commands); err != nil {
			slog.Error(
				"Bot has failed to register its slash commands.",
				"err", err)
			return
		}

		slog.Info(
			"Bot has registered its slash commands. It is now ready to serve.",
			"commands", len(commands.Commands))
	})

	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		slog.Debug("Bot is now connecting to Discord.")
		return session.Connect(ctx)
	})

	errg.Go(func() error {
		// Establish the baseline right away instead of waiting for the
		// first tick.
		if _, err := checker.Run(ctx); err != nil {
			slog.Warn(
				"Bot could not run its initial check.",
				"err", err)
		}

		scheduler.Start()
		slog.Info(
			"Bot has started checking for hackathons on a schedule.",
			"schedule", settings.CheckSchedule,
			"timezone", settings.location.String())

		<-ctx.Done()

		slog.Debug("Bot is waiting for the running check to finish.")
		<-scheduler.Stop().Done()
		return nil
	})

	if settings.HTTPAddr != "" {
		errg.Go(func() error {
			return status.Serve(ctx, settings.HTTPAddr, checker)
		})
	}

	if err := errg.Wait(); err != nil {
		// Try to extract the cause of the cancellation, if any.
		if cause := context.Cause(ctx); cause != nil && cause != ctx.Err() {
			err = cause
		}

		slog.Error(
			"Bot has been stopped.",
			"err", err)
		return 1
	}

	return 0
}

func closeDatabase(name string, db io.Closer) {
	if err := db.Close(); err != nil {
		slog.Warn(
			"Bot could not close a database cleanly.",
			"database", name,
			"err", err)
	}
}
