package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"github.com/pranav271103/smart-scheduler-ai-agent/internal/console"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/integrations/gcal"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/integrations/gemini"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/integrations/paramstore"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/prefs"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/repository"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/schedule"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/usecase"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "scheduler",
		Usage: "Conversational assistant that finds a free slot and books the meeting.",
		Commands: []*cli.Command{
			authCommand(),
			chatCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with Google Calendar and store the API token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			config, err := gcal.OAuthConfig(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := gcal.ExchangeAuthCode(c.Context, config, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			tokenFile := envStr("GOOGLE_TOKEN_FILE", "token.json")
			if err := gcal.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start the scheduling conversation.",
		Action: func(c *cli.Context) error {
			logger := setupLogger(envStr("LOG_LEVEL", "info"))
			ctx := c.Context

			loc, err := time.LoadLocation(envStr("TIMEZONE", "Asia/Kolkata"))
			if err != nil {
				return fmt.Errorf("invalid timezone: %w", err)
			}

			planner := schedule.NewPlanner(loc)
			planner.DayStart = envMinutes("WORK_DAY_START", schedule.DefaultDayStartMinute)
			planner.DayEnd = envMinutes("WORK_DAY_END", schedule.DefaultDayEndMinute)
			planner.Granularity = envInt("SLOT_GRANULARITY_MINUTES", schedule.DefaultGranularityMinute)

			// Preference persistence: local JSON file by default, DynamoDB
			// when STATE_TABLE is set.
			var prefStore prefs.Store
			var turnStore usecase.TurnStore
			var turnLog *repository.Store
			if table := os.Getenv("STATE_TABLE"); table != "" {
				awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
				if err != nil {
					return fmt.Errorf("failed to load AWS config: %w", err)
				}
				repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), table, envStr("SCHEDULER_USER", "default"))
				if err != nil {
					return fmt.Errorf("failed to create state store: %w", err)
				}
				prefStore = repo
				turnStore = repo
				turnLog = repo
			} else {
				prefStore, err = prefs.NewFileStore(envStr("PREFS_FILE", "user_preferences.json"))
				if err != nil {
					return fmt.Errorf("failed to create preference store: %w", err)
				}
			}

			tracker, err := prefs.NewTracker(prefStore, logger)
			if err != nil {
				return fmt.Errorf("failed to create preference tracker: %w", err)
			}
			if err := tracker.Load(ctx); err != nil {
				return fmt.Errorf("failed to load preferences: %w", err)
			}

			// Gemini API key: environment, or SSM when PARAM_PREFIX is set.
			var llm *gemini.Client
			if prefix := os.Getenv("PARAM_PREFIX"); prefix != "" {
				awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
				if err != nil {
					return fmt.Errorf("failed to load AWS config: %w", err)
				}
				ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
				if err != nil {
					return fmt.Errorf("failed to create SSM client: %w", err)
				}
				llm, err = gemini.NewClient("", gemini.WithParamStore(ps, prefix))
				if err != nil {
					return fmt.Errorf("failed to create gemini client: %w", err)
				}
			} else {
				llm, err = gemini.NewClient(os.Getenv("GEMINI_API_KEY"))
				if err != nil {
					return fmt.Errorf("failed to create gemini client: %w", err)
				}
			}

			// Calendar authentication failure at startup is fatal; it
			// cannot be recovered inside a conversation.
			calendarClient, err := gcal.NewClient(ctx, logger,
				os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"),
				envStr("GOOGLE_TOKEN_FILE", "token.json"),
				envStr("CALENDAR_ID", "primary"), loc)
			if err != nil {
				logger.Error("calendar authentication failed", "err", err)
				os.Exit(1)
			}

			controller, err := usecase.NewController(llm, calendarClient, tracker, turnStore, planner, logger, usecase.Config{
				Model:           envStr("GEMINI_MODEL", "gemini-1.5-flash-latest"),
				DefaultDuration: envInt("DEFAULT_DURATION_MINUTES", 30),
				MaxAlternatives: envInt("MAX_ALTERNATIVES", 3),
				Language:        tracker.Preferences().PreferredLanguage,
				CallTimeout:     time.Duration(envInt("CALL_TIMEOUT_SECONDS", 0)) * time.Second,
			})
			if err != nil {
				return fmt.Errorf("failed to create dialogue controller: %w", err)
			}

			// Resume a hosted conversation with its recent context.
			if turnLog != nil {
				if turns, err := turnLog.RecentTurns(ctx, 10); err != nil {
					logger.Warn("could not load conversation history", "err", err)
				} else {
					controller.SeedHistory(turns)
				}
			}

			listenTimeout := time.Duration(envInt("LISTEN_TIMEOUT_SECONDS", 0)) * time.Second
			userIO := console.New(os.Stdin, os.Stdout, listenTimeout)
			return controller.Run(ctx, userIO)
		},
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envMinutes parses an "HH:MM" clock value into minutes from midnight.
func envMinutes(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return def
	}
	return t.Hour()*60 + t.Minute()
}
