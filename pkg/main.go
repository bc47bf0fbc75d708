package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pkg "git.solsynth.dev/hypernet/chatsync/pkg/internal"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/di"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

var rootCmd = &cobra.Command{
	Use:           "chatsync",
	Short:         "Developer console for the HyperNet message sync engine",
	Version:       pkg.AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		config, _ := cmd.Flags().GetString("config")
		return loadSettings(config)
	},
}

var tailCmd = &cobra.Command{
	Use:   "tail <scope>",
	Short: "Follow a conversation and send every line typed on stdin",
	Args:  cobra.ExactArgs(1),
	RunE:  runTail,
}

var sendCmd = &cobra.Command{
	Use:   "send <scope> <text>...",
	Short: "Send one message and wait until the server settles it",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chatsync v%s\n", pkg.AppVersion)
	},
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringP("config", "c", "", "settings file (default is settings.toml in . or ..)")
	rootCmd.AddCommand(tailCmd, sendCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("An error occurred when running command.")
		os.Exit(1)
	}
}

func loadSettings(path string) error {
	// A missing .env is fine, the settings file or the environment may carry everything.
	_ = godotenv.Load()

	viper.SetDefault("realtime.driver", "websocket")
	viper.SetDefault("realtime.nats_url", "nats://127.0.0.1:4222")
	viper.SetDefault("realtime.nats_subject", "messaging")
	viper.SetDefault("realtime.reconnect_min", "1s")
	viper.SetDefault("realtime.reconnect_max", "30s")
	viper.SetDefault("rest.timeout", "10s")
	viper.SetDefault("transfers.placeholder_total", 1)
	viper.SetDefault("transfers.stall_timeout", "2m")
	viper.SetDefault("schedules.flush_anchors", "@every 5s")
	viper.SetDefault("schedules.sweep_transfers", "@every 30s")
	viper.SetDefault("typing.interval", "3s")

	viper.SetEnvPrefix("CHATSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if len(path) > 0 {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.SetConfigName("settings")
		viper.SetConfigType("toml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("unable load settings: %v", err)
		}
		log.Warn().Msg("No settings file found, using environment only.")
	}
	return nil
}

// startApp builds the session, connects the real-time channel and starts
// the scheduled jobs. The returned function tears everything down.
func startApp(ctx context.Context) (*di.App, func(), error) {
	app, err := di.InitializeApp()
	if err != nil {
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		app.Connection.Run(runCtx)
	}()

	if err := app.Session.Start(); err != nil {
		cancel()
		<-finished
		return nil, nil, err
	}

	metrics := serveMetrics(viper.GetString("metrics.bind"))

	return app, func() {
		app.Session.Close()
		cancel()
		<-finished
		if metrics != nil {
			_ = metrics.Shutdown()
		}
	}, nil
}

func serveMetrics(bind string) *fiber.App {
	if len(bind) == 0 {
		return nil
	}
	server := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "HyperNet.ChatSync",
	})
	server.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	go func() {
		if err := server.Listen(bind); err != nil {
			log.Error().Err(err).Msg("An error occurred when serving metrics...")
		}
	}()
	return server
}

// waitConnected gives the real-time channel a moment to come up so the
// first sends do not all take the fallback path.
func waitConnected(realtime services.Realtime, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for !realtime.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}

func runTail(cmd *cobra.Command, args []string) error {
	scope, err := models.ParseScope(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, shutdown, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	waitConnected(app.Connection, 3*time.Second)

	conversation, err := app.Session.Open(ctx, scope)
	if err != nil {
		return err
	}
	for _, message := range conversation.Messages() {
		printMessage(message)
	}

	unobserve, err := conversation.Observe(func(change services.TimelineChange, store *services.TimelineStore) {
		switch change.Kind {
		case services.ChangeUpsert:
			for _, id := range change.IDs {
				if message, ok := store.Get(id); ok {
					printMessage(message)
				}
			}
		case services.ChangeRename:
			if message, ok := store.Get(change.IDs[1]); ok {
				printMessage(message)
			}
		case services.ChangeRemove:
			color.New(color.Faint).Printf("  - removed %s\n", strings.Join(change.IDs, ", "))
		}
	})
	if err != nil {
		return err
	}
	defer unobserve()

	unnotice, err := conversation.OnNotice(func(notice services.Notice) {
		if notice.Kind == services.NoticeRejected {
			color.Yellow("  ! %s", notice.Text)
		} else {
			color.Red("  ! %s", notice.Text)
		}
	})
	if err != nil {
		return err
	}
	defer unnotice()

	log.Info().Msgf("ChatSync v%s is following %s...", pkg.AppVersion, scope)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("ChatSync v%s is quitting...", pkg.AppVersion)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if len(strings.TrimSpace(line)) == 0 {
				continue
			}
			if _, _, err := conversation.Send(models.Draft{Text: line}); err != nil {
				log.Error().Err(err).Msg("An error occurred when sending message...")
			}
		}
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	scope, err := models.ParseScope(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("rest.timeout")+5*time.Second)
	defer cancel()

	app, shutdown, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	waitConnected(app.Connection, 3*time.Second)

	conversation, err := app.Session.Open(ctx, scope)
	if err != nil {
		return err
	}

	_, ticket, err := conversation.Send(models.Draft{Text: strings.Join(args[1:], " ")})
	if err != nil {
		return err
	}
	message, err := ticket.Wait(ctx)
	if services.IsContentRejected(err) {
		fmt.Println("The message was not sent because it goes against the community rules.")
		return nil
	} else if err != nil {
		return err
	}

	fmt.Printf("Sent %s via %s.\n", message.ID, ticket.Path())
	return nil
}

var statusColors = map[models.MessageStatus]*color.Color{
	models.MessageStatusComposing: color.New(color.FgYellow),
	models.MessageStatusSent:      color.New(color.FgWhite),
	models.MessageStatusDelivered: color.New(color.FgCyan),
	models.MessageStatusRead:      color.New(color.FgGreen),
}

func printMessage(message models.Message) {
	indicator := services.Indicator(message.Status, message.Receipts, message.RecipientTotal)
	content := message.Preview()
	if message.Kind != models.MessageKindText && message.Payload.Size > 0 {
		content = fmt.Sprintf("%s (%s)", content, humanize.Bytes(uint64(message.Payload.Size)))
	}
	fmt.Printf(
		"[%s] %s: %s  %s\n",
		humanize.Time(message.Timestamp),
		message.SenderID,
		content,
		statusColors[message.Status].Sprint(indicator.Label),
	)
}
