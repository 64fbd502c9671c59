package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"smartchef/internal/app"
	"smartchef/internal/config"
	"smartchef/internal/database"
	"smartchef/internal/docstore"
	"smartchef/internal/generator"
	"smartchef/internal/identity"
	"smartchef/internal/llm"
	"smartchef/internal/logging"
	"smartchef/internal/metrics"
	"smartchef/internal/recipe"
	"smartchef/internal/server"
	"smartchef/internal/telegram"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Debug("No .env file found, using process environment")
	}
	for _, w := range cfg.Validate() {
		log.Warn(w)
	}

	cmd := "serve"
	args := []string{}
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	switch cmd {
	case "serve":
		if err := serve(cfg, log); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case "generate":
		if err := generate(cfg, log, args); err != nil {
			log.Fatalf("Generation failed: %v", err)
		}
	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(args)

		db, err := database.NewDB(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		affected, err := metrics.NewStore(db.SQL).Cleanup(context.Background(), *days)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)
	case "sessions-cleanup":
		cleanupCmd := flag.NewFlagSet("sessions-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Forget sign-ins not refreshed in the last N days")
		cleanupCmd.Parse(args)

		db, err := database.NewDB(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		cutoff := time.Now().AddDate(0, 0, -*days)
		affected, err := identity.NewSessionRepository(db.SQL).CleanupStale(context.Background(), cutoff)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Printf("Successfully removed %d stale sessions.\n", affected)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func serve(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	store, err := docstore.New(ctx, cfg, db.SQL, log)
	if err != nil {
		log.WithError(err).Warn("Document store unavailable, meal plans stay local to this server")
		store = nil
	}

	textGen, err := llm.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer textGen.Close()

	var auth identity.Authenticator
	if fa := identity.NewFirebaseAuth(cfg); fa != nil {
		auth = fa
	}

	metricsStore := metrics.NewStore(db.SQL)
	application := app.NewApp(app.Deps{
		Config:       cfg,
		Generator:    generator.New(textGen, log),
		Store:        store,
		Auth:         auth,
		Credentials:  identity.NewSessionRepository(db.SQL),
		MetricsStore: metricsStore,
		Logger:       log,
	})
	defer func() {
		if err := application.Close(); err != nil {
			log.WithError(err).Error("Failed to close application")
		}
	}()

	srv := server.New(cfg, application, log)
	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBot(cfg, application, metricsStore, log)
		if err != nil {
			log.WithError(err).Error("Telegram bot disabled")
		} else {
			srv.Mount(telegram.WebhookPath, bot)
			go bot.Run(ctx)
		}
	}

	go application.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	return nil
}

func generate(cfg *config.Config, log *logrus.Logger, args []string) error {
	genCmd := flag.NewFlagSet("generate", flag.ExitOnError)
	dietary := genCmd.String("dietary", "None", "Dietary preference")
	minutes := genCmd.Int("time", recipe.DefaultCookingMinutes, "Maximum cooking time in minutes")
	asJSON := genCmd.Bool("json", false, "Print recipes as JSON")
	genCmd.Parse(args)

	ctx := context.Background()
	textGen, err := llm.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer textGen.Close()

	res, err := generator.New(textGen, log).Generate(ctx, generator.Request{
		Ingredients: strings.Join(genCmd.Args(), " "),
		Dietary:     *dietary,
		MaxMinutes:  *minutes,
	})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Recipes)
	}

	if res.Fallback {
		fmt.Printf("(%s)\n\n", res.Notice)
	}
	for i, r := range res.Recipes {
		d := recipe.Decorate(r)
		fmt.Printf("%s %d. %s (%d min, %s)\n", d.Emoji, i+1, r.Name, r.CookingTimeMinutes, d.Difficulty.Level)
		fmt.Printf("   Ingredients: %s\n", strings.Join(r.Ingredients, ", "))
		for j, step := range r.Instructions {
			fmt.Printf("   %d. %s\n", j+1, step)
		}
		fmt.Println()
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: smartchef <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve              Serve the web app and API (default)")
	fmt.Println("  generate           Suggest recipes, e.g. generate -time 20 chicken, rice")
	fmt.Println("  metrics-cleanup    Remove old metric records")
	fmt.Println("  sessions-cleanup   Remove stale stored sign-ins")
}
