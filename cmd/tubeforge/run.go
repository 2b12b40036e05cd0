package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/entrhq/tubeforge/pkg/browser"
	"github.com/entrhq/tubeforge/pkg/config"
	"github.com/entrhq/tubeforge/pkg/engine"
	"github.com/entrhq/tubeforge/pkg/logging"
	"github.com/entrhq/tubeforge/pkg/prefs"
	"github.com/entrhq/tubeforge/pkg/segments"
)

const (
	sessionName  = "tubeforge"
	stopTimeout  = 5 * time.Second
	navigateWait = "domcontentloaded"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the browser and apply the enabled features until it closes",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Bool("headless", false, "Run the browser without a window")
	runCmd.Flags().String("url", "", "Start URL (overrides start_url)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless, _ = cmd.Flags().GetBool("headless")
	}
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		cfg.StartURL = u
	}

	logging.SetLogDirectory(cfg.Logging.Directory)
	logger, err := logging.NewLogger("tubeforge")
	if err != nil {
		pterm.Warning.Printfln("File logging disabled: %v", err)
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer ossignal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			pterm.Info.Println("Shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return run(ctx, cfg, logger)
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	store, err := prefs.NewFileStore(cfg.PreferencesPath)
	if err != nil {
		return err
	}
	logger.Infof("preferences: %s", store.Path())
	if p := logger.LogPath(); p != "" {
		pterm.Info.Printfln("Logging to %s", p)
	}

	manager := browser.NewSessionManager()
	spinner, _ := pterm.DefaultSpinner.Start("Starting browser...")
	if err := manager.Initialize(); err != nil {
		spinner.Fail("Browser failed to start")
		return err
	}
	defer func() {
		if err := manager.Shutdown(); err != nil {
			logger.Warnf("browser shutdown: %v", err)
		}
	}()

	session, err := manager.StartSession(sessionName, browser.SessionOptions{
		Headless:    cfg.Browser.Headless,
		Viewport:    &browser.Viewport{Width: cfg.Browser.Width, Height: cfg.Browser.Height},
		Timeout:     float64(cfg.Browser.Timeout.Milliseconds()),
		UserDataDir: cfg.Browser.UserDataDir,
	})
	if err != nil {
		spinner.Fail("Browser failed to start")
		return err
	}
	spinner.Success("Browser started")

	doc := browser.NewDocument(session.Page, logger.With("browser"))
	opts := featureOptions(cfg)
	eng, err := engine.New(engine.Deps{
		Doc:       doc,
		Player:    browser.NewPlayer(doc, opts.VideoSelector),
		Nav:       doc,
		Mutations: doc,
		Store:     store,
		Segments: segments.New(cfg.Segments.BaseURL,
			segments.WithCategories(cfg.Segments.Categories),
			segments.WithTTL(cfg.Segments.CacheTTL),
			segments.WithLogger(logger.With("segments")),
		),
		Logger:  logger,
		Options: opts,
	})
	if err != nil {
		return err
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- eng.Run(loopCtx) }()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	if err := session.Navigate(cfg.StartURL, browser.NavigateOptions{WaitUntil: navigateWait}); err != nil {
		return fmt.Errorf("open %s: %w", cfg.StartURL, err)
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}
	pterm.Success.Printfln("Customizing %s (close the window or press Ctrl+C to quit)", cfg.StartURL)

	select {
	case <-ctx.Done():
	case <-session.Done():
		pterm.Info.Println("Browser window closed")
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	if err := eng.Stop(stopCtx); err != nil {
		logger.Warnf("stop features: %v", err)
	}
	return nil
}
