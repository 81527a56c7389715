package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anivault/anivault/internal/catalog"
	"github.com/anivault/anivault/internal/output"
	"github.com/anivault/anivault/internal/scheduler"
	"github.com/anivault/anivault/internal/store"
	"github.com/anivault/anivault/internal/utils"
)

var (
	configPath    string
	apiBaseURL    string
	downloadsRoot string
	userAgent     string
	timeout       time.Duration
	proxyURL      string
	headers       []string
	debug         bool
)

var AnivaultVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "anivault",
	Short:   "Anivault queues episodes for offline viewing",
	Version: AnivaultVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api", "", "Catalog API base URL")
	rootCmd.PersistentFlags().StringVarP(&downloadsRoot, "root", "r", "", "Downloads root directory")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", "", "User agent ('randomize' picks a browser UA)")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 0, "Connection timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newRetryCmd())
	rootCmd.AddCommand(newCancelCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newCleanCmd())
}

// resolveConfig merges defaults, config file, and flags (highest precedence).
func resolveConfig() (Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %v", err)
	}
	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	if downloadsRoot != "" {
		cfg.DownloadsRoot = downloadsRoot
	}
	if userAgent != "" {
		cfg.UserAgent = userAgent
	}
	if timeout != 0 {
		cfg.Timeout = timeout
	}
	if proxyURL != "" {
		cfg.ProxyURL = proxyURL
	}
	if cfg.UserAgent == "randomize" {
		cfg.UserAgent = utils.GetRandomUserAgent()
	}
	return cfg, nil
}

type app struct {
	cfg   Config
	sched *scheduler.Scheduler
	mgr   *output.Manager
	st    store.Store
}

func newApp(withDisplay bool) (*app, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(filepath.Join(cfg.DownloadsRoot, ".anivault", "state.db"))
	if err != nil {
		return nil, fmt.Errorf("error opening record store: %v", err)
	}
	client := utils.NewVaultHTTPClient(utils.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		ProxyURL:  cfg.ProxyURL,
		UserAgent: cfg.UserAgent,
		Headers:   utils.ParseHeaderArgs(headers),
	})
	var notifier scheduler.Notifier = scheduler.LogNotifier{}
	var mgr *output.Manager
	if withDisplay {
		mgr = output.NewManager()
		notifier = mgr
	}
	sched, err := scheduler.New(scheduler.Config{
		Store:         st,
		Source:        catalog.NewHTTPSource(cfg.APIBaseURL, client),
		Client:        client,
		Notifier:      notifier,
		DownloadsRoot: cfg.DownloadsRoot,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return &app{cfg: cfg, sched: sched, mgr: mgr, st: st}, nil
}

func (a *app) Close() {
	if err := a.st.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing record store: %v\n", err)
	}
}

// runQueue drives the scheduler until the queue drains or the user
// interrupts; Ctrl-C cancels the active transfer cooperatively.
func (a *app) runQueue() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if a.mgr != nil {
		// The display owns the terminal while it runs; log lines would
		// corrupt the redraw.
		if !debug {
			utils.SetLogOutput(io.Discard)
		}
		a.mgr.StartDisplay()
	}
	done := make(chan struct{})
	go func() {
		a.sched.Run(ctx)
		close(done)
	}()
	idle := make(chan struct{})
	go func() {
		a.sched.WaitIdle()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
	}
	stop()
	<-done
	if a.mgr != nil {
		a.mgr.StopDisplay()
	}
}
