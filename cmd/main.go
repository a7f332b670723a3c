package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/doccheck/internal/logger"
	"github.com/xhad/doccheck/internal/types"
	"github.com/xhad/doccheck/pkg/analyzer"
	cfgPkg "github.com/xhad/doccheck/pkg/config"
	"github.com/xhad/doccheck/pkg/extract"
	"github.com/xhad/doccheck/pkg/ocr"
	"github.com/xhad/doccheck/pkg/provider"
	"github.com/xhad/doccheck/pkg/store"
	"github.com/xhad/doccheck/server"
)

type rootOptions struct {
	configPath  string
	apiKey      string
	logMode     string
	storeDriver string
	storeURL    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "doccheck",
		Short:         "Detect AI-generated content in PDF, DOCX and PPTX documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addRootFlags(root, opts)
	root.AddCommand(newServeCmd(opts), newAnalyzeCmd(opts))
	return root
}

func addRootFlags(cmd *cobra.Command, opts *rootOptions) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config file")
	flags.StringVar(&opts.apiKey, "api-key", "", "Provider API key (overrides AIORNOT_API_KEY)")
	flags.StringVar(&opts.logMode, "log-mode", "", "Log mode: development or production")
	flags.StringVar(&opts.storeDriver, "store", "", "Message store driver: postgres, sqlite or none")
	flags.StringVar(&opts.storeURL, "db-url", "", "Message store connection string or sqlite path")
}

// loadConfig reads the config file, applies flag overrides and validates the result.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*cfgPkg.Config, error) {
	cfg, err := cfgPkg.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-key") {
		cfg.Provider.APIKey = opts.apiKey
	}
	if flags.Changed("log-mode") {
		cfg.Log.Mode = opts.logMode
	}
	if flags.Changed("db-url") {
		cfg.Store.URL = opts.storeURL
		if !flags.Changed("store") && cfg.Store.Driver == store.DriverNone {
			cfg.Store.Driver = store.DriverPostgres
		}
	}
	if flags.Changed("store") {
		cfg.Store.Driver = opts.storeDriver
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return cfg, nil
}

// buildAnalyzer wires the OCR engine, converter, extractor, provider client and message store.
// The returned store is nil when persistence is disabled.
func buildAnalyzer(ctx context.Context, cfg *cfgPkg.Config, log *logger.Logger) (*analyzer.Analyzer, types.MessageStore, error) {
	runner := ocr.NewExecRunner(log)
	engine := ocr.NewEngine(ocr.Config{
		Tesseract:   cfg.OCR.Tesseract,
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Language:    cfg.OCR.Language,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		Workers:     cfg.OCR.Workers,
		PageWorkers: cfg.OCR.PageWorkers,
	}, runner, log)
	extractor := extract.New(engine, extract.NewConverter(runner, cfg.Convert.Soffice, log), log)

	client, err := provider.NewWithConfig(provider.ClientConfig{
		TextURL:     cfg.Provider.TextURL,
		ImageURL:    cfg.Provider.ImageURL,
		APIKey:      cfg.Provider.APIKey,
		Timeout:     cfg.Provider.Timeout,
		MaxAttempts: cfg.Provider.MaxAttempts,
		BackoffBase: cfg.Provider.BackoffBase,
		RateLimit:   cfg.Provider.RateLimit,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize provider client: %w", err)
	}

	st, err := store.New(ctx, cfg.Store.Driver, cfg.Store.URL, cfg.Store.TableName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize message store: %w", err)
	}

	a := analyzer.New(analyzer.Config{
		MaxCharsPerChunk:    cfg.Analysis.MaxCharsPerChunk,
		MaxCharsCap:         cfg.Analysis.MaxCharsCap,
		MinCharsRequired:    cfg.Analysis.MinCharsRequired,
		OCRForPDF:           cfg.OCRForPDFEnabled(),
		OCRForOfficeImages:  cfg.Analysis.OCRForOfficeImages,
		OfficeLegacyConvert: cfg.Analysis.OfficeLegacyConvert,
		DefaultLanguage:     cfg.Analysis.DefaultLanguage,
		MaxUploadBytes:      cfg.MaxUploadBytes(),
	}, extractor, client, st, log)
	return a, st, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, st, err := buildAnalyzer(ctx, cfg, log)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			log.Info("starting doccheck",
				"addr", cfg.Server.Addr,
				"store", cfg.Store.Driver,
				"max_upload_mb", cfg.Server.MaxUploadMB,
				"api_key", cfg.Provider.APIKey,
			)
			srv := server.New(server.Config{
				Addr:           cfg.Server.Addr,
				MaxUploadBytes: cfg.MaxUploadBytes(),
			}, a, log)
			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr and PORT)")
	return cmd
}
