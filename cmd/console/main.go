// Command site-console is the terminal admin console: pick a content kind,
// watch its collection live and add, edit, moderate or delete documents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/higai/site-admin/internal/config"
	"github.com/higai/site-admin/internal/content"
	"github.com/higai/site-admin/internal/content/service"
	"github.com/higai/site-admin/internal/database"
	"github.com/higai/site-admin/internal/media"
	"github.com/higai/site-admin/pkg/logger"
)

const banner = `
  ┌─┐┬┌┬┐┌─┐  ┌─┐┌─┐┌┐┌┌─┐┌─┐┬  ┌─┐
  └─┐│ │ ├┤   │  │ ││││└─┐│ ││  ├┤
  └─┘┴ ┴ └─┘  └─┘└─┘┘└┘└─┘└─┘┴─┘└─┘
`

var kindFlag string

var rootCmd = &cobra.Command{
	Use:          "site-console",
	Short:        "Interactive content admin console",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&kindFlag, "kind", "k", "", "content kind to open on start (blogs, services, ourwork, careers, contact, testimonials)")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := logger.InitWithFile(cfg.Log.Level, cfg.Log.FileOptions()); err != nil {
		return err
	}
	if cfg.Log.File == "" {
		// keep log lines off the prompt
		logger.SetOutput(os.Stderr)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	svc, closeStore, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	enc := media.NewEncoder(media.WithMaxBytes(cfg.Media.MaxInlineBytes))
	sh := newShell(ctx, svc, enc, cmd.InOrStdin(), cmd.OutOrStdout())
	defer sh.close()

	color.New(color.FgCyan).Fprint(cmd.OutOrStdout(), banner)
	fmt.Fprintln(cmd.OutOrStdout(), "Type 'help' for commands.")
	if kindFlag != "" {
		k, err := content.ParseKind(kindFlag)
		if err != nil {
			return err
		}
		sh.use(k)
	}
	return sh.loop()
}

func openService(ctx context.Context, cfg *config.Config) (service.Service, func(), error) {
	opts := []service.Option{service.WithOpTimeout(cfg.Server.StoreOpTimeout)}
	if !cfg.MongoDB.Enabled() {
		logger.Warnf("MONGODB_URI not set; using an empty in-memory store")
		return service.NewMemoryService(opts...), func() {}, nil
	}
	client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, database.DefaultRetry)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewMongoService(client.Database(cfg.MongoDB.Database), cfg.MongoDB.FeedPollInterval, opts...)
	return svc, func() { _ = client.Disconnect(context.Background()) }, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
