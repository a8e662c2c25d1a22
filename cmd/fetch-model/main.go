// Command fetch-model downloads the classifier checkpoint from Google Drive
// before the server starts.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Brownie44l1/wheat-api/internal/config"
	"github.com/Brownie44l1/wheat-api/internal/fetcher"
	"github.com/Brownie44l1/wheat-api/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], fetcher.DefaultDriveURL)
	stop()
	os.Exit(code)
}

// run fetches the checkpoint and returns the process exit status: 0 when
// there is nothing to fetch or the file was placed (wherever it ended up),
// 1 when the download failed, 2 on bad flags or configuration.
func run(ctx context.Context, args []string, driveURL string) int {
	flags := pflag.NewFlagSet("fetch-model", pflag.ContinueOnError)
	flags.String("id", "", "Drive file id or share URL (env GDRIVE_ID)")
	flags.String("dest", "", "final checkpoint path (env MODEL_PATH, default "+config.DefaultFetchDest+")")
	flags.String("tmp", "", "temporary download path (env FETCH_TMP_PATH, default "+config.DefaultFetchTmpPath+")")
	flags.Int("attempts", 0, "download attempts (env FETCH_ATTEMPTS, default 3)")
	flags.String("backoff", "", "pause between attempts (env FETCH_BACKOFF, default 1s)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.LoadFetcher(flags)
	if err != nil {
		log.Errorf("load config: %v", err)
		return 2
	}
	logging.Init(cfg.Logger)

	client := fetcher.NewDriveClient(driveURL, cfg.Timeout)
	client.Progress = os.Stderr

	res, err := fetcher.New(*cfg, client).Run(ctx)
	switch {
	case errors.Is(err, fetcher.ErrNoIdentifier):
		log.Info(err)
		log.Info("Set environment variable GDRIVE_ID to either the file id or a full share URL.")
		return 0
	case err != nil:
		log.Error(err)
		log.Error("Check: file is shared as 'Anyone with the link' and GDRIVE_ID is correct.")
		return 1
	}

	log.WithFields(log.Fields{
		"path":    res.Path,
		"outcome": res.Outcome.String(),
	}).Info("Done.")
	return 0
}
