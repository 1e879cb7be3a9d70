package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/xeptore/skylocker/config"
	"github.com/xeptore/skylocker/constant"
	"github.com/xeptore/skylocker/locker"
	"github.com/xeptore/skylocker/locker/fs"
	"github.com/xeptore/skylocker/locker/upload"
	"github.com/xeptore/skylocker/log"
)

func main() {
	logger := log.NewDefault()

	//nolint:exhaustruct
	app := &cli.Command{
		Name:    "skylocker",
		Version: constant.Version,
		Metadata: map[string]any{
			"compiled_at": constant.CompileTime,
		},
		Suggest:                    true,
		Usage:                      "Remote media locker client",
		EnableShellCompletion:      true,
		ShellCompletionCommandName: "shell-completion",
		AllowExtFlags:              false,
		Flags: []cli.Flag{
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:     "config",
				Usage:    "Config file path",
				Required: false,
			},
		},
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:      "login",
				Usage:     "Exchange an authorization code for locker credentials",
				ArgsUsage: "<code>",
				Action:    login,
			},
			//nolint:exhaustruct
			{
				Name:   "sync",
				Usage:  "Pull the remote catalog into the local index",
				Action: syncLibrary,
			},
			//nolint:exhaustruct
			{
				Name:      "upload",
				Usage:     "Upload local tracks to the locker",
				ArgsUsage: "<file>...",
				Action:    uploadTracks,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			os.Exit(1)
		}

		var exitCode exitCodeError
		if errors.As(err, &exitCode) {
			os.Exit(int(exitCode))
		}

		logger.Error().Err(err).Msg("Application exited with error")
		os.Exit(10)
	}
}

type exitCodeError int

func (e exitCodeError) Error() string {
	return "error with exit code: " + strconv.Itoa(int(e))
}

func newClient(ctx context.Context, cmd *cli.Command) (*locker.Client, zerolog.Logger, error) {
	conf, err := config.Load(cmd.String("config"))
	if nil != err {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %v", err)
	}

	logger := log.FromConfig(conf.Log)
	logger.Debug().Dict("config", conf.ToDict()).Msg("Config loaded")

	client, err := locker.NewClient(ctx, conf.Locker)
	if nil != err {
		return nil, logger, fmt.Errorf("create locker client: %v", err)
	}

	return client, logger, nil
}

func login(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := cmd.Args().First()
	if code == "" {
		return errors.New("authorization code argument is required")
	}

	client, logger, err := newClient(ctx, cmd)
	if nil != err {
		return err
	}
	defer func() {
		if closeErr := client.Close(); nil != closeErr {
			logger.Error().Err(closeErr).Msg("Failed to close locker client")
		}
	}()

	if err := client.TryLogin(ctx, logger, code); nil != err {
		if errors.Is(err, locker.ErrUnauthorized) {
			logger.Error().Msg("Authorization code was rejected. Request a fresh one and retry.")
			return exitCodeError(2)
		}

		return fmt.Errorf("login: %w", err)
	}

	logger.Info().Msg("Logged in successfully")

	return nil
}

func syncLibrary(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, logger, err := newClient(ctx, cmd)
	if nil != err {
		return err
	}
	defer func() {
		if closeErr := client.Close(); nil != closeErr {
			logger.Error().Err(closeErr).Msg("Failed to close locker client")
		}
	}()

	if !client.IsAuthenticated() {
		logger.Error().Msg("Not logged in. Run the login command first.")
		return exitCodeError(2)
	}

	err = client.TrySyncLibrary(ctx, logger, func(fraction float64) {
		logger.Info().Int("percent", int(fraction*100)).Msg("Sync progress")
	})
	if nil != err {
		if errors.Is(err, locker.ErrLoginRequired) {
			logger.Error().Msg("Stored credentials are no longer valid. Run the login command again.")
			return exitCodeError(2)
		}

		return fmt.Errorf("sync library: %w", err)
	}

	lib := client.Library()
	lib.Mux.Lock()
	songs, playlists := len(lib.Songs), len(lib.Playlists)
	lib.Mux.Unlock()

	logger.Info().Int("songs", songs).Int("playlists", playlists).Msg("Library synced")

	return nil
}

func uploadTracks(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("at least one track file argument is required")
	}

	client, logger, err := newClient(ctx, cmd)
	if nil != err {
		return err
	}
	defer func() {
		if closeErr := client.Close(); nil != closeErr {
			logger.Error().Err(closeErr).Msg("Failed to close locker client")
		}
	}()

	if !client.IsAuthenticated() {
		logger.Error().Msg("Not logged in. Run the login command first.")
		return exitCodeError(2)
	}

	tracks := make([]upload.Track, 0, len(paths))
	for _, path := range paths {
		file := fs.TrackFileFrom(path)
		if exists, err := file.Exists(); nil != err {
			return fmt.Errorf("check track file: %w", err)
		} else if !exists {
			logger.Error().Str("path", path).Msg("Track file does not exist")
			return exitCodeError(3)
		}

		name := filepath.Base(path)
		tracks = append(tracks, upload.Track{ //nolint:exhaustruct
			ClientID: uuid.NewString(),
			File:     file,
			Title:    name[:len(name)-len(filepath.Ext(name))],
		})
	}

	result, err := client.TryUploadTracks(ctx, logger, tracks)
	if nil != err {
		if errors.Is(err, locker.ErrLoginRequired) {
			logger.Error().Msg("Stored credentials are no longer valid. Run the login command again.")
			return exitCodeError(2)
		}

		return fmt.Errorf("upload tracks: %w", err)
	}

	logger.Info().
		Int("uploaded", len(result.Uploaded)).
		Int("matched", len(result.Matched)).
		Int("skipped", len(tracks)-len(result.Uploaded)-len(result.Matched)).
		Msg("Upload batch finished")

	return nil
}
