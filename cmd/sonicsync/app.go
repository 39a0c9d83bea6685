package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/llehouerou/sonicsync/internal/config"
	"github.com/llehouerou/sonicsync/internal/downloader"
	"github.com/llehouerou/sonicsync/internal/fingerprint"
	"github.com/llehouerou/sonicsync/internal/lastfm"
	"github.com/llehouerou/sonicsync/internal/librarycache"
	"github.com/llehouerou/sonicsync/internal/lidarr"
	"github.com/llehouerou/sonicsync/internal/logger"
	"github.com/llehouerou/sonicsync/internal/musicbrainz"
	"github.com/llehouerou/sonicsync/internal/objcache"
	"github.com/llehouerou/sonicsync/internal/reconcile"
	"github.com/llehouerou/sonicsync/internal/slskd"
	"github.com/llehouerou/sonicsync/internal/source"
	"github.com/llehouerou/sonicsync/internal/store"
	"github.com/llehouerou/sonicsync/internal/subsonic"
	"github.com/llehouerou/sonicsync/internal/worker"
)

const (
	libraryCacheFile = "subsonic_cache.json"
	objectCacheFile  = "spotify_object_cache.json"
	downloadQueueLen = 256
)

// app holds the wired collaborators for one command invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	library *subsonic.Client
	cache   *librarycache.Cache
	source  *source.Client
	objects *objcache.Cache[source.Object]
	slskd   *slskd.Client
	engine  *reconcile.Engine

	queues []*worker.Queue
}

// newApp loads the configuration and builds every configured service.
// Queues are started with ctx; call close to drain them.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg
	if !cfg.HasSubsonicConfig() {
		return errors.New("subsonic is not configured (SUBSONIC_API_HOST, SUBSONIC_API_USER)")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = st

	a.library = subsonic.NewClient(cfg.SubsonicURL(), cfg.Subsonic.User, cfg.Subsonic.Password)

	a.cache = librarycache.New(a.library, filepath.Join(cfg.CacheDir, libraryCacheFile), a.logger.Named("library"))
	if err := a.cache.Load(); err != nil {
		a.logger.Warn("library cache not loaded", zap.Error(err))
	}

	resolver := fingerprint.NewResolver(musicbrainz.NewClient(), a.logger.Named("fingerprint"))
	if cfg.HasLastfmConfig() {
		resolver.SetFallback(lastfm.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret))
	}

	deps := reconcile.Deps{
		Library:  a.library,
		Cache:    a.cache,
		Resolver: resolver,
		Store:    a.store,
		Logger:   a.logger.Named("reconcile"),
	}

	if cfg.HasSpotifyConfig() {
		a.source = source.New(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.Market)
		if err := a.initObjects(ctx); err != nil {
			return err
		}
		deps.Objects = a.objects
	}

	if cfg.HasSlskdConfig() {
		a.slskd = slskd.NewClient(cfg.Slskd.URL, cfg.Slskd.APIKey)
		q := a.startQueue(ctx, "downloads", downloadQueueLen)
		deps.Downloader = downloader.NewSlskd(a.slskd, q, cfg.Slskd.Format, a.logger.Named("downloader"))
	}

	if cfg.HasLidarrConfig() {
		deps.Monitor = lidarr.NewClient(cfg.LidarrURL(), cfg.Lidarr.APIKey)
	}

	a.engine, err = reconcile.New(deps, reconcile.Options{
		Fuzzy:          cfg.Matching.Fuzzy,
		ExcludedWords:  cfg.Matching.ExcludedWords,
		PlaylistPrefix: cfg.PlaylistPrefix,
	})
	return err
}

func (a *app) initObjects(ctx context.Context) error {
	occ := a.cfg.GetObjectCacheConfig()
	objects, err := objcache.New[source.Object](objcache.Config{
		Name:       "spotify-objects",
		MaxEntries: occ.MaxEntries,
		TTL:        time.Duration(occ.TTLHours) * time.Hour,
		Path:       filepath.Join(a.cfg.CacheDir, objectCacheFile),
		Queue:      a.startQueue(ctx, "objects", 0),
		Logger:     a.logger.Named("objects"),
	}, a.source.GetObject)
	if err != nil {
		return err
	}
	if err := objects.Load(); err != nil {
		a.logger.Warn("object cache not loaded", zap.Error(err))
	}
	a.objects = objects
	return nil
}

func (a *app) startQueue(ctx context.Context, name string, size int) *worker.Queue {
	q := worker.NewQueue(name, size, a.logger)
	q.Start(ctx)
	a.queues = append(a.queues, q)
	return q
}

func (a *app) requireSource() error {
	if a.source == nil {
		return errors.New("spotify is not configured (SPOTIPY_CLIENT_ID, SPOTIPY_CLIENT_SECRET)")
	}
	return nil
}

// close drains the background queues, then releases the store.
func (a *app) close() {
	for _, q := range a.queues {
		if n := q.Len(); n > 0 {
			a.logger.Info("waiting for background tasks", zap.Int("pending", n))
		}
		q.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("close store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
