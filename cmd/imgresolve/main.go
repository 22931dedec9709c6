// Command imgresolve resolves image identifiers to loadable URLs through a two-tier cache.
//
//	imgresolve -config imgcache.yaml id1 id2 ...
//
// One line is printed per identifier, in order. With http.listen set the process keeps
// serving /metrics and materialized blobs until interrupted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/imgcache"
	"github.com/unkn0wn-root/imgcache/codec"
	"github.com/unkn0wn-root/imgcache/config"
	asynchook "github.com/unkn0wn-root/imgcache/hooks/async"
	zaplog "github.com/unkn0wn-root/imgcache/log/zap"
	"github.com/unkn0wn-root/imgcache/promhooks"
	pr "github.com/unkn0wn-root/imgcache/provider"
	bcprovider "github.com/unkn0wn-root/imgcache/provider/bigcache"
	"github.com/unkn0wn-root/imgcache/provider/file"
	redisprovider "github.com/unkn0wn-root/imgcache/provider/redis"
	rprovider "github.com/unkn0wn-root/imgcache/provider/ristretto"
	s3provider "github.com/unkn0wn-root/imgcache/provider/s3"
	"github.com/unkn0wn-root/imgcache/resolve"
	"github.com/unkn0wn-root/imgcache/versionstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "imgresolve:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath = flag.String("config", "", "YAML configuration file")
		asJSON  = flag.Bool("json", false, "print results as JSON lines")
		forget  = flag.Bool("forget", false, "drop the cached group before resolving")
	)
	flag.Parse()

	cfg := config.NewDefault()
	if *cfgPath != "" {
		if err := cfg.LoadFromFile(*cfgPath); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	zl, err := newZap(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := zaplog.Logger{L: zl}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := promhooks.New(reg, cfg.HTTP.Namespace)
	if err != nil {
		return err
	}
	hooks := asynchook.New(metrics, metrics, 1, 4096)
	defer hooks.Close()

	var rdb goredis.UniversalClient
	if cfg.Cache.Durable.Kind == config.DurableRedis {
		rc := cfg.Cache.Durable.Redis
		rdb = goredis.NewClient(&goredis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	}

	durable, err := newProvider(ctx, cfg.Cache.Durable, rdb)
	if err != nil {
		return err
	}
	cdc, err := newCodec(cfg.Cache)
	if err != nil {
		return err
	}
	store, err := imgcache.New[resolve.Resource](imgcache.Options[resolve.Resource]{
		Provider: durable,
		Codec:    cdc,
		Prefix:   cfg.Cache.Prefix,
		Logger:   logger,
		Hooks:    hooks,
	})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	var marks versionstore.Store = versionstore.NewLocal()
	if rdb != nil {
		marks = versionstore.NewRedisWithTTL(rdb, cfg.Cache.Prefix+cfg.Cache.Group, cfg.Cache.Durable.Redis.MarkerTTL)
	}
	defer func() { _ = marks.Close(context.Background()) }() // owns rdb
	invalidated, err := imgcache.Bootstrap(ctx, store, marks, cfg.Version)
	if err != nil {
		zl.Warn("build marker not saved", zap.Error(err))
	}
	zl.Info("cache ready",
		zap.String("durable", cfg.Cache.Durable.Kind),
		zap.String("version", cfg.Version),
		zap.Bool("invalidated", invalidated))

	blobBase := ""
	if cfg.HTTP.Listen != "" {
		blobBase = "http://" + cfg.HTTP.Listen + cfg.HTTP.BlobPath
	}
	blobs := resolve.NewBlobStore(blobBase)
	r := resolve.New(resolve.Options{
		Timeout:               cfg.Resolver.Timeout,
		MaterializeTimeout:    cfg.Resolver.MaterializeTimeout,
		Credential:            cfg.Resolver.APIKey,
		ThumbnailSize:         cfg.Resolver.ThumbnailSize,
		EarlyMaterializeAfter: cfg.Resolver.EarlyMaterializeAfter,
		Materializer:          resolve.HTTPMaterializer{MaxBytes: cfg.Resolver.MaxBytes},
		Blobs:                 blobs,
		Logger:                logger,
		Hooks:                 hooks,
	})
	cached := resolve.NewCached(r, store, resolve.CachedOptions{
		Group:    cfg.Cache.Group,
		TTL:      cfg.Cache.TTL,
		Version:  cfg.Version,
		GuessTTL: cfg.Cache.GuessTTL,
		Logger:   logger,
	})
	if *forget {
		cached.ForgetGroup(ctx)
	}

	items := make([]resolve.Item, 0, flag.NArg())
	for _, id := range flag.Args() {
		items = append(items, resolve.Item{ID: id})
	}
	enc := json.NewEncoder(os.Stdout)
	for _, res := range cached.ResolveAll(ctx, items) {
		if *asJSON {
			if err := enc.Encode(res); err != nil {
				return err
			}
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", res.ID, res.Kind, res.URL)
	}

	if cfg.HTTP.Listen == "" {
		return nil
	}
	return serve(ctx, cfg.HTTP, reg, blobs, zl)
}

func serve(ctx context.Context, hc config.HTTPConfig, reg *prometheus.Registry, blobs *resolve.BlobStore, zl *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(hc.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.Handle(hc.BlobPath, blobs)

	srv := &http.Server{
		Addr:              hc.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	zl.Info("serving", zap.String("addr", hc.Listen))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func newZap(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func newProvider(ctx context.Context, dc config.DurableConfig, rdb goredis.UniversalClient) (pr.Provider, error) {
	switch dc.Kind {
	case config.DurableFile:
		return file.New(dc.File.Dir)
	case config.DurableRedis:
		return redisprovider.New(redisprovider.Config{Client: rdb})
	case config.DurableS3:
		return s3provider.New(ctx, s3provider.Config{
			Bucket:         dc.S3.Bucket,
			Root:           dc.S3.Root,
			Region:         dc.S3.Region,
			Endpoint:       dc.S3.Endpoint,
			ForcePathStyle: dc.S3.ForcePathStyle,
			MaxRetries:     dc.S3.MaxRetries,
		})
	case config.DurableBigCache:
		return bcprovider.New(bcprovider.Config{
			LifeWindow:         dc.BigCache.LifeWindow,
			HardMaxCacheSizeMB: dc.BigCache.HardMaxCacheSizeMB,
		})
	case config.DurableRistretto:
		return rprovider.New(rprovider.Config{
			NumCounters: dc.Ristretto.NumCounters,
			MaxCost:     dc.Ristretto.MaxCost,
			BufferItems: 64,
		})
	default:
		return nil, nil
	}
}

func newCodec(cc config.CacheConfig) (codec.Codec[resolve.Resource], error) {
	var inner codec.Codec[resolve.Resource]
	switch cc.Codec {
	case config.CodecMsgpack:
		inner = codec.Msgpack[resolve.Resource]{}
	case config.CodecCBOR:
		c, err := codec.NewCBOR[resolve.Resource](codec.CBOROptions{MaxArrayElements: 64})
		if err != nil {
			return nil, err
		}
		inner = c
	default:
		inner = codec.JSON[resolve.Resource]{}
	}
	if cc.MaxDecode > 0 {
		return codec.Limit[resolve.Resource]{Inner: inner, MaxDecode: cc.MaxDecode}, nil
	}
	return inner, nil
}
