package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/sendrec/chaptersync/internal/cart"
	"github.com/sendrec/chaptersync/internal/chapter"
	"github.com/sendrec/chaptersync/internal/config"
	"github.com/sendrec/chaptersync/internal/database"
	"github.com/sendrec/chaptersync/internal/email"
	"github.com/sendrec/chaptersync/internal/geoip"
	"github.com/sendrec/chaptersync/internal/notify"
	"github.com/sendrec/chaptersync/internal/playback"
	"github.com/sendrec/chaptersync/internal/server"
	"github.com/sendrec/chaptersync/internal/session"
	slackpkg "github.com/sendrec/chaptersync/internal/slack"
	"github.com/sendrec/chaptersync/internal/storage"
	webhookpkg "github.com/sendrec/chaptersync/internal/webhook"
)

const (
	signedURLExpiry = time.Hour
	reaperInterval  = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration failed: %v", err)
	}

	page, err := chapter.Load(cfg.ChaptersFile)
	if err != nil {
		log.Fatalf("chapter configuration failed: %v", err)
	}
	index, err := page.Index()
	if err != nil {
		log.Fatalf("chapter index failed: %v", err)
	}
	log.Printf("loaded %d chapters for %s (%s variant)", index.Len(), page.MediaID, page.Variant)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var dbtx database.DBTX
	var pinger server.Pinger
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()

		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatalf("database migration failed: %v", err)
		}
		log.Println("database migrations applied")
		dbtx = db.Pool
		pinger = db
	} else {
		log.Println("DATABASE_URL not set, sessions and orders will not be persisted")
	}

	var signer playback.URLSigner
	if cfg.StorageEnabled() {
		store, err := storage.New(ctx, storage.Config{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			Bucket:         cfg.S3Bucket,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Region:         cfg.S3Region,
		})
		if err != nil {
			log.Fatalf("storage initialization failed: %v", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Fatalf("storage bucket check failed: %v", err)
		}
		missing, err := store.MissingObjects(ctx, objectKeys(page))
		if err != nil {
			log.Printf("storage object check failed: %v", err)
		}
		for _, key := range missing {
			log.Printf("warning: object %q referenced by the chapter configuration does not exist", key)
		}
		log.Println("storage bucket ready")
		signer = store
	}
	resolver := playback.NewStorageResolver(signer, signedURLExpiry)
	var images playback.AddressResolver
	if signer != nil {
		images = resolver
	}

	geo, err := geoip.New(cfg.GeoIPDBPath)
	if err != nil {
		log.Fatalf("geoip initialization failed: %v", err)
	}
	defer func() { _ = geo.Close() }()

	sessions := session.NewManager(session.Config{
		MediaID:      page.MediaID,
		Index:        index,
		Catalog:      cart.NewCatalog(page.Items),
		NewActivator: activatorFactory(page.Variant, resolver, cfg.EmphasisDuration),
		Secret:       cfg.SessionSecret,
		PollInterval: cfg.PollInterval,
		DB:           dbtx,
		Geo:          geo,
	})

	orders := cart.NewOrderService(dbtx)
	var hook, slackNotifier, mailer cart.OrderNotifier
	if cfg.OrderWebhookURL != "" {
		hook = webhookpkg.New(dbtx, cfg.OrderWebhookURL, cfg.OrderWebhookSecret)
		log.Println("order webhook enabled")
	}
	if cfg.SlackWebhookURL != "" {
		slackNotifier = slackpkg.New(cfg.SlackWebhookURL)
		log.Println("slack order notifications enabled")
	}
	if cfg.ListmonkURL != "" {
		mailer = email.New(email.Config{
			BaseURL:    cfg.ListmonkURL,
			Username:   cfg.ListmonkUser,
			Password:   cfg.ListmonkPassword,
			TemplateID: cfg.ListmonkTemplateID,
			To:         cfg.OrderEmailTo,
		})
		log.Println("order email notifications enabled")
	}
	if notifiers := notify.NewMultiOrderNotifier(hook, slackNotifier, mailer); notifiers.Len() > 0 {
		orders.SetNotifier(notifiers)
	}

	srv := server.New(server.Config{
		Pinger:          pinger,
		Sessions:        sessions,
		Orders:          orders,
		Page:            page,
		Images:          images,
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.S3PublicEndpoint,
		FrameHosts:      frameHosts(page, cfg.AllowedFrameHosts),
		EnableDocs:      cfg.EnableDocs,
	})
	defer srv.Close()

	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	defer reaperCancel()
	sessions.StartReaper(reaperCtx, reaperInterval, cfg.SessionIdleTimeout)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("chaptersync listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	// Closing sessions ends open event streams, which Shutdown would otherwise wait on.
	sessions.CloseAll(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
	log.Println("shutdown complete")
}

// activatorFactory returns the per-session activator constructor for variant.
func activatorFactory(variant chapter.Variant, resolver playback.AddressResolver, emphasis time.Duration) func() playback.Activator {
	if variant == chapter.VariantFrame {
		return func() playback.Activator { return playback.NewFrameActivator(resolver) }
	}
	return func() playback.Activator { return playback.NewScrollActivator(emphasis) }
}

// objectKeys lists the object-storage keys the page refers to.
func objectKeys(page *chapter.Config) []string {
	var keys []string
	add := func(ref string) {
		if key, ok := strings.CutPrefix(ref, chapter.ObjectPrefix); ok && !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	if page.Variant == chapter.VariantFrame {
		for _, ch := range page.Chapters {
			add(ch.Target)
		}
	}
	for _, it := range page.Items {
		add(it.Image)
	}
	return keys
}

// frameHosts collects the origins of URL frame targets and catalog images,
// plus any extra comma-separated origins.
func frameHosts(page *chapter.Config, extra string) []string {
	var hosts []string
	add := func(origin string) {
		if origin != "" && !slices.Contains(hosts, origin) {
			hosts = append(hosts, origin)
		}
	}
	if page.Variant == chapter.VariantFrame {
		for _, ch := range page.Chapters {
			add(originOf(ch.Target))
		}
	}
	for _, it := range page.Items {
		add(originOf(it.Image))
	}
	for _, h := range strings.Split(extra, ",") {
		add(strings.TrimSpace(h))
	}
	return hosts
}

func originOf(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
