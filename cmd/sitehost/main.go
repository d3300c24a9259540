package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	avatarapi "github.com/desain-gratis/sitehost/delivery/avatar-api"
	siteapi "github.com/desain-gratis/sitehost/delivery/site-api"
	"github.com/desain-gratis/sitehost/repository/blob"
	blob_gcs "github.com/desain-gratis/sitehost/repository/blob/gcs"
	blob_s3 "github.com/desain-gratis/sitehost/repository/blob/s3"
	limiter_redis "github.com/desain-gratis/sitehost/repository/limiter/redis"
	site_postgres "github.com/desain-gratis/sitehost/repository/site/postgres"
	avatar_handler "github.com/desain-gratis/sitehost/usecase/avatar/handler"
	"github.com/desain-gratis/sitehost/usecase/site/hosting"
	"github.com/desain-gratis/sitehost/utility/pg"
	"github.com/desain-gratis/sitehost/utility/session"
)

const sessionKeyID = "session-v1"

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Logger()
}

func main() {
	cfg := initConfig()

	router := httprouter.New()

	enableSiteHostingAPI(router, cfg)

	server := http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		// We received an interrupt signal, shut down.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Info().Msgf("Shutting down HTTP server..")
		if err := server.Shutdown(ctx); err != nil {
			// Error from closing listeners, or context timeout:
			log.Err(err).Msgf("HTTP server Shutdown")
		}
		log.Info().Msgf("Stopped serving new connections.")
		close(idleConnsClosed)
	}()

	log.Info().Msgf("Serving at %v..\n", cfg.HTTP.Address)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		// Error starting or closing listener:
		log.Fatal().Msgf("HTTP server ListendAndServe: %v", err)
	}

	<-idleConnsClosed
	log.Info().Msgf("Bye bye")
}

func enableSiteHostingAPI(router *httprouter.Router, cfg Config) {
	connString := fmt.Sprintf("user=%s dbname=%s sslmode=%s password=%s host=%s",
		cfg.Postgres.User,
		cfg.Postgres.DatabaseName,
		cfg.Postgres.SSLMode,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
	)

	db, err := pg.GetConnection(connString)
	if err != nil {
		log.Fatal().Msgf("failed to connect postgres db: %v", err)
	}

	_, err = db.Exec(site_postgres.Schema(cfg.Postgres.TableName))
	if err != nil {
		log.Fatal().Msgf("failed to prepare manifest table: %v", err)
	}

	siteBlobRepo, err := newBlobRepository(cfg, "sites")
	if err != nil {
		log.Fatal().Msgf("failed to create site blob storage: %v", err)
	}

	avatarBlobRepo, err := newBlobRepository(cfg, "avatars")
	if err != nil {
		log.Fatal().Msgf("failed to create avatar blob storage: %v", err)
	}

	siteRepo := site_postgres.New(db, cfg.Postgres.TableName)

	limiterRepo := limiter_redis.New(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}))

	sessions := session.New()
	if err := sessions.Store(sessionKeyID, cfg.Session.Secret); err != nil {
		log.Fatal().Msgf("failed to store session key: %v", err)
	}
	if cfg.Session.KeyID != "" {
		if err := sessions.Store(cfg.Session.KeyID, cfg.Session.Secret); err != nil {
			log.Fatal().Msgf("failed to store session key: %v", err)
		}
	}

	siteService := siteapi.New(
		hosting.New(siteRepo, siteBlobRepo),
		sessions,
		limiterRepo,
		cfg.Deploy.Limit,
		time.Duration(cfg.Deploy.WindowMinutes)*time.Minute,
	)

	avatarService := avatarapi.New(
		avatar_handler.New(avatarBlobRepo, cfg.Avatar.MaxDimension),
		sessions,
	)

	router.GET("/api/sites", siteService.List)
	router.POST("/api/sites", siteService.Deploy)
	router.GET("/api/sites/:siteName", siteService.Details)
	router.DELETE("/api/sites/:siteName", siteService.Delete)

	router.GET("/sites/:siteName/:fileName", siteService.ServeFile)

	router.POST("/api/auth/profile-picture", avatarService.Upload)
	router.GET("/api/auth/avatar/*id", avatarService.Serve)
}

// newBlobRepository picks the configured backend. The namespace keeps site
// files and avatars apart inside one bucket.
func newBlobRepository(cfg Config, namespace string) (blob.Repository, error) {
	switch cfg.Blob.Backend {
	case "gcs":
		return blob_gcs.New(context.Background(), cfg.GCS.BucketName, namespace)
	case "s3":
		return blob_s3.New(
			cfg.S3.Endpoint,
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			cfg.S3.UseSSL,
			cfg.S3.BucketName,
			namespace,
		)
	}
	return nil, fmt.Errorf("unknown blob backend '%v'", cfg.Blob.Backend)
}
