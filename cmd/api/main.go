package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"custodia.org/internal/anomaly"
	"custodia.org/internal/asset"
	"custodia.org/internal/auth"
	"custodia.org/internal/httpapi"
	"custodia.org/internal/obs"
	"custodia.org/internal/rbac"
	"custodia.org/internal/store/pg"
	"custodia.org/internal/vault"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

const issuer = "custodia"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("CUSTODIA_PG_DSN")
	if dsn == "" {
		log.Fatal("CUSTODIA_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	authSecret := os.Getenv("CUSTODIA_AUTH_SECRET")
	if authSecret == "" {
		log.Fatal("CUSTODIA_AUTH_SECRET is required")
	}
	signer, err := auth.NewSigner(issuer, []byte(authSecret))
	if err != nil {
		log.Fatalf("signer: %v", err)
	}

	// Login tickets live in Redis when configured, in memory otherwise.
	var tickets auth.TicketStore
	if addr := os.Getenv("CUSTODIA_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		tickets, err = auth.NewRedisTicketStore(client)
		if err != nil {
			log.Fatalf("redis tickets: %v", err)
		}
		log.Printf("login tickets stored in redis at %s", addr)
	} else {
		tickets = auth.NewMemoryTicketStore()
		log.Print("CUSTODIA_REDIS_ADDR not set, login tickets held in memory")
	}

	authSvc, err := auth.NewService(store, tickets, signer)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	evaluator, err := rbac.NewEvaluator(store)
	if err != nil {
		log.Fatalf("permission evaluator: %v", err)
	}

	engine, err := vault.NewFromHex(os.Getenv("CUSTODIA_MASTER_KEY"))
	if err != nil {
		log.Fatalf("CUSTODIA_MASTER_KEY: %v", err)
	}

	var blobs asset.BlobStorage
	if dir := os.Getenv("CUSTODIA_BLOB_DIR"); dir != "" {
		blobs, err = asset.NewFSBlobStore(dir)
		if err != nil {
			log.Fatalf("blob dir: %v", err)
		}
	} else {
		blobs = asset.NewMemoryBlobStore()
		log.Print("CUSTODIA_BLOB_DIR not set, asset content held in memory")
	}

	assetSvc, err := asset.NewService(store, blobs, engine, evaluator)
	if err != nil {
		log.Fatalf("asset service: %v", err)
	}

	var geo anomaly.GeoResolver
	if base := os.Getenv("CUSTODIA_GEOIP_URL"); base != "" {
		geo = anomaly.NewHTTPResolver(base, 5*time.Second)
	} else {
		geo = anomaly.NewStaticResolver(nil)
		log.Print("CUSTODIA_GEOIP_URL not set, geo lookups disabled")
	}
	detector, err := anomaly.NewDetector(store, geo, anomaly.WithRoleDirectory(authSvc))
	if err != nil {
		log.Fatalf("anomaly detector: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Auth:     authSvc,
		Perms:    evaluator,
		Assets:   assetSvc,
		Detector: detector,
		Ledger:   store,
		Ready:    httpapi.ReadyProbe{DB: store.DB()},
		Version:  version,
	})

	addr := os.Getenv("CUSTODIA_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting custodia-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
