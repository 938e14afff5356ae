// README: Entry point; loads config, wires services, starts HTTP server and the scheduled ride processor.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kijiwe/internal/config"
	httptransport "kijiwe/internal/http"
	"kijiwe/internal/infra"
	"kijiwe/internal/maps"
	"kijiwe/internal/modules/chat"
	"kijiwe/internal/modules/dispatch"
	"kijiwe/internal/modules/fare"
	"kijiwe/internal/modules/kijiwe"
	"kijiwe/internal/modules/notify"
	"kijiwe/internal/modules/ride"
	"kijiwe/internal/modules/schedule"
	"kijiwe/internal/modules/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("KIJIWE_FIREBASE_PROJECT_ID is required")
	}
	fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatalf("firebase init: %v", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	var routes dispatch.RouteEstimator
	if cfg.Maps.APIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		routes = routeSvc
	}

	fareStore := fare.NewStore(fb.Firestore)
	fareSvc := fare.NewService(fareStore, logger)

	userStore := user.NewStore(fb.Firestore, fb.Auth)
	kijiweStore := kijiwe.NewStore(fb.Firestore)
	relay := notify.NewRelay(userStore, fb.Messaging, logger)

	rideStore := ride.NewFirestoreStore(fb.Firestore)
	eventLog := ride.NewEventLog(dbPool)
	rideSvc := ride.NewService(rideStore, userStore, fareSvc, relay, eventLog, logger)

	claimer := dispatch.NewFirestoreClaimer(fb.Firestore)
	dispatchSvc := dispatch.NewService(rideStore, kijiweStore, userStore, claimer, fareSvc, relay, routes, cfg.Dispatch.MaxSearchKijiwes, logger)

	scheduleStore := schedule.NewFirestoreStore(fb.Firestore)
	scheduleSvc := schedule.NewService(
		scheduleStore,
		schedule.NewRedisLocker(redisClient),
		dispatchSvc,
		time.Duration(cfg.Schedule.SweepIntervalMinutes)*time.Minute,
		time.Duration(cfg.Schedule.ActivationWindowMinutes)*time.Minute,
		time.Duration(cfg.Schedule.RecurrenceHorizonDays)*24*time.Hour,
		logger,
	)

	chatStore := chat.NewFirestoreStore(fb.Firestore)
	chatSvc := chat.NewService(chatStore, rideStore, relay, logger)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Dispatch: dispatchSvc,
		Rides:    rideSvc,
		Schedule: scheduleSvc,
		Chat:     chatSvc,
		Accounts: userStore,
		Notifier: relay,
		Alerts:   notify.NewStore(fb.Firestore),
		Verifier: fb.Verifier(),
		Log:      logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go scheduleSvc.RunProcessor(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
