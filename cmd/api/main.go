package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"phasegate.org/internal/access"
	"phasegate.org/internal/auth"
	"phasegate.org/internal/httpapi"
	"phasegate.org/internal/obs"
	"phasegate.org/internal/project"
	"phasegate.org/internal/store/memory"
	"phasegate.org/internal/store/pg"
	"phasegate.org/internal/stream"
	"phasegate.org/internal/team"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		userStore    auth.UserStore
		roleStore    access.RoleStore
		logStore     access.AccessLogStore
		phaseLookup  access.PhaseLookup
		teamStore    team.Store
		projectStore project.Store
		db           *sql.DB
	)
	if dsn := os.Getenv("PHASEGATE_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		db = store.DB()
		userStore, roleStore, logStore = store, store, store
		phaseLookup, teamStore, projectStore = store, store, store
	} else {
		log.Println("PHASEGATE_PG_DSN not set, using in-memory store")
		store := memory.New()
		userStore, roleStore, logStore = store, store, store
		phaseLookup, teamStore, projectStore = store, store, store
	}

	users, err := auth.NewUsers(userStore)
	if err != nil {
		log.Fatalf("users: %v", err)
	}
	projects, err := project.NewService(projectStore)
	if err != nil {
		log.Fatalf("projects: %v", err)
	}
	teams, err := team.NewDirectory(teamStore)
	if err != nil {
		log.Fatalf("teams: %v", err)
	}
	roles, err := access.NewRegistry(roleStore)
	if err != nil {
		log.Fatalf("roles: %v", err)
	}
	decisions := stream.New()
	evaluator, err := access.NewEvaluator(roles, phaseLookup, logStore,
		access.WithPublisher(decisions.Publish))
	if err != nil {
		log.Fatalf("evaluator: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Users:     users,
		Projects:  projects,
		Teams:     teams,
		Roles:     roles,
		Evaluator: evaluator,
		Policy:    access.DefaultPhasePolicy(),
		Decisions: decisions,
	}, httpapi.ReadyProbe{DB: db}, version)

	var handler http.Handler = api.Handler()
	handler = httpapi.RateLimit(handler, 50, 25)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	addr := os.Getenv("PHASEGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting phasegate-api %s on %s", version, srv.Addr)

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
