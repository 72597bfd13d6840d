package main

import (
	"flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/app"
	"github.com/shrimpsizemoose/semla/internal/handlers"
	"github.com/shrimpsizemoose/semla/internal/sweeper"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	eventHandler := handlers.NewEventHandler(service)

	http.HandleFunc("POST /api/v1/{department}/events", eventHandler.HandleScoringEvent)
	http.HandleFunc("POST /api/v1/{department}/events/{event}/attendance", eventHandler.HandleAttendance)
	http.HandleFunc("POST /api/v1/{department}/events/{event}/winners", eventHandler.HandleWinners)
	http.HandleFunc("POST /api/v1/{department}/tasks", eventHandler.HandleCreateTask)
	http.HandleFunc("POST /api/v1/{department}/tasks/{task}/submissions", eventHandler.HandleSubmit)
	http.HandleFunc("POST /api/v1/{department}/submissions/{id}/review", eventHandler.HandleReview)
	http.HandleFunc("POST /api/v1/{department}/submissions/{id}/resubmit", eventHandler.HandleResubmit)
	http.HandleFunc("POST /api/v1/{department}/students", eventHandler.HandleUpsertStudent)
	http.HandleFunc("GET /api/v1/{department}/leaderboard", eventHandler.HandleLeaderboard)
	http.HandleFunc("GET /api/v1/{department}/students/{student}/stats", eventHandler.HandleStudentStats)

	http.Handle("/metrics", promhttp.Handler())

	if service.Config.Sweeper.Schedule != "" {
		sweep := sweeper.New(service.Store, service.Ledger)
		if err := sweep.Start(service.Config.Sweeper.Schedule); err != nil {
			logger.Error.Fatalf("Failed to start sweeper: %v", err)
		}
		defer sweep.Stop()
		logger.Info.Printf("Missed-task sweeper scheduled: %s", service.Config.Sweeper.Schedule)
	}

	logger.Info.Printf("Starting semla server on %s", service.Config.Server.Port)
	logger.Debug.Println("Requiring headers:")
	for _, h := range service.Config.API.RequiredHeaders {
		logger.Debug.Printf("  %s: %s", h.Name, h.Value)
	}
	if err := http.ListenAndServe(service.Config.Server.Port, nil); err != nil {
		logger.Error.Fatalf("Semla server failed: %v", err)
	}
}
