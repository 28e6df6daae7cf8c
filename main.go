package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/wingscope/backend/analysis"
	"github.com/wingscope/backend/config"
	"github.com/wingscope/backend/handlers"
	"github.com/wingscope/backend/media"
	"github.com/wingscope/backend/realtime"
	"github.com/wingscope/backend/session"
	"github.com/wingscope/backend/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	log.Printf("Ensuring storage directory exists: %s", cfg.MediaStoragePath)
	if err := os.MkdirAll(cfg.MediaStoragePath, 0755); err != nil {
		log.Fatalf("FATAL: Failed to create storage directory %s: %v", cfg.MediaStoragePath, err)
	}

	previews, err := media.NewPreviewStore(cfg.PreviewsPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize preview store: %v", err)
	}
	defer previews.Close()

	hub := realtime.NewHub()
	go hub.Run()

	store := session.NewStore(previews)

	analyzeTimeout := time.Duration(cfg.AnalyzeTimeoutSeconds) * time.Second
	client := analysis.NewClient(cfg.AnalyzeEndpoint, analyzeTimeout)

	log.Printf("Initializing analysis worker pool (Workers: %d, Queue Size: %d)...", cfg.NumAnalysisWorkers, cfg.AnalysisQueueSize)
	analyzer := workers.NewAnalyzer(store, client, hub, cfg.AnalysisQueueSize, cfg.NumAnalysisWorkers, cfg.UploadMaxEdge, analyzeTimeout)
	defer analyzer.Stop()

	log.Printf("Analysis endpoint: %s (timeout %s)", cfg.AnalyzeEndpoint, analyzeTimeout)
	log.Printf("Storing previews in: %s", cfg.PreviewsPath)
	log.Printf("Upload max size (longest side): %dpx", cfg.UploadMaxEdge)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	recordHandler := handlers.NewRecordHandler(store, hub, cfg.MaxUploadBytes)
	analyzeHandler := handlers.NewAnalyzeHandler(store, analyzer)
	exportHandler := handlers.NewExportHandler(store)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/api/records", func(r chi.Router) {
			r.Post("/", recordHandler.UploadRecords)
			r.Get("/", recordHandler.ListRecords)
			r.Delete("/", recordHandler.ClearRecords)
			r.Get("/stats", recordHandler.GetStats)
			r.Get("/review/next", recordHandler.NextReview)
			r.Route("/{record_id}", func(r chi.Router) {
				r.Get("/", recordHandler.GetRecord)
				r.Delete("/", recordHandler.DeleteRecord)
				r.Put("/name", recordHandler.RenameRecord)
				r.Put("/points/{point_index}", recordHandler.UpdatePoint)
			})
		})

		r.Route("/api/analyze", func(r chi.Router) {
			r.Post("/", analyzeHandler.StartAnalysis)
			r.Get("/{batch_id}", analyzeHandler.GetBatch)
		})

		r.Get("/api/export", exportHandler.DownloadArchive)
		r.Get("/api/export/csv", exportHandler.DownloadCSV)

		r.Get("/api/previews/*", handlers.PreviewServer(previews))
		log.Printf("Registered preview server at %s*", media.PreviewBaseURL)

		r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `{"status":"ok"}`)
		})
	})

	// websocket connections outlive the request timeout
	r.Get("/api/ws", hub.ServeWS)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
