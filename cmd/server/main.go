package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/wheat-api/internal/config"
	"github.com/Brownie44l1/wheat-api/internal/handlers"
	"github.com/Brownie44l1/wheat-api/internal/logging"
	"github.com/Brownie44l1/wheat-api/internal/middleware"
	"github.com/Brownie44l1/wheat-api/internal/model"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Init(cfg.Logger)

	classifier, err := model.NewClassifier(model.Options{
		Candidates:  cfg.Model.Candidates(),
		Device:      cfg.Model.Device,
		LibraryPath: cfg.Model.LibraryPath,
	})
	if err != nil {
		log.Fatalf("Failed to initialize model: %v", err)
	}
	defer model.ShutdownRuntime()
	defer classifier.Close()

	info := handlers.Info{
		Device:    classifier.Device(),
		ModelPath: classifier.ModelPath(),
	}
	h := handlers.NewHandler(classifier, info, handlers.Limits{
		UploadBytes: cfg.Server.MaxUploadMB << 20,
		ImagePixels: cfg.Server.MaxImagePixels,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20
	router.Use(middleware.RequestID(), middleware.Logging(), middleware.CORS(), gin.Recovery())
	h.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.WithFields(log.Fields{
			"addr":       addr,
			"device":     info.Device,
			"model_path": info.ModelPath,
			"classes":    len(classifier.Classes()),
		}).Info("starting server")
		log.Infof("Upload test: curl -X POST -F \"file=@leaf.jpg\" \"http://localhost:%d/predict?top_k=3\"", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownWait)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("server forced shutdown: %v", err)
	}

	log.Info("server stopped")
}
