package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/mailsync/api"
	"github.com/customeros/mailsync/api/handlers"
	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/cron"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
	"github.com/customeros/mailsync/services/events"
)

type Server struct {
	config       *config.Config
	logger       logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cron         *cron.CronManager
	subscriber   *events.RabbitMQSubscriber
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, mailsyncDB *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(mailsyncDB)

	svcs, err := services.InitServices(cfg, appLogger, repos)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		logger:       appLogger,
		router:       router,
		services:     svcs,
		repositories: repos,
		cron:         cron.NewCronManager(cfg, appLogger.WithName("cron"), kubernetesClient(appLogger), repos.AccountRepository, svcs.SyncService),
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// kubernetesClient returns nil outside a cluster, which runs cron without
// leader election.
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Infof("Not running in kubernetes: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Could not create kubernetes client: %v", err)
		return nil
	}
	return client
}

func (s *Server) Initialize() error {
	var publisher interfaces.EventPublisher
	if len(s.services.EventsService.Publishers) > 0 {
		publisher = s.services.EventsService
	}

	apiHandlers := handlers.InitHandlers(s.services.AccountService, s.services.EmailService, s.services.SyncService, s.services.AttachmentService, publisher)
	api.RegisterRoutes(s.router, apiHandlers, s.config.AppConfig.APIKey)

	if s.config.AppConfig.RabbitMQURL != "" {
		subscriber, err := events.NewRabbitMQSubscriber(s.config.AppConfig.RabbitMQURL, s.logger.WithName("subscriber"), nil)
		if err != nil {
			return err
		}
		subscriber.RegisterListener(events.NewSyncRequestedListener(s.logger.WithName("sync-requests"), s.services.SyncService))
		if err := subscriber.ListenQueue(events.QueueSyncRequests); err != nil {
			_ = subscriber.Close()
			return err
		}
		s.subscriber = subscriber
	}

	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)

		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		log.Printf("❌ Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	if err := s.Initialize(); err != nil {
		return err
	}

	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}
	if err := s.cron.Start(podName, os.Getenv("POD_NAMESPACE")); err != nil {
		return err
	}
	log.Println("✅ Cron manager started")

	go s.wrapGoroutine("http_server", func() {
		log.Println("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ HTTP server error: %v", err)
		}
	})
	log.Println("✅ HTTP server started successfully")
	log.Println("Mailsync is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ HTTP server shutdown error: %v", err)
	} else {
		log.Println("✅ HTTP server shut down successfully")
	}

	// Cron stop waits for running jobs, bound it
	stopDone := make(chan struct{})
	go s.wrapGoroutine("cron_shutdown", func() {
		defer close(stopDone)
		s.cron.Stop()
	})
	select {
	case <-stopDone:
		log.Println("✅ Cron manager stopped")
	case <-shutdownCtx.Done():
		log.Println("⚠️ Cron stop timed out, forcing exit")
	}

	if s.subscriber != nil {
		if err := s.subscriber.Close(); err != nil {
			log.Printf("❌ Subscriber shutdown error: %v", err)
		}
	}
	if err := s.services.Close(); err != nil {
		log.Printf("❌ Events shutdown error: %v", err)
	}
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	return nil
}
