package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/minierp/apps/api/echo"
	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/alert"
	"github.com/trezcool/minierp/core/analytics"
	"github.com/trezcool/minierp/core/cache"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/core/records"
	"github.com/trezcool/minierp/core/risk"
	"github.com/trezcool/minierp/services/email"
	"github.com/trezcool/minierp/services/logger"
	"github.com/trezcool/minierp/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up the document store
	store, err := storage.OpenStore(context.Background(), conf, dbLogger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening document store: %v", err), err)
	}
	defer func() {
		if err = store.Close(context.Background()); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gw := docstore.NewGateway(store, conf.DocStore.Timeout, dbLogger, registry)
	snapshots := cache.New(gw, cache.Options{Logger: logger, Registerer: registry})
	defer snapshots.Close()

	if conf.Cache.WarmSchedule != "" {
		warmer, wErr := cache.NewWarmer(
			snapshots, conf.Cache.WarmSchedule, conf.DocStore.Timeout,
			docstore.Attendance, docstore.Fees, docstore.Exams,
			docstore.Leaves, docstore.HostelRequests, docstore.Notifications,
		)
		if wErr != nil {
			logger.Fatal(fmt.Sprintf("setting up cache warmer: %v", wErr), wErr)
		}
		warmer.Start()
		defer warmer.Stop()
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf)
	}
	emitter := alert.NewEmitter(gw, mailSvc, alert.Options{
		Workers:    conf.Alert.Workers,
		QueueSize:  conf.Alert.QueueSize,
		MaxRetries: conf.Alert.MaxRetries,
		Logger:     logger,
		Registerer: registry,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err = emitter.Close(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not flush alert emails: %v", err), err)
		}
	}()

	evaluator := risk.NewEvaluator(snapshots, gw, conf.Cache.SignalsTTL)
	aggregator := analytics.NewAggregator(snapshots, conf.Cache.AnalyticsTTL)
	recordSvc := records.NewService(gw, snapshots, evaluator, emitter, conf.Cache.NotificationsTTL)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics of the gateway, cache and alert emitter.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("docstore").Set(conf.DocStore.Backend)

	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			Cache:      snapshots,
			Evaluator:  evaluator,
			Aggregator: aggregator,
			Records:    recordSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
