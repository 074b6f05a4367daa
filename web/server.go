// Package web serves the latest load-status records over HTTP so operators
// and schedulers can see where replication got to without a database client.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/BenjaminRains/etlpipe/helper"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/status"
)

// StatusReader is the read-side of the load status store needed by the HTTP
// surface. *status.Tracker satisfies it.
type StatusReader interface {
	LatestRecords(ctx context.Context) ([]status.Record, error)
	LatestRecord(ctx context.Context, tableName string) (*status.Record, error)
}

type ServerConfig struct {
	LogLevel         string       `errorTxt:"log level" mandatory:"yes"`
	Addr             net.IP       `errorTxt:"address" mandatory:"no"`
	Port             int          `errorTxt:"port" mandatory:"no"`
	Status           StatusReader `errorTxt:"status reader" mandatory:"yes"`
	StackDumpOnPanic bool
}

// RunServer starts the HTTP server and blocks until SIGINT or a request to
// /stop, then shuts down gracefully.
func RunServer(cfg *ServerConfig) error {
	if cfg == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	log := logger.NewLogger("etlpipe", cfg.LogLevel, cfg.StackDumpOnPanic)
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	chanStopServer := make(chan string, 1)
	r := NewRouter(log, cfg.Status, chanStopServer)
	srv := &http.Server{ // Good practice to set timeouts to avoid Slowloris attacks.
		Addr:         fmt.Sprintf("%v:%v", cfg.Addr, cfg.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Info(err)
			} else {
				log.Panic(err)
			}
		}
	}()
	log.Info(fmt.Sprintf("Listening on http://%v:%v", cfg.Addr, cfg.Port))
	return waitForServer(log, srv, chanStopServer)
}

// NewRouter builds the route table. Split out so tests can drive the handlers
// through httptest without binding a port.
func NewRouter(log logger.Logger, statusReader StatusReader, chanStopServer chan string) *mux.Router {
	r := mux.NewRouter()
	r.Path("/health").HandlerFunc(GetHandlerHealth(log))
	r.Path("/stop").HandlerFunc(GetHandlerStopServer(log, chanStopServer))
	r.Path("/api/v1/status").HandlerFunc(GetHandlerStatusList(log, statusReader))
	r.Path("/api/v1/status/{table}").HandlerFunc(GetHandlerStatusTable(log, statusReader))
	return r
}

func waitForServer(log logger.Logger, srv *http.Server, chanStopServer chan string) error {
	// Block & wait for shutdown signals.
	// SIGKILL, SIGQUIT or SIGTERM will not be caught.
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt)
	select {
	case <-chanStopServer:
	case <-chanOS:
	}
	fmt.Println() // print new line char for clean looking CLI.
	log.Info("Shutting down web server...")
	wait := time.Second * 15
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return srv.Shutdown(ctx)
}
