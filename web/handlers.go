package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/status"
)

type ServerResponse uint32

const (
	Okay ServerResponse = iota + 1
	Error
)

func (s ServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch s {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		return nil, fmt.Errorf("unhandled ServerResponse value in MarshalJSON() conversion")
	}
	return json.Marshal(retval)
}

type ResponseSimple struct {
	ServerStatus ServerResponse `json:"status"`
}

type ResponseStatusList struct {
	Status  ServerResponse  `json:"status"`
	Message string          `json:"message,omitempty"`
	Tables  []status.Record `json:"tables"`
}

type ResponseStatusTable struct {
	Status  ServerResponse `json:"status"`
	Message string         `json:"message,omitempty"`
	Table   *status.Record `json:"table,omitempty"`
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		chanStop <- "stop"
		log.Info("Stop signal sent")
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

// GetHandlerStatusList serves the latest load-status record per table.
func GetHandlerStatusList(log logger.Logger, statusReader StatusReader) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := statusReader.LatestRecords(r.Context())
		if err != nil {
			log.Error(err)
			w.WriteHeader(http.StatusInternalServerError)
			respond(log, w, ResponseStatusList{Status: Error, Message: fmt.Sprintf("error reading load status: %v", err)})
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseStatusList{Status: Okay, Tables: recs})
	}
}

// GetHandlerStatusTable serves the latest load-status record for one table.
func GetHandlerStatusTable(log logger.Logger, statusReader StatusReader) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		table := mux.Vars(r)["table"]
		rec, err := statusReader.LatestRecord(r.Context(), table)
		if err != nil {
			log.Error(err)
			w.WriteHeader(http.StatusInternalServerError)
			respond(log, w, ResponseStatusTable{Status: Error, Message: fmt.Sprintf("error reading load status: %v", err)})
			return
		}
		if rec == nil {
			w.WriteHeader(http.StatusNotFound)
			respond(log, w, ResponseStatusTable{Status: Error, Message: fmt.Sprintf("table %v has never been loaded", table)})
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseStatusTable{Status: Okay, Table: rec})
	}
}

// respond will marshal i to a string and write it to w.
func respond(log logger.Logger, w http.ResponseWriter, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Panic(err)
	}
	_, err = fmt.Fprint(w, string(j))
	if err != nil {
		log.Panic(err)
	}
}
