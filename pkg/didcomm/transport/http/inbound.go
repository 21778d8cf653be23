/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/crubn/aries-agent-go/pkg/didcomm/transport"
)

var logger = log.New("aries-agent/http")

// Inbound http type.
type Inbound struct {
	externalAddr string
	server       *http.Server
}

// NewInbound creates a new HTTP inbound transport instance.
func NewInbound(internalAddr, externalAddr string) (*Inbound, error) {
	if internalAddr == "" {
		return nil, errors.New("http address is mandatory")
	}

	if externalAddr == "" {
		externalAddr = internalAddr
	}

	return &Inbound{externalAddr: externalAddr, server: &http.Server{Addr: internalAddr}}, nil
}

// Start the http server.
func (i *Inbound) Start(prov transport.InboundProvider) error {
	if prov == nil || prov.InboundMessageHandler() == nil {
		return errors.New("creation of inbound handler failed")
	}

	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		processPOSTRequest(w, r, prov.InboundMessageHandler())
	}).Methods(http.MethodPost)

	i.server.Handler = router

	go func() {
		if err := i.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server start with address [%s] failed, cause: %s", i.server.Addr, err)
		}
	}()

	return nil
}

// Stop the http server.
func (i *Inbound) Stop() error {
	if err := i.server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}

// Endpoint provides the http connection details.
func (i *Inbound) Endpoint() string {
	return i.externalAddr
}

func processPOSTRequest(w http.ResponseWriter, r *http.Request, messageHandler transport.InboundMessageHandler) {
	if ct := r.Header.Get("Content-type"); ct != commContentType {
		http.Error(w, fmt.Sprintf("unsupported Content-type %q", ct), http.StatusUnsupportedMediaType)
		return
	}

	if r.ContentLength == 0 {
		http.Error(w, "empty payload", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Errorf("error reading request body: %s", err)
		http.Error(w, "failed to read payload", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusAccepted)

	// http carries no return route, handle asynchronously with no session
	go func() {
		if err := messageHandler(body, nil); err != nil {
			logger.Errorf("incoming msg processing failed: %v", err)
		}
	}()
}
