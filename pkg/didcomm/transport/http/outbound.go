/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const commContentType = "application/didcomm-envelope-enc"

const httpScheme = "http"

type outboundOpts struct {
	client *http.Client
}

// OutboundHTTPOpt is an outbound HTTP transport option.
type OutboundHTTPOpt func(opts *outboundOpts)

// WithOutboundHTTPClient option is for creating an Outbound HTTP transport using an http.Client instance.
func WithOutboundHTTPClient(client *http.Client) OutboundHTTPOpt {
	return func(opts *outboundOpts) {
		opts.client = client
	}
}

// WithOutboundTimeout option is for creating an Outbound HTTP transport using a client timeout value.
func WithOutboundTimeout(timeout time.Duration) OutboundHTTPOpt {
	return func(opts *outboundOpts) {
		opts.client.Timeout = timeout
	}
}

// WithOutboundTLSConfig option is for creating an Outbound HTTP transport using a tls.Config instance.
func WithOutboundTLSConfig(tlsConfig *tls.Config) OutboundHTTPOpt {
	return func(opts *outboundOpts) {
		opts.client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}
	}
}

// OutboundHTTPClient represents the Outbound HTTP transport instance.
type OutboundHTTPClient struct {
	client *http.Client
}

// NewOutbound creates a new instance of Outbound HTTP transport to POST envelopes to other agents.
// An http.Client or tls.Config option is mandatory to create a transport instance.
func NewOutbound(opts ...OutboundHTTPOpt) (*OutboundHTTPClient, error) {
	clOpts := &outboundOpts{}

	for _, opt := range opts {
		opt(clOpts)
	}

	if clOpts.client == nil {
		return nil, errors.New("can't create an outbound transport without an HTTP client")
	}

	return &OutboundHTTPClient{client: clOpts.client}, nil
}

// Send sends envelope bytes via HTTP.
func (cs *OutboundHTTPClient) Send(data []byte, url string) (string, error) {
	resp, err := cs.client.Post(url, commContentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("posting envelope to [%s] failed: %w", url, err)
	}

	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			logger.Errorf("failed to close response body: %v", errClose)
		}
	}()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response from [%s] failed: %w", url, err)
	}

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non success status code [%d] from [%s]", resp.StatusCode, url)
	}

	return string(buf), nil
}

// Accept checks for the url scheme.
func (cs *OutboundHTTPClient) Accept(url string) bool {
	return strings.HasPrefix(url, httpScheme)
}
