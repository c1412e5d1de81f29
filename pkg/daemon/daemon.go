// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package daemon implements the optional single-writer mediator described in
// §4.11: when running, it serializes search and timeline calls over a small
// JSON envelope on a local Unix socket. Method names and argument shapes
// match the retrieval operations in pkg/retrieval directly — the daemon is a
// transport, not a second copy of the retrieval logic.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/kraklabs/atlas/pkg/retrieval"
)

// Request is the small JSON envelope a client sends: a method name matching
// one of the retrieval operations, plus its arguments.
type Request struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
}

// Response is the envelope returned for every Request.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

const (
	MethodSearch            = "search"
	MethodTimeline          = "timeline"
	MethodKeyFilteredSearch = "key_filtered_search"
)

// Client talks to a running daemon over a Unix socket. It does not fall back
// by itself: on connect failure its methods return an error, and the caller
// makes the direct in-process call instead (§4.11). Presence is detected
// lazily on first use; a successful connection is cached for the client's
// lifetime.
type Client struct {
	socketPath string
	dialTimeout time.Duration

	conn net.Conn
}

// NewClient creates a daemon client for socketPath. No connection is made
// until the first call.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, dialTimeout: 2 * time.Second}
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool { return c.conn != nil }

func (c *Client) ensureConnected() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("unix", c.socketPath, c.dialTimeout)
	if err != nil {
		return fmt.Errorf("daemon: connect %s: %w", c.socketPath, err)
	}
	c.conn = conn
	return nil
}

// call sends one request and decodes the envelope response. On any
// transport error the caller is expected to fall back to a direct call; call
// itself does not retry.
func (c *Client) call(method string, args any) (json.RawMessage, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("daemon: marshal args: %w", err)
	}
	req := Request{Method: method, Args: payload}

	enc := json.NewEncoder(c.conn)
	if err := enc.Encode(req); err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("daemon: write request: %w", err)
	}

	var resp Response
	dec := json.NewDecoder(bufio.NewReader(c.conn))
	if err := dec.Decode(&resp); err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("daemon: read response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("daemon: %s", resp.Error)
	}
	return resp.Result, nil
}

// Search routes a retrieval.SearchRequest through the daemon.
func (c *Client) Search(req retrieval.SearchRequest) ([]retrieval.SearchRecord, error) {
	raw, err := c.call(MethodSearch, req)
	if err != nil {
		return nil, err
	}
	var out []retrieval.SearchRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("daemon: decode search result: %w", err)
	}
	return out, nil
}

// Close releases the client's connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Server listens on a Unix socket and dispatches each Request to svc. Each
// connection is served on its own goroutine and may carry any number of
// requests; dispatch is serialized across all connections by one mutex, so
// only one retrieval call runs at a time.
type Server struct {
	listener net.Listener
	svc      *retrieval.Service
	mu       sync.Mutex
}

// Listen creates a Server bound to socketPath. The caller must call Serve to
// start accepting connections.
func Listen(socketPath string, svc *retrieval.Service) (*Server, error) {
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen %s: %w", socketPath, err)
	}
	return &Server{listener: l, svc: svc}, nil
}

// Serve accepts connections until ctx is canceled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("daemon: accept: %w", err)
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(bufio.NewReader(conn))
	enc := json.NewEncoder(conn)

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if err != io.EOF {
				enc.Encode(Response{Error: err.Error()})
			}
			return
		}

		s.mu.Lock()
		result, err := s.dispatch(ctx, req)
		s.mu.Unlock()
		if err != nil {
			enc.Encode(Response{Error: err.Error()})
			continue
		}
		enc.Encode(Response{Result: result})
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) (json.RawMessage, error) {
	switch req.Method {
	case MethodSearch:
		var args retrieval.SearchRequest
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return nil, fmt.Errorf("decode search args: %w", err)
		}
		records, err := s.svc.Search(ctx, args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(records)

	case MethodTimeline:
		var args struct {
			Since time.Time `json:"since"`
			Limit int       `json:"limit"`
		}
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return nil, fmt.Errorf("decode timeline args: %w", err)
		}
		records, err := s.svc.Timeline(ctx, args.Since, args.Limit)
		if err != nil {
			return nil, err
		}
		return json.Marshal(records)

	case MethodKeyFilteredSearch:
		var args struct {
			QNTMKey string                   `json:"qntm_key"`
			Request retrieval.SearchRequest `json:"request"`
		}
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return nil, fmt.Errorf("decode key-filtered search args: %w", err)
		}
		records, err := s.svc.KeyFilteredSearch(ctx, args.QNTMKey, args.Request)
		if err != nil {
			return nil, err
		}
		return json.Marshal(records)

	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

// Close stops the listener.
func (s *Server) Close() error {
	return s.listener.Close()
}
