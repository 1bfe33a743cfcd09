package share

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/groupclip/groupclip/internal/remote"
)

// ClientProvider hands out the established remote client handle.
type ClientProvider interface {
	Client() *remote.Client
}

// DefaultStrategies returns the delivery cascade in attempt order:
//
//  1. structured insert through the client abstraction, full record
//  2. raw HTTP insert, full record (defends against client bugs)
//  3. raw HTTP insert, reduced field set (defends against schema
//     mismatches on optional columns)
//  4. transport-level insert, reduced field set
func DefaultStrategies(clients ClientProvider, endpoint remote.Endpoint) []Strategy {
	return []Strategy{
		&clientInsertStrategy{clients: clients},
		&rawInsertStrategy{endpoint: endpoint, httpClient: &http.Client{}},
		&rawInsertStrategy{endpoint: endpoint, httpClient: &http.Client{}, reduced: true},
		&transportInsertStrategy{endpoint: endpoint, transport: http.DefaultTransport},
	}
}

func fullRow(rec Record) remote.Row {
	return remote.Row{
		Content:   rec.Content,
		URL:       rec.URL,
		Title:     rec.Title,
		Sender:    rec.Sender,
		GroupID:   rec.GroupID,
		Timestamp: remote.FormatTimestamp(rec.Timestamp),
	}
}

func reducedRow(rec Record) remote.Row {
	return remote.Row{
		Content:   rec.Content,
		Sender:    rec.Sender,
		GroupID:   rec.GroupID,
		Timestamp: remote.FormatTimestamp(time.Now().UnixMilli()),
	}
}

// clientInsertStrategy delivers through the remote client abstraction.
type clientInsertStrategy struct {
	clients ClientProvider
}

func (s *clientInsertStrategy) Name() string { return "client-insert" }

func (s *clientInsertStrategy) Attempt(ctx context.Context, rec Record) error {
	c := s.clients.Client()
	if c == nil {
		return errors.New("remote client not initialized")
	}
	return c.Insert(ctx, fullRow(rec))
}

// rawInsertStrategy builds and sends the REST request itself, bypassing the
// client abstraction entirely.
type rawInsertStrategy struct {
	endpoint   remote.Endpoint
	httpClient *http.Client
	reduced    bool
}

func (s *rawInsertStrategy) Name() string {
	if s.reduced {
		return "raw-insert-reduced"
	}
	return "raw-insert"
}

func (s *rawInsertStrategy) Attempt(ctx context.Context, rec Record) error {
	row := fullRow(rec)
	if s.reduced {
		row = reducedRow(rec)
	}

	body, err := json.Marshal(row)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint.RestURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating raw insert request: %w", err)
	}
	s.endpoint.SetHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("raw insert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("raw insert: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// transportInsertStrategy is the lowest-level fallback: a single round trip
// straight through the transport, no client policy at all.
type transportInsertStrategy struct {
	endpoint  remote.Endpoint
	transport http.RoundTripper
}

func (s *transportInsertStrategy) Name() string { return "transport-insert" }

func (s *transportInsertStrategy) Attempt(ctx context.Context, rec Record) error {
	body, err := json.Marshal(reducedRow(rec))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint.RestURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating transport insert request: %w", err)
	}
	s.endpoint.SetHeaders(req)

	resp, err := s.transport.RoundTrip(req)
	if err != nil {
		return fmt.Errorf("transport insert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("transport insert: unexpected status %d", resp.StatusCode)
	}
	return nil
}
