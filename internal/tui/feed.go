package tui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/portmark/internal/events"
	"github.com/mattjoyce/portmark/internal/operator"
)

// Feed supplies run events to the console.
type Feed interface {
	// Events starts delivering events. The returned channel closes when the
	// feed ends.
	Events(ctx context.Context) <-chan events.Event
}

// Submitter delivers an operator decision to the engine.
type Submitter interface {
	Submit(ctx context.Context, d operator.Decision) error
}

// HubFeed reads events from an in-process hub.
type HubFeed struct {
	Hub *events.Hub
}

func (f HubFeed) Events(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, 64)
	go func() {
		defer close(out)
		sub, cancel := f.Hub.Subscribe()
		defer cancel()

		var last int64
		for _, ev := range f.Hub.SnapshotSince(0) {
			select {
			case out <- ev:
				last = ev.ID
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if ev.ID <= last {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Remote talks to a portmark API over HTTP: it streams /events and posts
// decisions to /recovery.
type Remote struct {
	URL    string
	APIKey string
	Client *http.Client
}

func (r Remote) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

func (r Remote) request(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.URL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}
	return req, nil
}

// Events streams /events once. The channel closes when the connection drops.
func (r Remote) Events(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, 64)
	go func() {
		defer close(out)
		req, err := r.request(ctx, http.MethodGet, "/events", nil)
		if err != nil {
			return
		}
		resp, err := r.client().Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		var current events.Event
		for scanner.Scan() {
			line := scanner.Text()

			if line == "" {
				if current.Data != nil {
					current.At = time.Now()
					select {
					case out <- current:
					case <-ctx.Done():
						return
					}
				}
				current = events.Event{}
				continue
			}

			switch {
			case strings.HasPrefix(line, "id: "):
				if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
					current.ID = id
				}
			case strings.HasPrefix(line, "event: "):
				current.Type = line[7:]
			case strings.HasPrefix(line, "data: "):
				current.Data = json.RawMessage(line[6:])
			}
		}
	}()
	return out
}

// Submit posts d to /recovery.
func (r Remote) Submit(ctx context.Context, d operator.Decision) error {
	body, err := json.Marshal(map[string]string{"decision": d.String()})
	if err != nil {
		return err
	}
	req, err := r.request(ctx, http.MethodPost, "/recovery", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusAccepted {
		return nil
	}
	var e struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&e)
	return fmt.Errorf("recovery rejected (%d): %s", resp.StatusCode, e.Error)
}

// --- Message types ---

type eventMsg events.Event

type feedClosedMsg struct{}

type submittedMsg struct {
	decision operator.Decision
	err      error
}

type reconnectMsg struct{}

// --- Commands ---

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func submitDecision(ctx context.Context, s Submitter, d operator.Decision) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return submittedMsg{decision: d, err: s.Submit(ctx, d)}
	}
}
