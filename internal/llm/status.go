package llm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/signalpilot/signalpilot/internal/provider"
)

const (
	probeTimeout     = 30 * time.Second
	probeConcurrency = 4
)

// Status is the outcome of one availability probe.
type Status struct {
	Model     string        `json:"model" yaml:"model"`
	Available bool          `json:"available" yaml:"available"`
	Latency   time.Duration `json:"latency" yaml:"latency"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

var probeMessages = []provider.Message{{Role: provider.RoleUser, Content: "ping"}}

// CheckAvailability sends a one-token request to every client, without
// retries, and reports which models answered. Keys of the result match
// the keys of clients.
func CheckAvailability(ctx context.Context, clients map[string]*Client) map[string]Status {
	var (
		mu  sync.Mutex
		out = make(map[string]Status, len(clients))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for name, c := range clients {
		g.Go(func() error {
			st := c.probe(ctx)
			mu.Lock()
			out[name] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Client) probe(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	params := provider.DefaultGenerationParameters()
	params.MaxTokens = 1

	start := time.Now()
	_, err := c.once(ctx, c.model, probeMessages, params)
	st := Status{
		Model:     c.model.String(),
		Available: err == nil,
		Latency:   time.Since(start),
	}
	if err != nil {
		st.Error = err.Error()
	}
	return st
}
