package dialogue

import (
	"context"
	"fmt"
	"log"

	"github.com/parley-ai/parley/internal/wire"
)

// Coordinator fans one logical dialogue operation out across a set of sites
// (one base plus N satellites). Each site gets its own session with its own
// id; completion is tracked per site, never as a shared barrier.
type Coordinator struct {
	client *wire.Client
	sites  []string
	logger *log.Logger

	waiter *wire.Waiter
}

// NewCoordinator subscribes to session lifecycle events for the given sites.
// The subscription is live from construction, so events racing the start
// publishes are not lost.
func NewCoordinator(client *wire.Client, sites []string, logger *log.Logger) (*Coordinator, error) {
	if len(sites) == 0 {
		return nil, fmt.Errorf("dialogue: coordinator needs at least one site")
	}
	if logger == nil {
		logger = log.Default()
	}

	waiter, err := wire.NewWaiter(client, wire.KindSessionStarted, wire.KindSessionEnded)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		client: client,
		sites:  sites,
		logger: logger,
		waiter: waiter,
	}, nil
}

// Sites returns the coordinated site set.
func (c *Coordinator) Sites() []string {
	return append([]string(nil), c.sites...)
}

// StartAll requests one session per site, each carrying that site's custom
// data, and waits for every site's SessionStarted. Returns site id to session
// id. Sites not present in customData start with empty custom data.
func (c *Coordinator) StartAll(ctx context.Context, customData map[string]string) (map[string]string, error) {
	for _, site := range c.sites {
		err := c.client.Publish(ctx, wire.StartSession{
			Init:       wire.SessionInit{Type: "action"},
			SiteID:     site,
			CustomData: customData[site],
		})
		if err != nil {
			return nil, fmt.Errorf("start session on %s: %w", site, err)
		}
	}

	started := make(map[string]string, len(c.sites))
	for len(started) < len(c.sites) {
		in, err := c.waiter.Wait(ctx, func(in wire.Inbound) bool {
			msg, ok := in.Message.(wire.SessionStarted)
			return ok && c.coordinates(msg.SiteID)
		})
		if err != nil {
			return started, err
		}
		msg := in.Message.(wire.SessionStarted)
		if _, dup := started[msg.SiteID]; dup {
			continue
		}
		started[msg.SiteID] = msg.SessionID
		c.logger.Printf("[Coordinator] site %s started session %s", msg.SiteID, msg.SessionID)
	}
	return started, nil
}

// AwaitEnded blocks until every coordinated site's session reached Ended, in
// any order, and returns each site's ended event. One slow site delays only
// the overall wait, never another site's own termination.
func (c *Coordinator) AwaitEnded(ctx context.Context) (map[string]wire.SessionEnded, error) {
	ended := make(map[string]wire.SessionEnded, len(c.sites))
	for len(ended) < len(c.sites) {
		in, err := c.waiter.Wait(ctx, func(in wire.Inbound) bool {
			msg, ok := in.Message.(wire.SessionEnded)
			return ok && c.coordinates(msg.SiteID)
		})
		if err != nil {
			return ended, err
		}
		msg := in.Message.(wire.SessionEnded)
		if _, dup := ended[msg.SiteID]; dup {
			continue
		}
		ended[msg.SiteID] = msg
		c.logger.Printf("[Coordinator] site %s session %s ended (%s)", msg.SiteID, msg.SessionID, msg.Termination.Reason)
	}
	return ended, nil
}

// Close releases the coordinator's subscription.
func (c *Coordinator) Close() {
	c.waiter.Close()
}

func (c *Coordinator) coordinates(siteID string) bool {
	for _, site := range c.sites {
		if site == siteID {
			return true
		}
	}
	return false
}
