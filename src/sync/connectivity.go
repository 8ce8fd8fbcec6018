package sync

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Connectivity is the reachability collaborator: implementations invoke
// the registered callbacks once per offline→online transition. The
// platform network monitor lives outside this module.
type Connectivity interface {
	Subscribe(fn func())
}

// OnlineNotifier is a minimal Connectivity implementation driven by
// whatever watches the network (or by tests).
type OnlineNotifier struct {
	mu   sync.Mutex
	subs []func()
}

func NewOnlineNotifier() *OnlineNotifier {
	return &OnlineNotifier{}
}

func (n *OnlineNotifier) Subscribe(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

// NotifyOnline fans out one connectivity-restored event.
func (n *OnlineNotifier) NotifyOnline() {
	n.mu.Lock()
	subs := make([]func(), len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// RunProbe polls baseURL and fires NotifyOnline on each offline→online
// transition. It stands in for the platform reachability monitor when
// the agent runs headless. Blocks until ctx is cancelled.
func RunProbe(ctx context.Context, n *OnlineNotifier, baseURL string, interval time.Duration) {
	client := &http.Client{Timeout: 5 * time.Second}
	online := false

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
			if err != nil {
				continue
			}
			resp, err := client.Do(req)
			reachable := err == nil
			if resp != nil {
				resp.Body.Close()
			}
			if reachable && !online {
				n.NotifyOnline()
			}
			online = reachable
		}
	}
}
