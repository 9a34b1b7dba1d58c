package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/parentalcompanion/agentd/internal/commgate"
	"github.com/parentalcompanion/agentd/internal/metrics"
)

// Bridge is the localhost HTTP surface. The OS telephony hooks call it
// synchronously to screen incoming calls and SMS, and Prometheus scrapes
// it for metrics. It binds loopback only; nothing here is reachable off
// the device.
type Bridge struct {
	gate    *commgate.Gate
	metrics *metrics.Set
	logger  *zap.Logger
	server  *http.Server
}

// NewBridge creates a bridge listening on addr.
func NewBridge(addr string, gate *commgate.Gate, m *metrics.Set, logger *zap.Logger) *Bridge {
	b := &Bridge{gate: gate, metrics: m, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/screen/call", b.screenHandler(gate.ScreenCall))
	mux.HandleFunc("/v1/screen/sms", b.screenHandler(gate.ScreenSMS))
	mux.Handle("/metrics", m.Handler())

	b.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return b
}

type screenRequest struct {
	Number string `json:"number"`
}

type screenResponse struct {
	Decision string `json:"decision"`
}

// screenHandler adapts one gate method to HTTP. A request the bridge
// cannot parse fails open to Accept, same as any other gate fault.
func (b *Bridge) screenHandler(screen func(string) commgate.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		decision := commgate.Accept
		var req screenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			b.logger.Warn("malformed screen request, failing open", zap.Error(err))
		} else {
			decision = screen(req.Number)
		}

		if decision == commgate.Reject {
			b.metrics.RejectedCalls.Inc()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(screenResponse{Decision: decision.String()})
	}
}

// Serve listens and blocks until Shutdown. A nil error is returned on
// clean shutdown.
func (b *Bridge) Serve() error {
	ln, err := net.Listen("tcp", b.server.Addr)
	if err != nil {
		return err
	}
	b.logger.Info("bridge listening", zap.String("addr", ln.Addr().String()))

	if err := b.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the bridge, waiting for in-flight requests up to ctx.
func (b *Bridge) Shutdown(ctx context.Context) error {
	return b.server.Shutdown(ctx)
}
