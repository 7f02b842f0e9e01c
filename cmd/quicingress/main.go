// Command quicingress runs the packet-reception core behind a single
// UDP socket: listen, decrypt and admit, metrics, and (optionally) a
// Redis fanout of Ready/StatelessReset events across a fleet.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/netip"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/quicingress/internal/config"
	"github.com/yourusername/quicingress/internal/dgrambuf"
	"github.com/yourusername/quicingress/internal/metrics"
	"github.com/yourusername/quicingress/internal/syncfanout"
	"github.com/yourusername/quicingress/quic"
)

func main() {
	file, endpointConfig, err := config.Load()
	if err != nil {
		log.Fatalf("quicingress: failed to load configuration: %v", err)
	}

	registry := quic.NewRegistry()
	fanout := syncfanout.New(file.Redis.Enabled, file.Redis.Address, file.Redis.Channel)

	ep := quic.NewEndpoint(&endpointConfig, registry, nil, nil, nil)
	ep.Callbacks = endpointCallbacks{fanout: fanout}

	udpAddr, err := net.ResolveUDPAddr("udp", file.Listen.Address)
	if err != nil {
		log.Fatalf("quicingress: invalid listen address %q: %v", file.Listen.Address, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		log.Fatalf("quicingress: failed to bind %s: %v", file.Listen.Address, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	pool := dgrambuf.New()

	group.Go(func() error {
		return receiveLoop(groupCtx, conn, ep, pool)
	})

	group.Go(func() error {
		return housekeepingLoop(groupCtx, registry)
	})

	if file.Metrics.Address != "" {
		group.Go(func() error {
			return serveMetrics(groupCtx, file.Metrics.Address)
		})
	}

	if fanout != nil {
		group.Go(func() error {
			return fanout.Subscribe(groupCtx, func(ev syncfanout.Event) {
				log.Printf("quicingress: fanout event observed: %s %s %s", ev.Type, ev.ConnectionID, ev.PeerAddr)
			})
		})
	}

	log.Printf("quicingress: listening on %s", file.Listen.Address)
	if err := group.Wait(); err != nil && groupCtx.Err() == nil {
		log.Fatalf("quicingress: fatal error: %v", err)
	}
	log.Println("quicingress: shut down")
}

// receiveLoop is the single driver thread the concurrency model
// requires: one goroutine reads datagrams and runs each Incoming call
// to completion before reading the next.
func receiveLoop(ctx context.Context, conn *net.UDPConn, ep *quic.Endpoint, pool *dgrambuf.Pool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		bb := pool.Get()
		n, addr, err := conn.ReadFromUDP(bb.B)
		if err != nil {
			pool.Put(bb)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("quicingress: udp read error: %v", err)
			continue
		}

		raddr, ok := netip.AddrFromSlice(addr.IP)
		if !ok {
			pool.Put(bb)
			continue
		}
		ep.Incoming(bb.B[:n], netip.AddrPortFrom(raddr, uint16(addr.Port)), time.Now().UnixNano())
		pool.Put(bb)
	}
}

// housekeepingLoop periodically publishes the registry size gauge;
// GC of drained connections lives outside this core per the
// concurrency model, so this loop only observes.
func housekeepingLoop(ctx context.Context, registry *quic.Registry) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			metrics.SetRegistrySize(registry.Len())
		}
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// endpointCallbacks fans Ready/StatelessReset up-calls out to Redis
// when fanout is configured, and reports every segment outcome and
// connection creation to the metrics package.
type endpointCallbacks struct {
	fanout *syncfanout.Fanout
}

func (c endpointCallbacks) OnReady(conn *quic.Connection) {
	log.Printf("quicingress: connection ready, initial_cid=%x", conn.InitialCID.Bytes())
	_ = c.fanout.Publish(context.Background(), syncfanout.Event{
		Type:         syncfanout.EventReady,
		ConnectionID: hexCID(conn),
		PeerAddr:     conn.Path0.PeerAddr.String(),
	})
}

func (c endpointCallbacks) OnStatelessReset(conn *quic.Connection) {
	log.Printf("quicingress: stateless reset, initial_cid=%x", conn.InitialCID.Bytes())
	_ = c.fanout.Publish(context.Background(), syncfanout.Event{
		Type:         syncfanout.EventStatelessReset,
		ConnectionID: hexCID(conn),
		PeerAddr:     conn.Path0.PeerAddr.String(),
	})
}

func (c endpointCallbacks) OnSegment(kind quic.Kind) {
	metrics.ObserveOutcome(kind)
}

func (c endpointCallbacks) OnConnectionCreated(conn *quic.Connection) {
	metrics.ObserveConnectionCreated()
}

func hexCID(conn *quic.Connection) string {
	const hextable = "0123456789abcdef"
	b := conn.InitialCID.Bytes()
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0F]
	}
	return string(out)
}
