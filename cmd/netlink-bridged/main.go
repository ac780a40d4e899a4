// Command netlink-bridged runs the control-plane bridge as a standalone
// process: it opens one tap endpoint per configured VLAN, subscribes to
// kernel netlink change events, and reconciles them against an in-memory
// switch-state snapshot. The metrics endpoint serves the route-accounting
// counters; the snapshot itself is not exposed.
//
// Grounded on cmd/ovn-kube-util/app/ovs-exporter.go's cli.Command shape:
// context.WithCancel tied to OS signals, a WaitGroup-bounded graceful
// shutdown, and a Prometheus metrics server on its own bind address.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/rizard/fboss/pkg/bridge"
	"github.com/rizard/fboss/pkg/config"
	"github.com/rizard/fboss/pkg/fabric"
	"github.com/rizard/fboss/pkg/stats"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "netlink-bridged",
		Usage: "reconcile kernel netlink state against a software switch's forwarding tables",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tap-prefix",
				Usage:    "tap device name prefix; devices are named <prefix><vlan-id>",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "vlan",
				Usage: "vlan-id:port-id[,port-id...], repeatable",
			},
			&cli.StringFlag{
				Name:  "metrics-bind-address",
				Usage: "address the Prometheus metrics server listens on",
				Value: "0.0.0.0:9320",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		klog.Fatalf("netlink-bridged: %v", err)
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := configFromFlags(cliCtx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		klog.Info("netlink-bridged: shutdown signal received")
		cancel()
	}()

	registry := prometheus.NewRegistry()
	sink := stats.NewPrometheusSink(registry)

	sw := fabric.NewMemorySwitch()
	io := fabric.NewLoggingPacketIO()
	b := bridge.New(cfg.TapPrefix, sw, io, sink)

	vlans := make([]bridge.VlanSpec, 0, len(cfg.Vlans))
	for _, v := range cfg.Vlans {
		vlans = append(vlans, bridge.VlanSpec{
			VlanID:      v.VlanID,
			InterfaceID: v.InterfaceID,
			Ports:       v.Ports,
			MTU:         v.MTU,
		})
	}
	if err := b.Start(vlans); err != nil {
		return err
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go serveMetrics(ctx, cfg.MetricsBindAddress, registry, wg)

	<-ctx.Done()

	b.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		klog.Info("netlink-bridged: stopped gracefully")
	case <-time.After(shutdownTimeout):
		klog.Warning("netlink-bridged: timed out waiting for metrics server to stop")
	}

	return nil
}

func configFromFlags(cliCtx *cli.Context) (config.Config, error) {
	var vlans []config.VlanConfig
	for _, spec := range cliCtx.StringSlice("vlan") {
		v, err := config.ParseVlanSpec(spec)
		if err != nil {
			return config.Config{}, err
		}
		vlans = append(vlans, v)
	}

	cfg := config.Config{
		TapPrefix:          cliCtx.String("tap-prefix"),
		MetricsBindAddress: cliCtx.String("metrics-bind-address"),
		Vlans:              vlans,
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, wg *sync.WaitGroup) {
	defer wg.Done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			klog.Warningf("netlink-bridged: metrics server shutdown: %v", err)
		}
	}()

	klog.Infof("netlink-bridged: metrics server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		klog.Errorf("netlink-bridged: metrics server: %v", err)
	}
}
