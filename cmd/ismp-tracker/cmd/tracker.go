package cmd

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/celestiaorg/ismp/pkg/ismp/client"
	"github.com/celestiaorg/ismp/pkg/ismp/config"
	"github.com/celestiaorg/ismp/pkg/ismp/cosmos"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// tracker owns the RPC connections and metrics server behind a client.
type tracker struct {
	client  *client.Client
	logger  log.Logger
	metrics *http.Server

	mu   sync.Mutex
	rpcs []*rpchttp.HTTP
}

func newTracker(cfg config.Config, logger log.Logger) (_ *tracker, err error) {
	t := &tracker{logger: logger}
	defer func() {
		if err != nil {
			t.Close()
		}
	}()

	// Index 0 is the hub, followed by the chains in configuration order.
	connected := make([]client.Chain, len(cfg.Chains)+1)
	var g errgroup.Group
	for i, chainCfg := range append([]config.ChainConfig{cfg.Hub}, cfg.Chains...) {
		g.Go(func() error {
			chain, err := t.connect(chainCfg)
			if err != nil {
				return err
			}
			connected[i] = chain
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	hub, chains := connected[0], connected[1:]

	registry := prometheus.NewRegistry()
	metrics, err := client.NewMetrics(registry)
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		t.serveMetrics(cfg.Metrics.ListenAddress, registry)
	}

	t.client = client.New(hub, chains,
		client.WithLogger(logger),
		client.WithMetrics(metrics),
		client.WithPollInterval(cfg.PollInterval.Duration),
	)
	return t, nil
}

// connect starts a websocket enabled RPC client for the chain.
func (t *tracker) connect(cfg config.ChainConfig) (*cosmos.Chain, error) {
	id, err := cfg.ID()
	if err != nil {
		return nil, err
	}
	rpc, err := rpchttp.New(cfg.RPCAddress, "/websocket")
	if err != nil {
		return nil, err
	}
	if err := rpc.Start(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.rpcs = append(t.rpcs, rpc)
	t.mu.Unlock()

	opts := []cosmos.Option{cosmos.WithLogger(t.logger), cosmos.WithPageSize(cfg.PageSize)}

	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	if key != nil {
		status, err := rpc.Status(context.Background())
		if err != nil {
			return nil, err
		}
		opts = append(opts, cosmos.WithBroadcaster(cosmos.NewTxBroadcaster(rpc, status.NodeInfo.Network, key)))
	}

	return cosmos.NewChain(id, rpc, opts...), nil
}

func (t *tracker) serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	t.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := t.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("metrics server stopped", "err", err)
		}
	}()
	t.logger.Info("serving metrics", "addr", addr)
}

func (t *tracker) Close() {
	if t.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.metrics.Shutdown(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rpc := range t.rpcs {
		if err := rpc.Stop(); err != nil {
			t.logger.Debug("stopping rpc client", "err", err)
		}
	}
}
