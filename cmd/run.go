package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"time"

	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/config"
	"github.com/omnibridge/bridge-service/db"
	"github.com/omnibridge/bridge-service/etherman"
	"github.com/omnibridge/bridge-service/log"
	"github.com/omnibridge/bridge-service/metrics"
	"github.com/omnibridge/bridge-service/scheduler"
	"github.com/omnibridge/bridge-service/server"
	"github.com/omnibridge/bridge-service/signer"
	"github.com/omnibridge/bridge-service/submitter"
	"github.com/omnibridge/bridge-service/subman"
	"github.com/omnibridge/bridge-service/watcher"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const balanceMetricInterval = time.Minute

func start(cliCtx *cli.Context) error {
	c, err := config.Load(cliCtx.String(flagCfg))
	if err != nil {
		return err
	}
	setupLog(c.Log)
	err = db.RunMigrations(c.SyncDB)
	if err != nil {
		log.Error(err)
		return errors.Wrap(err, "run migrations error")
	}
	storage, err := db.NewStorage(c.SyncDB)
	if err != nil {
		log.Error(err)
		return errors.Wrap(err, "init storage error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chainSet := buildChainSet(c)
	sched := scheduler.NewScheduler(storage, c.Scheduler)

	type healthEntry struct {
		name    string
		healthy func() bool
	}
	var healthEntries []healthEntry

	for _, chainCfg := range c.EVMChains {
		client, err := etherman.NewClient(ctx, chainCfg.Config, chainSet)
		if err != nil {
			log.Error(err)
			return errors.Wrapf(err, "connect evm chain %d error", chainCfg.ChainID)
		}
		sig := signer.NewEVM(chainCfg.Keystore, client.NetworkID())
		sub, err := submitter.NewEVM(client, sig, storage, c.Submitter, sched.Outcomes())
		if err != nil {
			log.Error(err)
			return err
		}
		sched.RegisterSubmitter(sub)
		go func() {
			if err := sub.Run(ctx); err != nil {
				log.Fatal(err)
			}
		}()
		runWatcher(ctx, client, storage, c.Watcher, chainCfg.StartBlock, sched)
		go runBalanceMetric(ctx, client, sig)
		healthEntries = append(healthEntries, healthEntry{"signer:" + client.ChainRef().String(), sig.Healthy})
	}

	for _, chainCfg := range c.SubstrateChains {
		client, err := subman.NewClient(chainCfg.Config, chainSet)
		if err != nil {
			log.Error(err)
			return errors.Wrapf(err, "connect substrate chain %d error", chainCfg.ChainID)
		}
		sig := signer.NewSubstrate(chainCfg.Seed, chainCfg.SS58Prefix)
		sub, err := submitter.NewSubstrate(client, sig, storage, c.Submitter, sched.Outcomes())
		if err != nil {
			log.Error(err)
			return err
		}
		sched.RegisterSubmitter(sub)
		go func() {
			if err := sub.Run(ctx); err != nil {
				log.Fatal(err)
			}
		}()
		runWatcher(ctx, client, storage, c.Watcher, chainCfg.StartBlock, sched)
		healthEntries = append(healthEntries, healthEntry{"signer:" + client.ChainRef().String(), sig.Healthy})
	}

	go func() {
		if err := sched.Run(ctx); err != nil {
			log.Fatal(err)
		}
	}()
	go metrics.StartMetricsHttpServer(c.Metrics)

	healthFn := func() map[string]bool {
		components := make(map[string]bool, len(healthEntries))
		for _, entry := range healthEntries {
			components[entry.name] = entry.healthy()
		}
		return components
	}
	srv := server.NewServer(c.BridgeServer, storage, healthFn)
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Fatal(err)
		}
	}()

	// Wait for an in interrupt.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	<-ch

	return nil
}

func setupLog(c log.Config) {
	log.Init(c)
}

func buildChainSet(c *config.Config) bridge.ChainSet {
	var refs []bridge.ChainRef
	for _, chainCfg := range c.EVMChains {
		refs = append(refs, bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: chainCfg.ChainID})
	}
	for _, chainCfg := range c.SubstrateChains {
		refs = append(refs, bridge.ChainRef{Family: bridge.FamilySubstrate, ChainID: chainCfg.ChainID})
	}
	return bridge.NewChainSet(refs...)
}

type watcherAdapter interface {
	ChainRef() bridge.ChainRef
	HeadHeight(ctx context.Context) (uint64, error)
	PaidInEventsByBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]bridge.TransferIntent, error)
}

func runWatcher(ctx context.Context, adapter watcherAdapter, storage db.Storage, cfg watcher.Config, startBlock uint64, sched *scheduler.Scheduler) {
	w := watcher.NewWatcher(adapter, storage, cfg, startBlock, sched.Intents())
	go func() {
		if err := w.Sync(ctx); err != nil {
			log.Fatal(err)
		}
	}()
}

// runBalanceMetric publishes the relayer balance of an evm destination so
// operators see refill needs coming.
func runBalanceMetric(ctx context.Context, client *etherman.Client, sig *signer.EVM) {
	weiPerEth := new(big.Float).SetFloat64(1e18)
	ticker := time.NewTicker(balanceMetricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			addr, err := sig.Address()
			if err != nil {
				continue
			}
			balance, err := client.BalanceAt(ctx, addr, nil)
			if err != nil {
				continue
			}
			value, _ := new(big.Float).Quo(new(big.Float).SetInt(balance), weiPerEth).Float64()
			metrics.SetRelayerBalance(client.ChainRef().String(), value)
		}
	}
}
