// Command bridge-validator runs one validator's half of the cross-chain
// bridge: it watches the foreign chain for deposits, confirms them on
// the home chain, and buries the resulting transactions, stopping
// itself automatically if it ever falls out of the validator set and
// pausing confirmations while its balance is below the configured
// minimum. Grounded on the teacher's root main.go
// composition style (dial clients, build every component, wire them
// into one run loop, wait on a signal) and the source's main.py
// make_* factory wiring, including its installed POSIX signal
// semantics (SIGINT/SIGTERM stop, SIGHUP reloads logging, SIGUSR1
// dumps recorder state).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trustlines-network/bridge-validator/internal/bridgetypes"
	"github.com/trustlines-network/bridge-validator/internal/chain"
	"github.com/trustlines-network/bridge-validator/internal/config"
	"github.com/trustlines-network/bridge-validator/internal/contracts"
	"github.com/trustlines-network/bridge-validator/internal/controlbus"
	"github.com/trustlines-network/bridge-validator/internal/debugserver"
	"github.com/trustlines-network/bridge-validator/internal/fetcher"
	"github.com/trustlines-network/bridge-validator/internal/planner"
	"github.com/trustlines-network/bridge-validator/internal/queue"
	"github.com/trustlines-network/bridge-validator/internal/recorder"
	"github.com/trustlines-network/bridge-validator/internal/sender"
	"github.com/trustlines-network/bridge-validator/internal/supervisor"
	"github.com/trustlines-network/bridge-validator/internal/validatorwatch"
	"github.com/trustlines-network/bridge-validator/internal/watcher"
)

// eventChannelCapacity bounds how many events a fetcher can buffer
// ahead of the planner before its send blocks, which back-pressures the
// slower of the two foreign/home fetchers rather than dropping events.
const eventChannelCapacity = 256

// defaultBalanceRecoveryBuffer is added to MinimumValidatorBalance to
// compute the threshold a low balance must climb back above before
// confirmations resume, per internal/validatorwatch's hysteresis.
var defaultBalanceRecoveryBuffer = big.NewInt(1e16) // 0.01 ETH, in wei

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "[BridgeValidator] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Fatalf("bridge validator exited with error: %v", err)
	}
}

func run(cfg *config.Config, configPath string, logger *log.Logger) error {
	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, stopDaemon := context.WithCancel(ctx)
	defer stopDaemon()

	foreignClient, err := chain.Dial(ctx, "foreign", cfg.ForeignRPCURL)
	if err != nil {
		return err
	}
	defer foreignClient.Close()

	homeClient, err := chain.Dial(ctx, "home", cfg.HomeRPCURL)
	if err != nil {
		return err
	}
	defer homeClient.Close()

	homeChainID, err := homeClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to determine home chain ID: %w", err)
	}

	tokenAddr := common.HexToAddress(cfg.ForeignChainTokenContractAddress)
	foreignBridgeAddr := common.HexToAddress(cfg.ForeignBridgeContractAddress)
	homeBridgeAddr := common.HexToAddress(cfg.HomeBridgeContractAddress)

	transfers := make(chan bridgetypes.TransferEvent, eventChannelCapacity)
	confirmations := make(chan bridgetypes.ConfirmationEvent, eventChannelCapacity)
	completions := make(chan bridgetypes.CompletionEvent, eventChannelCapacity)
	tasks := make(chan bridgetypes.TransferEvent, eventChannelCapacity)

	bus := controlbus.New(eventChannelCapacity)
	state := recorder.New(cfg.HomeChainStepDuration)
	pending := queue.New()

	transferFetcher := fetcher.NewTransferFetcher(
		foreignClient, tokenAddr, foreignBridgeAddr,
		fetcher.Config{
			MaxReorgDepth: cfg.ForeignChainMaxReorgDepth,
			PollInterval:  cfg.ForeignChainEventPollInterval,
			StartBlock:    cfg.ForeignChainEventFetchStartBlockNumber,
		},
		transfers, log.New(os.Stdout, "[TransferFetcher] ", log.LstdFlags),
	)

	gasPrice := big.NewInt(cfg.HomeChainGasPrice)

	homeSender, err := sender.New(
		homeClient, homeBridgeAddr, cfg.ValidatorPrivateKey, homeChainID, gasPrice,
		tasks, pending, log.New(os.Stdout, "[ConfirmationSender] ", log.LstdFlags),
	)
	if err != nil {
		return err
	}
	validatorAddr := homeSender.Address()
	logger.Printf("validator address: %s", validatorAddr)

	homeFetcher := fetcher.NewHomeEventFetcher(
		homeClient, homeBridgeAddr, validatorAddr,
		fetcher.Config{
			MaxReorgDepth: cfg.HomeChainMaxReorgDepth,
			PollInterval:  cfg.HomeChainEventPollInterval,
			StartBlock:    cfg.HomeChainEventFetchStartBlockNumber,
		},
		confirmations, completions, log.New(os.Stdout, "[HomeEventFetcher] ", log.LstdFlags),
	)

	taskPlanner := planner.New(
		state,
		planner.Config{
			PollInterval:  cfg.HomeChainStepDuration,
			ClearInterval: cfg.HomeChainStepDuration * 10,
		},
		transfers, confirmations, completions, bus.Channel(), tasks,
		log.New(os.Stdout, "[Planner] ", log.LstdFlags),
	)

	confirmationWatcher := watcher.New(
		homeClient, pending,
		watcher.Config{
			PollInterval:        cfg.HomeChainEventPollInterval,
			MaxReorgDepth:       cfg.HomeChainMaxReorgDepth,
			EvictionGracePeriod: cfg.HomeChainStepDuration * 10,
			MaxResubmissions:    5,
			GasBumpPercent:      20,
		},
		homeSender.Resubmit, &chain.Backoff{}, log.New(os.Stdout, "[ConfirmationWatcher] ", log.LstdFlags),
	)

	sup := supervisor.New(cfg.ApplicationCleanupTimeout, log.New(os.Stdout, "[Supervisor] ", log.LstdFlags))

	validatorProxyAddr, err := fetchValidatorProxyAddress(ctx, homeClient, homeBridgeAddr)
	if err != nil {
		return err
	}

	statusWatcher := validatorwatch.NewStatusWatcher(
		homeClient, validatorProxyAddr, validatorAddr, cfg.HomeChainStepDuration, bus,
		func() {
			logger.Printf("validator is no longer active; shutting down")
			stopDaemon()
		},
		log.New(os.Stdout, "[StatusWatcher] ", log.LstdFlags),
	)
	balanceWatcher := validatorwatch.NewBalanceWatcher(
		homeClient, validatorAddr, big.NewInt(cfg.MinimumValidatorBalance), defaultBalanceRecoveryBuffer,
		cfg.BalanceWarnPollInterval, bus, log.New(os.Stdout, "[BalanceWatcher] ", log.LstdFlags),
	)

	sup.Add("foreign-transfer-fetcher", transferFetcher.Run)
	sup.Add("home-event-fetcher", homeFetcher.Run)
	sup.Add("confirmation-task-planner", taskPlanner.Run)
	sup.Add("confirmation-sender", homeSender.Run)
	sup.Add("confirmation-watcher", confirmationWatcher.Run)
	sup.Add("validator-status-watcher", statusWatcher.Run)
	sup.Add("validator-balance-watcher", balanceWatcher.Run)

	if cfg.Webservice.Enabled {
		debugHandlers := debugserver.New(cfg, state, statusWatcher, balanceWatcher, log.New(os.Stdout, "[DebugServer] ", log.LstdFlags))
		addr := fmt.Sprintf("%s:%d", cfg.Webservice.Host, cfg.Webservice.Port)
		mux := debugHandlers.Mux()
		sup.Add("debug-server", func(taskCtx context.Context) error {
			return debugserver.Run(taskCtx, addr, mux, log.New(os.Stdout, "[DebugServer] ", log.LstdFlags))
		})
	}

	installReloadHandler(cfg, configPath, logger)
	installStateDumpHandler(state, logger)

	logger.Printf("bridge validator starting")
	err = sup.Run(ctx)
	logger.Printf("bridge validator stopped")
	return err
}

// fetchValidatorProxyAddress reads the home bridge's validatorProxy()
// view to find the contract the status watcher should poll, mirroring
// the source's get_validator_proxy_contract, which derives the proxy
// from the bridge rather than taking it as separate configuration.
func fetchValidatorProxyAddress(ctx context.Context, client *chain.Client, homeBridgeAddr common.Address) (common.Address, error) {
	data, err := contracts.HomeBridge().Pack("validatorProxy")
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack validatorProxy call: %w", err)
	}
	out, err := client.CallContractData(ctx, homeBridgeAddr, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read validatorProxy address from home bridge: %w", err)
	}
	var proxyAddr common.Address
	if err := contracts.HomeBridge().UnpackIntoInterface(&proxyAddr, "validatorProxy", out); err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack validatorProxy result: %w", err)
	}
	return proxyAddr, nil
}

// installReloadHandler re-reads the log level from the config file on
// SIGHUP, mirroring the source's reload_logging_config signal handler.
// It only reloads the log level: every other setting requires a
// restart because it is already baked into the components it
// configures (RPC clients, contract addresses, channel sizes).
func installReloadHandler(cfg *config.Config, configPath string, logger *log.Logger) {
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			fresh, err := config.Load(configPath)
			if err != nil {
				logger.Printf("SIGHUP: failed to reload configuration: %v", err)
				continue
			}
			cfg.LogLevel = fresh.LogLevel
			logger.Printf("SIGHUP: reloaded log level: %s", cfg.LogLevel)
		}
	}()
}

// installStateDumpHandler logs a recorder summary on SIGUSR1, mirroring
// the source's report-internal-state signal handler.
func installStateDumpHandler(state *recorder.State, logger *log.Logger) {
	dump := make(chan os.Signal, 1)
	signal.Notify(dump, syscall.SIGUSR1)
	go func() {
		for range dump {
			summary := state.GetStateSummary()
			logger.Printf(
				"state dump: transfers=%d confirmations=%d completions=%d scheduled=%d confirmations_synced_until=%s completions_synced_until=%s",
				summary.TransferCount, summary.ConfirmationCount, summary.CompletionCount, summary.ScheduledCount,
				summary.ConfirmationsSyncedUntil.Format(time.RFC3339), summary.CompletionsSyncedUntil.Format(time.RFC3339),
			)
		}
	}()
}
