// Command node starts an Artcade sequencer node. It also exports the
// stored chain and imports an exported one, replaying every block.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/tolelom/artcade/config"
	"github.com/tolelom/artcade/consensus"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/indexer"
	"github.com/tolelom/artcade/rpc"
	"github.com/tolelom/artcade/storage"
	"github.com/tolelom/artcade/vm"
	"github.com/tolelom/artcade/wallet"
	cli "gopkg.in/urfave/cli.v1"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/artcade/vm/modules/arcade"
	_ "github.com/tolelom/artcade/vm/modules/credential"
	_ "github.com/tolelom/artcade/vm/modules/economy"
	_ "github.com/tolelom/artcade/vm/modules/token"
)

var log = logrus.WithField("module", "node")

var (
	configFlag = cli.StringFlag{
		Name:   "config",
		Usage:  "Path to the JSON config file",
		Value:  "config.json",
		EnvVar: "ARTCADE_CONFIG",
	}
	keyFlag = cli.StringFlag{
		Name:   "key",
		Usage:  "Path to the authority keystore file",
		Value:  "authority.key",
		EnvVar: "ARTCADE_KEY",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log.level",
		Usage: "Log level (panic|fatal|error|warn|info|debug|trace), overrides the config",
	}
	logFormatFlag = cli.StringFlag{
		Name:  "log.format",
		Usage: "Log output format (text|json), overrides the config",
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "artcade"
	app.Usage = "Artcade pay-to-play arcade sequencer"
	app.Version = "0.1.0"
	app.Writer = os.Stdout
	app.Flags = []cli.Flag{configFlag, keyFlag, logLevelFlag, logFormatFlag}
	app.Action = runNode
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "Run the sequencer node",
			Flags:  []cli.Flag{configFlag, keyFlag, logLevelFlag, logFormatFlag},
			Action: runNode,
		},
		{
			Name:      "export",
			Usage:     "Write the stored chain to a file, one JSON block per line",
			ArgsUsage: "<file>",
			Flags:     []cli.Flag{configFlag, logLevelFlag, logFormatFlag},
			Action:    exportChain,
		},
		{
			Name:      "import",
			Usage:     "Verify and replay blocks from an export file",
			ArgsUsage: "<file>",
			Flags:     []cli.Flag{configFlag, logLevelFlag, logFormatFlag},
			Action:    importChain,
		},
		{
			Name:   "genkey",
			Usage:  "Generate a new authority key and exit",
			Flags:  []cli.Flag{keyFlag},
			Action: genKey,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// password reads the keystore password from the environment; CLI flags
// leak via ps.
func password() string {
	pw := os.Getenv("ARTCADE_PASSWORD")
	if pw == "" {
		log.Warn("ARTCADE_PASSWORD not set, keystore uses an empty password")
	}
	return pw
}

func genKey(c *cli.Context) error {
	path := c.String(keyFlag.Name)
	w, err := wallet.Generate(0)
	if err != nil {
		return err
	}
	if err := wallet.SaveKey(path, password(), w.PrivKey()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Generated key. Authority address: %s\n", w.Address().Hex())
	fmt.Fprintf(c.App.Writer, "Saved to: %s\n", path)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.WithField("path", path).Info("config file not found, using defaults")
		path = ""
	}
	return config.Load(path)
}

// configureLogging applies the config's log settings, overridden by flags.
func configureLogging(c *cli.Context, cfg *config.Config) error {
	level, format := cfg.LogLevel, cfg.LogFormat
	if v := c.String(logLevelFlag.Name); v != "" {
		level = v
	}
	if v := c.String(logFormatFlag.Name); v != "" {
		format = v
	}
	return setupLogging(level, format)
}

func runNode(c *cli.Context) error {
	cfg, err := loadConfig(c.String(configFlag.Name))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := configureLogging(c, cfg); err != nil {
		return err
	}

	privKey, err := wallet.LoadKey(c.String(keyFlag.Name), password())
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	if cfg.Authority == "" {
		cfg.Authority = privKey.Address().Hex()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if common.HexToAddress(cfg.Authority) != privKey.Address() {
		return fmt.Errorf("key %s is not the configured authority %s", privKey.Address().Hex(), cfg.Authority)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// State, blocks and indexes share one DB under different key prefixes.
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db), privKey.Address())
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesis, dep, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesis); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		log.WithFields(logrus.Fields{
			"hash":           genesis.Hash,
			"registry":       dep.Registry.Hex(),
			"game_template":  dep.GameTemplate.Hex(),
			"ticket_token":   dep.TicketToken.Hex(),
			"native_wrapper": dep.NativeWrapper.Hex(),
		}).Info("genesis block committed")
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool(cfg.Genesis.ChainID)
	exec := vm.NewExecutor(state, emitter, cfg.Genesis.ChainID)
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey)

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcServer := rpc.NewServer(rpcAddr, rpc.NewHandler(bc, mempool, state, idx, cfg.Genesis.ChainID), cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	log.WithFields(logrus.Fields{"addr": rpcAddr, "auth": cfg.RPCAuthToken != ""}).Info("RPC listening")

	// ---- sequencer loop ----
	interval := time.Duration(cfg.BlockIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poa.Run(ctx, interval)
	}()
	log.WithFields(logrus.Fields{
		"authority": privKey.Address().Hex(),
		"chain_id":  cfg.Genesis.ChainID,
		"interval":  interval,
	}).Info("sequencer running")

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	// Stop the sequencer first so no block is written during teardown.
	cancel()
	wg.Wait()
	log.Info("shutdown complete")
	return nil
}
