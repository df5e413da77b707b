package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/tolelom/artcade/config"
	"github.com/tolelom/artcade/consensus"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/indexer"
	"github.com/tolelom/artcade/storage"
	"github.com/tolelom/artcade/vm"
	cli "gopkg.in/urfave/cli.v1"
)

func chainFileArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.New("expected exactly one file argument")
	}
	return c.Args().First(), nil
}

// openChain loads the config and opens the chain database under its data
// directory. The caller closes the returned DB.
func openChain(c *cli.Context) (*config.Config, *storage.LevelDB, *core.Blockchain, error) {
	cfg, err := loadConfig(c.String(configFlag.Name))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	if err := configureLogging(c, cfg); err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open db: %w", err)
	}
	bc := core.NewBlockchain(storage.NewBlockStore(db), common.HexToAddress(cfg.Authority))
	if err := bc.Init(); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("blockchain init: %w", err)
	}
	return cfg, db, bc, nil
}

func exportChain(c *cli.Context) error {
	path, err := chainFileArg(c)
	if err != nil {
		return err
	}
	_, db, bc, err := openChain(c)
	if err != nil {
		return err
	}
	defer db.Close()
	if bc.Tip() == nil {
		return errors.New("chain is empty")
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	height := bc.Height()
	for h := int64(0); h <= height; h++ {
		block, err := bc.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("block %d: %w", h, err)
		}
		if err := enc.Encode(block); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"file": path, "height": height}).Info("exported chain")
	return nil
}

func importChain(c *cli.Context) error {
	path, err := chainFileArg(c)
	if err != nil {
		return err
	}
	cfg, db, bc, err := openChain(c)
	if err != nil {
		return err
	}
	defer db.Close()

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	state := storage.NewStateDB(db)
	emitter := events.NewEmitter()
	indexer.New(db, emitter)
	exec := vm.NewExecutor(state, emitter, cfg.Genesis.ChainID)
	follower := consensus.New(cfg, bc, state, core.NewMempool(cfg.Genesis.ChainID), exec, emitter, crypto.PrivateKey{})

	dec := json.NewDecoder(bufio.NewReader(in))
	imported, skipped := 0, 0
	for {
		var block core.Block
		if err := dec.Decode(&block); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("decode block: %w", err)
		}

		switch {
		case bc.Tip() == nil:
			if _, err := config.ImportGenesis(cfg, state, &block); err != nil {
				return err
			}
			if err := bc.AddBlock(&block); err != nil {
				return fmt.Errorf("add genesis: %w", err)
			}
		case block.Header.Height <= bc.Height():
			stored, err := bc.GetBlockByHeight(block.Header.Height)
			if err != nil {
				return fmt.Errorf("block %d: %w", block.Header.Height, err)
			}
			if stored.Hash != block.Hash {
				return fmt.Errorf("block %d conflicts with the stored chain", block.Header.Height)
			}
			skipped++
			continue
		default:
			if err := follower.ImportBlock(&block); err != nil {
				return fmt.Errorf("import block %d: %w", block.Header.Height, err)
			}
		}
		imported++
	}
	log.WithFields(logrus.Fields{
		"file":     path,
		"imported": imported,
		"skipped":  skipped,
		"height":   bc.Height(),
	}).Info("imported chain")
	return nil
}
