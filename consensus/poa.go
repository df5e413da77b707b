// Package consensus implements single-authority block production. The
// sequencer drains the mempool, executes each transaction on its own and
// seals the block with the authority key. Imported blocks are checked
// against the seal and replayed before they are stored.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/tolelom/artcade/config"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/vm"
)

// DefaultMaxBlockTxs applies when the config leaves MaxBlockTxs unset.
const DefaultMaxBlockTxs = 500

var (
	// ErrNotAuthority is returned when the local key is not the sequencer.
	ErrNotAuthority = errors.New("local key is not the chain authority")
	// ErrStateRootMismatch is returned when replaying a block does not
	// reproduce its state root.
	ErrStateRootMismatch = errors.New("state root mismatch")
)

var log = logrus.WithField("module", "consensus")

// PoA is the single-authority consensus engine.
type PoA struct {
	cfg       *config.Config
	bc        *core.Blockchain
	state     core.State
	mempool   *core.Mempool
	exec      *vm.Executor
	emitter   *events.Emitter
	privKey   crypto.PrivateKey
	authority common.Address
}

// New creates a PoA engine signing with privKey. A zero key gives an engine
// that only imports blocks.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
) *PoA {
	return &PoA{
		cfg:       cfg,
		bc:        bc,
		state:     state,
		mempool:   mempool,
		exec:      exec,
		emitter:   emitter,
		privKey:   privKey,
		authority: common.HexToAddress(cfg.Authority),
	}
}

// IsProposer reports whether the local key is the chain authority.
func (p *PoA) IsProposer() bool {
	return !p.privKey.IsZero() && p.privKey.Address() == p.authority
}

// ProduceBlock executes pending transactions, seals and commits the next
// block. Transactions that fail are dropped from the mempool and left out
// of the block. It returns (nil, nil) when there is nothing to include.
func (p *PoA) ProduceBlock() (*core.Block, error) {
	if !p.IsProposer() {
		return nil, ErrNotAuthority
	}

	limit := p.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = DefaultMaxBlockTxs
	}
	pending := p.mempool.Pending(limit)
	if len(pending) == 0 {
		return nil, nil
	}

	tip := p.bc.Tip()
	prevHash := config.GenesisHash
	nextHeight := int64(1)
	if tip != nil {
		prevHash = tip.Hash
		nextHeight = tip.Header.Height + 1
	}
	block := core.NewBlock(nextHeight, prevHash, p.authority, nil)

	snap, err := p.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	var (
		included []*core.Transaction
		buffered []events.Event
	)
	done := make([]string, 0, len(pending))
	for _, tx := range pending {
		done = append(done, tx.ID)
		evs, err := p.exec.ApplyTx(block, tx)
		if err != nil {
			p.drop(block, tx, err)
			continue
		}
		included = append(included, tx)
		buffered = append(buffered, evs...)
	}
	p.mempool.Remove(done)
	if len(included) == 0 {
		if err := p.state.RevertToSnapshot(snap); err != nil {
			return nil, fmt.Errorf("revert empty block: %w", err)
		}
		return nil, nil
	}

	block.Transactions = included
	block.Header.TxRoot = core.ComputeTxRoot(included)
	// The root is computed from the write buffer before flushing so a
	// failing AddBlock leaves nothing persisted.
	block.Header.StateRoot = p.state.ComputeRoot()
	if err := block.Seal(p.privKey); err != nil {
		return nil, p.revert(snap, fmt.Errorf("seal block: %w", err))
	}
	if err := p.bc.AddBlock(block); err != nil {
		return nil, p.revert(snap, fmt.Errorf("add block: %w", err))
	}
	p.commit(block, buffered)
	log.WithFields(logrus.Fields{
		"height":  block.Header.Height,
		"hash":    block.Hash,
		"txs":     len(included),
		"dropped": len(pending) - len(included),
	}).Info("sealed block")
	return block, nil
}

// ImportBlock validates a block sealed elsewhere, replays its transactions
// and stores it when the resulting state root matches the header. Its
// transactions are removed from the local mempool.
func (p *PoA) ImportBlock(block *core.Block) error {
	if err := p.ValidateBlock(block); err != nil {
		return err
	}
	snap, err := p.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	evs, err := p.exec.ExecuteBlock(block)
	if err != nil {
		return p.revert(snap, fmt.Errorf("replay block %d: %w", block.Header.Height, err))
	}
	if root := p.state.ComputeRoot(); root != block.Header.StateRoot {
		return p.revert(snap, fmt.Errorf("%w: block %d has %s, replay gives %s",
			ErrStateRootMismatch, block.Header.Height, block.Header.StateRoot, root))
	}
	if err := p.bc.AddBlock(block); err != nil {
		return p.revert(snap, fmt.Errorf("add block: %w", err))
	}
	ids := make([]string, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		ids = append(ids, tx.ID)
	}
	p.mempool.Remove(ids)
	p.commit(block, evs)
	log.WithFields(logrus.Fields{
		"height": block.Header.Height,
		"hash":   block.Hash,
		"txs":    len(block.Transactions),
	}).Debug("imported block")
	return nil
}

// commit flushes the state of a stored block, then publishes the events of
// its transactions followed by block_commit.
func (p *PoA) commit(block *core.Block, evs []events.Event) {
	if err := p.state.Commit(); err != nil {
		log.WithError(err).WithField("height", block.Header.Height).
			Fatal("block stored but state commit failed")
	}
	p.exec.Publish(evs)
	p.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"hash": block.Hash, "txs": len(block.Transactions)},
	})
}

func (p *PoA) revert(snap int, cause error) error {
	if err := p.state.RevertToSnapshot(snap); err != nil {
		return fmt.Errorf("%w (revert: %v)", cause, err)
	}
	return cause
}

func (p *PoA) drop(block *core.Block, tx *core.Transaction, reason error) {
	log.WithFields(logrus.Fields{
		"tx":   tx.ID,
		"type": tx.Type,
		"from": tx.From.Hex(),
	}).WithError(reason).Warn("dropped transaction")
	p.emitter.Emit(events.Event{
		Type:        events.EventTxDropped,
		TxID:        tx.ID,
		BlockHeight: block.Header.Height,
		Data: map[string]any{
			"type":   string(tx.Type),
			"from":   tx.From.Hex(),
			"reason": reason.Error(),
		},
	})
}

// ValidateBlock checks that block was sealed by the authority, commits to
// its transactions and links to the current tip.
func (p *PoA) ValidateBlock(block *core.Block) error {
	if block.Header.Proposer != p.authority {
		return fmt.Errorf("wrong proposer: got %s want %s", block.Header.Proposer.Hex(), p.authority.Hex())
	}
	if err := block.Verify(); err != nil {
		return fmt.Errorf("block signature invalid: %w", err)
	}
	if block.Header.TxRoot != core.ComputeTxRoot(block.Transactions) {
		return errors.New("tx root mismatch")
	}

	tip := p.bc.Tip()
	if tip == nil {
		if !config.IsGenesisHash(block.Header.PrevHash) {
			return errors.New("first block must reference genesis prev-hash")
		}
		return nil
	}
	if block.Header.PrevHash != tip.Hash {
		return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, tip.Hash)
	}
	if block.Header.Height != tip.Header.Height+1 {
		return fmt.Errorf("height mismatch: got %d want %d", block.Header.Height, tip.Header.Height+1)
	}
	return nil
}

// Run produces a block every interval until ctx is cancelled.
func (p *PoA) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.IsProposer() {
				continue
			}
			if _, err := p.ProduceBlock(); err != nil {
				log.WithError(err).Error("produce block")
			}
		}
	}
}
