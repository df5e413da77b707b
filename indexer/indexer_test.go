package indexer_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/indexer"
	"github.com/tolelom/artcade/internal/testutil"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	player  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	buyer   = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	game1   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	game2   = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	cred1   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func TestGamesIndexes(t *testing.T) {
	r := require.New(t)
	em := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), em)

	games, err := idx.GetGamesByCreator(creator)
	r.NoError(err)
	r.Empty(games)

	for _, g := range []common.Address{game1, game2, game1} {
		em.Emit(events.Event{Type: events.EventGameCreated, Data: map[string]any{
			"creator": creator.Hex(),
			"game":    g.Hex(),
		}})
	}
	em.Emit(events.Event{Type: events.EventPlayerRegistered, Data: map[string]any{
		"player": player.Hex(),
		"game":   game2.Hex(),
	}})
	// Malformed events are ignored.
	em.Emit(events.Event{Type: events.EventGameCreated, Data: map[string]any{"creator": creator.Hex()}})

	games, err = idx.GetGamesByCreator(creator)
	r.NoError(err)
	r.Equal([]common.Address{game1, game2}, games)

	games, err = idx.GetGamesByPlayer(player)
	r.NoError(err)
	r.Equal([]common.Address{game2}, games)
}

func TestCredentialOwnership(t *testing.T) {
	r := require.New(t)
	em := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), em)

	for _, id := range []uint64{1, 2} {
		em.Emit(events.Event{Type: events.EventCredentialMinted, Data: map[string]any{
			"contract": cred1.Hex(),
			"id":       id,
			"owner":    player.Hex(),
		}})
	}
	em.Emit(events.Event{Type: events.EventCredentialTransfer, Data: map[string]any{
		"contract": cred1.Hex(),
		"id":       uint64(1),
		"from":     player.Hex(),
		"to":       buyer.Hex(),
	}})

	held, err := idx.GetCredentialsByOwner(player)
	r.NoError(err)
	r.Equal([]indexer.CredentialRef{{Contract: cred1, ID: 2}}, held)

	held, err = idx.GetCredentialsByOwner(buyer)
	r.NoError(err)
	r.Equal([]indexer.CredentialRef{{Contract: cred1, ID: 1}}, held)
}
