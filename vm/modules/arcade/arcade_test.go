package arcade

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
	"github.com/tolelom/artcade/events"
	"github.com/tolelom/artcade/internal/testutil"
	"github.com/tolelom/artcade/vm"
	"github.com/tolelom/artcade/vm/modules/credential"
	"github.com/tolelom/artcade/vm/modules/economy"
	"github.com/tolelom/artcade/vm/modules/token"
)

const testChainID = 31337

var price = big.NewInt(1000)

type fixture struct {
	t        *testing.T
	state    core.State
	exec     *vm.Executor
	block    *core.Block
	dep      Deployment
	owner    crypto.PrivateKey
	creator  crypto.PrivateKey
	signer   crypto.PrivateKey
	player   crypto.PrivateKey
	protocol common.Address
	operator common.Address

	mu     sync.Mutex
	events []events.Event
}

func newKey(t *testing.T) crypto.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		state:    testutil.NewStateDB(),
		owner:    newKey(t),
		creator:  newKey(t),
		signer:   newKey(t),
		player:   newKey(t),
		protocol: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		operator: common.HexToAddress("0x00000000000000000000000000000000000000bb"),
	}
	dep, err := Bootstrap(f.state, f.owner.Address(), core.RegistrySettings{
		PricePerGame:      price,
		MaxTicketsPerGame: 100,
		ProtocolRecipient: f.protocol,
		ProtocolFeeBps:    1000,
	})
	require.NoError(t, err)
	f.dep = dep

	for _, k := range []crypto.PrivateKey{f.owner, f.creator, f.player} {
		require.NoError(t, f.state.SetAccount(&core.Account{Address: k.Address(), Balance: big.NewInt(1_000_000)}))
	}

	emitter := events.NewEmitter()
	emitter.SubscribeAll(func(ev events.Event) {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
	})
	f.exec = vm.NewExecutor(f.state, emitter, testChainID)
	f.block = core.NewBlock(1, "", f.owner.Address(), nil)
	return f
}

func (f *fixture) send(key crypto.PrivateKey, typ core.TxType, to common.Address, value *big.Int, payload any) error {
	f.t.Helper()
	acc, err := f.state.GetAccount(key.Address())
	require.NoError(f.t, err)
	tx, err := core.NewTransaction(testChainID, typ, key.Address(), to, acc.Nonce, value, payload)
	require.NoError(f.t, err)
	require.NoError(f.t, tx.Sign(key))
	return f.exec.ExecuteTx(f.block, tx)
}

func (f *fixture) eventsOf(typ events.EventType) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fixture) credentialInit(name string, creator common.Address, admins ...common.Address) []byte {
	f.t.Helper()
	if admins == nil {
		admins = []common.Address{PredictGameAddress(f.dep.Registry, f.dep.GameTemplate, name, creator)}
	}
	b, err := credential.InitPayload{Name: name + " Players", Symbol: "PLY", Admins: admins}.Encode()
	require.NoError(f.t, err)
	return b
}

func (f *fixture) createGame(name string) common.Address {
	f.t.Helper()
	return f.createGameWith(name, "https://artcade.example/"+name, 100)
}

func (f *fixture) createGameWith(name, baseURI string, maxScore uint64) common.Address {
	f.t.Helper()
	err := f.send(f.creator, core.TxCreateGame, f.dep.Registry, nil, core.CreateGamePayload{
		Name:           name,
		BaseURI:        baseURI,
		Signer:         f.signer.Address(),
		MaxScore:       maxScore,
		FeeRecipient:   f.operator,
		CredentialInit: f.credentialInit(name, f.creator.Address()),
	})
	require.NoError(f.t, err)
	return PredictGameAddress(f.dep.Registry, f.dep.GameTemplate, name, f.creator.Address())
}

func (f *fixture) register(game common.Address, key crypto.PrivateKey) error {
	return f.send(key, core.TxRegisterPlayer, game, nil, core.RegisterPlayerPayload{})
}

func (f *fixture) signScore(game common.Address, name string, player common.Address, score uint64, nonce int64) hexutil.Bytes {
	f.t.Helper()
	d := crypto.Domain{Name: name, Version: DomainVersion, ChainID: testChainID, VerifyingContract: game}
	sig, err := crypto.Sign(f.signer, d.ScoreDigest(player, score, big.NewInt(nonce)))
	require.NoError(f.t, err)
	return sig
}

func (f *fixture) submit(game common.Address, name string, score uint64, nonce int64, value *big.Int) error {
	f.t.Helper()
	player := f.player.Address()
	return f.send(f.player, core.TxSubmitScore, game, value, core.SubmitScorePayload{
		Player:    player,
		Score:     score,
		Nonce:     (*hexutil.Big)(big.NewInt(nonce)),
		Signature: f.signScore(game, name, player, score, nonce),
	})
}

func (f *fixture) balance(addr common.Address) *big.Int {
	acc, err := f.state.GetAccount(addr)
	require.NoError(f.t, err)
	return acc.Balance
}

func (f *fixture) tickets(addr common.Address) *big.Int {
	bal, err := f.state.GetTokenBalance(f.dep.TicketToken, big.NewInt(1), addr)
	require.NoError(f.t, err)
	return bal
}

func (f *fixture) bound() (*vm.Context, Env) {
	ctx := vm.NewContext(f.state, f.block, nil, testChainID, f.exec.Guard())
	return ctx, NewEnv(ctx)
}

func TestBootstrap(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)

	reg, err := f.state.GetRegistry(f.dep.Registry)
	r.NoError(err)
	r.Equal(f.owner.Address(), reg.Owner)
	r.Equal(f.dep.GameTemplate, reg.Settings.GameTemplate)
	r.Equal(f.dep.NativeWrapper, reg.Settings.NativeWrapper)
	r.Equal(credential.Kind, reg.Settings.Credential.Kind)

	tok, err := f.state.GetTokenContract(f.dep.TicketToken)
	r.NoError(err)
	r.Equal(f.dep.Registry, tok.Minter)
	wrapper, err := f.state.GetTokenContract(f.dep.NativeWrapper)
	r.NoError(err)
	r.True(wrapper.Wrapper)

	_, err = Bootstrap(f.state, f.owner.Address(), core.RegistrySettings{})
	r.Error(err)
}

func TestCreateGame(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)

	predicted := PredictGameAddress(f.dep.Registry, f.dep.GameTemplate, "pong", f.creator.Address())
	game := f.createGame("pong")
	r.Equal(predicted, game)

	inst, err := f.state.GetGame(game)
	r.NoError(err)
	r.True(inst.Initialized)
	r.Equal(f.creator.Address(), inst.Owner)
	r.Equal(f.dep.Registry, inst.Registry)
	r.Equal(f.dep.GameTemplate, inst.Template)
	r.Equal(uint64(100), inst.Settings.MaxScore)

	rec, err := f.state.GetGameRecord(f.dep.Registry, game)
	r.NoError(err)
	r.True(rec.Created)
	r.Zero(rec.RewardAdjustment)

	admin, err := credential.At(vm.NewContext(f.state, nil, nil, testChainID, nil), inst.Credential).HasAdminRole(game)
	r.NoError(err)
	r.True(admin)
	r.Len(f.eventsOf(events.EventGameCreated), 1)
}

func TestCreateGameDuplicateName(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")

	err := f.send(f.creator, core.TxCreateGame, f.dep.Registry, nil, core.CreateGamePayload{
		Name:           "pong",
		Signer:         f.signer.Address(),
		MaxScore:       10,
		CredentialInit: f.credentialInit("pong-2", f.creator.Address(), game),
	})
	r.ErrorIs(err, ErrGameExists)

	// Another creator may reuse the name.
	other := f.owner
	err = f.send(other, core.TxCreateGame, f.dep.Registry, nil, core.CreateGamePayload{
		Name:           "pong",
		Signer:         f.signer.Address(),
		MaxScore:       10,
		CredentialInit: f.credentialInit("pong", other.Address()),
	})
	r.NoError(err)
	otherGame := PredictGameAddress(f.dep.Registry, f.dep.GameTemplate, "pong", other.Address())
	r.NotEqual(game, otherGame)
	_, err = f.state.GetGame(otherGame)
	r.NoError(err)
}

func TestCreateGameRequiresCredentialAdmin(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	stranger := common.HexToAddress("0x0000000000000000000000000000000000000bad")

	err := f.send(f.creator, core.TxCreateGame, f.dep.Registry, nil, core.CreateGamePayload{
		Name:           "pong",
		Signer:         f.signer.Address(),
		MaxScore:       10,
		CredentialInit: f.credentialInit("pong", f.creator.Address(), stranger),
	})
	r.ErrorIs(err, ErrGameNotCredentialAdmin)

	game := PredictGameAddress(f.dep.Registry, f.dep.GameTemplate, "pong", f.creator.Address())
	_, err = f.state.GetGame(game)
	r.ErrorIs(err, core.ErrNotFound)
	rec, err := f.state.GetGameRecord(f.dep.Registry, game)
	r.NoError(err)
	r.False(rec.Created)
	r.Empty(f.eventsOf(events.EventGameCreated))
}

type skewedDeployer struct {
	Deployer
}

func (d skewedDeployer) Deploy(deployer common.Address, kind string, payload []byte, version uint64) (common.Address, error) {
	addr, err := d.Deployer.Deploy(deployer, kind, payload, version)
	addr[0] ^= 0xff
	return addr, err
}

func TestCreateGameAddressMismatch(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	ctx, env := f.bound()
	env.Deployer = skewedDeployer{env.Deployer}

	_, err := RegistryAt(ctx, env, f.dep.Registry).CreateGame(f.creator.Address(), GameParams{
		Name:           "pong",
		Signer:         f.signer.Address(),
		MaxScore:       10,
		CredentialInit: f.credentialInit("pong", f.creator.Address()),
	})
	r.ErrorIs(err, ErrAddressMismatch)
}

func TestPredictGameAddressView(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	ctx, env := f.bound()

	predicted, err := RegistryAt(ctx, env, f.dep.Registry).PredictGameAddress("pong", f.creator.Address())
	r.NoError(err)
	r.Equal(predicted, f.createGame("pong"))
}

func TestRegisterPlayer(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")

	r.NoError(f.register(game, f.player))
	ctx, env := f.bound()
	id, err := GameAt(ctx, env, game).PlayerCredential(f.player.Address())
	r.NoError(err)
	r.Equal(uint64(1), id)

	inst, _ := f.state.GetGame(game)
	store := credential.At(ctx, inst.Credential)
	owner, err := store.OwnerOf(id)
	r.NoError(err)
	r.Equal(f.player.Address(), owner)
	uri, err := store.TokenURI(id)
	r.NoError(err)
	r.Equal("https://artcade.example/pong/1", uri)

	r.ErrorIs(f.register(game, f.player), ErrAlreadyRegistered)

	r.NoError(f.register(game, f.creator))
	id, err = GameAt(ctx, env, game).PlayerCredential(f.creator.Address())
	r.NoError(err)
	r.Equal(uint64(2), id)
}

func TestRegisterPlayerURIIsNotNormalized(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGameWith("pong", "ipfs://bafy/", 100)
	r.NoError(f.register(game, f.player))

	ctx, _ := f.bound()
	uri, err := credential.At(ctx, f.mustGame(game).Credential).TokenURI(1)
	r.NoError(err)
	r.Equal("ipfs://bafy//1", uri)
}

func TestRegisterPlayerWhenPaused(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")

	r.ErrorIs(f.send(f.player, core.TxSetGamePaused, game, nil, core.SetPausedPayload{Paused: true}), ErrNotOwner)
	r.NoError(f.send(f.creator, core.TxSetGamePaused, game, nil, core.SetPausedPayload{Paused: true}))
	r.ErrorIs(f.register(game, f.player), ErrPaused)

	r.NoError(f.send(f.creator, core.TxSetGamePaused, game, nil, core.SetPausedPayload{Paused: false}))
	r.NoError(f.register(game, f.player))
}

func TestSubmitScoreSettles(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")
	r.NoError(f.register(game, f.player))

	before := f.balance(f.player.Address())
	r.NoError(f.submit(game, "pong", 50, 1, price))

	r.Equal(new(big.Int).Sub(before, price).String(), f.balance(f.player.Address()).String())
	r.Equal("100", f.balance(f.protocol).String())
	r.Equal("900", f.balance(f.operator).String())
	r.Equal("0", f.balance(game).String())
	r.Equal("50", f.tickets(f.player.Address()).String())

	ctx, env := f.bound()
	g := GameAt(ctx, env, game)
	hs, err := g.HighScore(f.player.Address())
	r.NoError(err)
	r.Equal(uint64(50), hs)
	used, err := g.NonceUsed(f.player.Address(), big.NewInt(1))
	r.NoError(err)
	r.True(used)

	r.Len(f.eventsOf(events.EventHighScoreUpdated), 1)
	r.Len(f.eventsOf(events.EventScoreSettled), 1)

	// A lower score still pays out but leaves the high score alone.
	r.NoError(f.submit(game, "pong", 20, 2, price))
	hs, err = g.HighScore(f.player.Address())
	r.NoError(err)
	r.Equal(uint64(50), hs)
	r.Equal("70", f.tickets(f.player.Address()).String())
	r.Len(f.eventsOf(events.EventHighScoreUpdated), 1)
}

func TestSubmitScoreReplay(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")
	r.NoError(f.register(game, f.player))

	r.NoError(f.submit(game, "pong", 10, 7, price))
	r.ErrorIs(f.submit(game, "pong", 10, 7, price), ErrNonceUsed)
	r.Equal("10", f.tickets(f.player.Address()).String())
	r.Len(f.eventsOf(events.EventScoreSettled), 1)
}

func TestSubmitScoreValidation(t *testing.T) {
	f := newFixture(t)
	game := f.createGame("pong")
	require.NoError(t, f.register(game, f.player))
	player := f.player.Address()

	t.Run("score above max", func(t *testing.T) {
		require.ErrorIs(t, f.submit(game, "pong", 101, 1, price), ErrInvalidScore)
	})
	t.Run("wrong payment", func(t *testing.T) {
		require.ErrorIs(t, f.submit(game, "pong", 10, 2, big.NewInt(999)), ErrInvalidPayment)
		require.ErrorIs(t, f.submit(game, "pong", 10, 3, nil), ErrInvalidPayment)
	})
	t.Run("foreign signer", func(t *testing.T) {
		d := crypto.Domain{Name: "pong", Version: DomainVersion, ChainID: testChainID, VerifyingContract: game}
		sig, err := crypto.Sign(f.player, d.ScoreDigest(player, 10, big.NewInt(4)))
		require.NoError(t, err)
		err = f.send(f.player, core.TxSubmitScore, game, price, core.SubmitScorePayload{
			Player: player, Score: 10, Nonce: (*hexutil.Big)(big.NewInt(4)), Signature: sig,
		})
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("signature for other score", func(t *testing.T) {
		err := f.send(f.player, core.TxSubmitScore, game, price, core.SubmitScorePayload{
			Player: player, Score: 99, Nonce: (*hexutil.Big)(big.NewInt(5)),
			Signature: f.signScore(game, "pong", player, 10, 5),
		})
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("signature for other game", func(t *testing.T) {
		other := common.HexToAddress("0x0000000000000000000000000000000000000123")
		err := f.send(f.player, core.TxSubmitScore, game, price, core.SubmitScorePayload{
			Player: player, Score: 10, Nonce: (*hexutil.Big)(big.NewInt(6)),
			Signature: f.signScore(other, "pong", player, 10, 6),
		})
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("failed submissions consume nothing", func(t *testing.T) {
		ctx, env := f.bound()
		for n := int64(1); n <= 6; n++ {
			used, err := GameAt(ctx, env, game).NonceUsed(player, big.NewInt(n))
			require.NoError(t, err)
			require.False(t, used)
		}
		require.Equal(t, "0", f.tickets(player).String())
		require.Equal(t, "0", f.balance(game).String())
	})
}

func TestSubmitScoreZeroMaxScore(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGameWith("void", "https://artcade.example/void", 0)
	r.NoError(f.register(game, f.player))

	before := f.balance(f.player.Address())
	r.ErrorIs(f.submit(game, "void", 0, 1, price), ErrInvalidScore)
	r.ErrorIs(f.submit(game, "void", 1, 2, price), ErrInvalidScore)

	r.Equal(before.String(), f.balance(f.player.Address()).String())
	r.Equal("0", f.balance(f.protocol).String())
	r.Equal("0", f.balance(f.operator).String())
	r.Equal("0", f.tickets(f.player.Address()).String())
	ctx, env := f.bound()
	used, err := GameAt(ctx, env, game).NonceUsed(f.player.Address(), big.NewInt(1))
	r.NoError(err)
	r.False(used)
	r.Empty(f.eventsOf(events.EventScoreSettled))
}

func TestSubmitScoreNonceRange(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")
	r.NoError(f.register(game, f.player))
	r.NoError(f.submit(game, "pong", 10, 1, price))

	// -1 shares the unsigned encoding of 1. Nonces wider than a word are
	// refused as well.
	sig := f.signScore(game, "pong", f.player.Address(), 10, 1)
	ctx, env := f.bound()
	g := GameAt(ctx, env, game)
	overflow := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	for _, nonce := range []*big.Int{big.NewInt(-1), overflow} {
		err := g.SubmitScore(Submission{Player: f.player.Address(), Score: 10, Nonce: nonce, Signature: sig}, price)
		r.ErrorIs(err, ErrInvalidNonce)
		used, err := g.NonceUsed(f.player.Address(), nonce)
		r.NoError(err)
		r.False(used)
	}
	r.Equal("10", f.tickets(f.player.Address()).String())
	r.Len(f.eventsOf(events.EventScoreSettled), 1)
}

func TestSubmitScoreCheckOrder(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")

	// Unregistered player with an oversized score: score check comes first.
	r.ErrorIs(f.submit(game, "pong", 500, 1, price), ErrInvalidScore)
	r.ErrorIs(f.submit(game, "pong", 50, 1, price), ErrPlayerNotRegistered)

	r.NoError(f.register(game, f.player))
	r.NoError(f.submit(game, "pong", 50, 1, price))

	// Paused wins over a used nonce.
	r.NoError(f.send(f.creator, core.TxSetGamePaused, game, nil, core.SetPausedPayload{Paused: true}))
	r.ErrorIs(f.submit(game, "pong", 50, 1, price), ErrPaused)
	r.NoError(f.send(f.creator, core.TxSetGamePaused, game, nil, core.SetPausedPayload{Paused: false}))

	// Used nonce wins over an invalid score.
	r.ErrorIs(f.submit(game, "pong", 500, 1, price), ErrNonceUsed)
}

func TestSubmitScoreRequiresCredentialOwnership(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")
	r.NoError(f.register(game, f.player))

	inst, err := f.state.GetGame(game)
	r.NoError(err)
	r.NoError(f.send(f.player, core.TxTransferCredential, inst.Credential, nil, core.TransferCredentialPayload{
		ID: 1, To: f.creator.Address(),
	}))
	r.ErrorIs(f.submit(game, "pong", 10, 1, price), ErrPlayerDoesNotOwnCredential)
}

func TestSubmitScoreWrappedFallback(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")
	r.NoError(f.register(game, f.player))

	// The registry refuses native value, so the operator share is wrapped.
	settings := f.mustGame(game).Settings
	settings.FeeRecipient = f.dep.Registry
	r.NoError(f.send(f.creator, core.TxUpdateGameSettings, game, nil, core.UpdateGameSettingsPayload{Settings: settings}))

	r.NoError(f.submit(game, "pong", 10, 1, price))
	wrapped, err := f.state.GetTokenBalance(f.dep.NativeWrapper, economy.WrappedUnitID, f.dep.Registry)
	r.NoError(err)
	r.Equal("900", wrapped.String())
	r.Equal("900", f.balance(f.dep.NativeWrapper).String())
	r.Equal("0", f.balance(f.dep.Registry).String())
	r.Len(f.eventsOf(events.EventWrappedFallback), 1)
}

func (f *fixture) mustGame(addr common.Address) *core.GameInstance {
	f.t.Helper()
	inst, err := f.state.GetGame(addr)
	require.NoError(f.t, err)
	return inst
}

const attackerKind core.AccountKind = "attacker"

func TestSubmitScoreReentrancy(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")
	r.NoError(f.register(game, f.player))

	attacker := common.HexToAddress("0x00000000000000000000000000000000000a77ac")
	r.NoError(f.state.SetAccount(&core.Account{Address: attacker, Balance: new(big.Int), Kind: attackerKind}))
	settings := f.mustGame(game).Settings
	settings.FeeRecipient = attacker
	r.NoError(f.send(f.creator, core.TxUpdateGameSettings, game, nil, core.UpdateGameSettingsPayload{Settings: settings}))

	var reentry []error
	economy.RegisterReceiver(attackerKind, func(ctx *vm.Context, from, to common.Address, amount *big.Int) error {
		env := NewEnv(ctx)
		g := GameAt(ctx, env, game)
		reentry = append(reentry, g.SubmitScore(Submission{
			Player:    f.player.Address(),
			Score:     10,
			Nonce:     big.NewInt(2),
			Signature: f.signScore(game, "pong", f.player.Address(), 10, 2),
		}, price))
		_, err := g.RegisterPlayer(attacker)
		reentry = append(reentry, err)
		return nil
	})
	defer economy.RegisterReceiver(attackerKind, func(*vm.Context, common.Address, common.Address, *big.Int) error { return nil })

	r.NoError(f.submit(game, "pong", 10, 1, price))
	r.Len(reentry, 2)
	for _, err := range reentry {
		r.ErrorIs(err, vm.ErrReentrantCall)
	}
	r.Equal("900", f.balance(attacker).String())
	r.Equal("10", f.tickets(f.player.Address()).String())
}

func TestDispenseTicketsGate(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	f.createGame("pong")

	err := f.send(f.player, core.TxDispenseTickets, f.dep.Registry, nil, core.DispenseTicketsPayload{
		Player: f.player.Address(), Amount: 1000,
	})
	r.ErrorIs(err, ErrNotAllowed)
	r.Equal("0", f.tickets(f.player.Address()).String())

	// The reward store only accepts mints from the registry.
	ctx, _ := f.bound()
	err = token.At(ctx, f.dep.TicketToken).Mint(f.player.Address(), big.NewInt(1),
		[]common.Address{f.player.Address()}, []*big.Int{big.NewInt(5)})
	r.ErrorIs(err, token.ErrNotMinter)
}

func TestTicketAdjustment(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")
	r.NoError(f.register(game, f.player))

	adjust := func(from crypto.PrivateKey, n uint64) error {
		return f.send(from, core.TxSetTicketAdjustment, f.dep.Registry, nil, core.SetTicketAdjustmentPayload{Game: game, Adjustment: n})
	}
	r.ErrorIs(adjust(f.creator, 30), ErrNotOwner)
	r.NoError(adjust(f.owner, 30))

	r.NoError(f.submit(game, "pong", 50, 1, price))
	r.Equal("20", f.tickets(f.player.Address()).String())

	r.NoError(adjust(f.owner, 80))
	r.NoError(f.submit(game, "pong", 50, 2, price))
	r.Equal("20", f.tickets(f.player.Address()).String())

	dispensed := f.eventsOf(events.EventTicketsDispensed)
	r.Len(dispensed, 2)
	r.Equal(uint64(0), dispensed[1].Data["amount"])
	r.Len(f.eventsOf(events.EventTokenMinted), 1)

	// Any address may be targeted, created or not.
	r.NoError(f.send(f.owner, core.TxSetTicketAdjustment, f.dep.Registry, nil, core.SetTicketAdjustmentPayload{
		Game: common.HexToAddress("0x0000000000000000000000000000000000000777"), Adjustment: 5,
	}))
}

func TestRegistrySettingsSnapshot(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")
	r.NoError(f.register(game, f.player))

	reg, err := f.state.GetRegistry(f.dep.Registry)
	r.NoError(err)
	next := reg.Settings.Copy()
	next.PricePerGame = big.NewInt(2000)
	next.ProtocolFeeBps = 0

	r.ErrorIs(f.send(f.creator, core.TxUpdateRegistrySettings, f.dep.Registry, nil, core.UpdateRegistrySettingsPayload{Settings: next}), ErrNotOwner)
	r.NoError(f.send(f.owner, core.TxUpdateRegistrySettings, f.dep.Registry, nil, core.UpdateRegistrySettingsPayload{Settings: next}))

	r.ErrorIs(f.submit(game, "pong", 10, 1, price), ErrInvalidPayment)
	r.NoError(f.submit(game, "pong", 10, 1, big.NewInt(2000)))
	r.Equal("0", f.balance(f.protocol).String())
	r.Equal("2000", f.balance(f.operator).String())

	bad := next.Copy()
	bad.ProtocolFeeBps = BasisPoints + 1
	r.ErrorIs(f.send(f.owner, core.TxUpdateRegistrySettings, f.dep.Registry, nil, core.UpdateRegistrySettingsPayload{Settings: bad}), ErrInvalidSettings)
}

func TestRegistryPaused(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")
	r.NoError(f.register(game, f.player))

	r.NoError(f.send(f.owner, core.TxSetRegistryPaused, f.dep.Registry, nil, core.SetPausedPayload{Paused: true}))
	err := f.send(f.creator, core.TxCreateGame, f.dep.Registry, nil, core.CreateGamePayload{
		Name: "tetris", MaxScore: 1, CredentialInit: f.credentialInit("tetris", f.creator.Address()),
	})
	r.ErrorIs(err, ErrPaused)
	r.ErrorIs(f.submit(game, "pong", 10, 1, price), ErrPaused)
}

func TestGameSettingsAndOwnership(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")

	settings := f.mustGame(game).Settings
	settings.MaxScore = 1000
	r.ErrorIs(f.send(f.player, core.TxUpdateGameSettings, game, nil, core.UpdateGameSettingsPayload{Settings: settings}), ErrNotOwner)
	r.NoError(f.send(f.creator, core.TxUpdateGameSettings, game, nil, core.UpdateGameSettingsPayload{Settings: settings}))
	r.Equal(uint64(1000), f.mustGame(game).Settings.MaxScore)

	changed := f.eventsOf(events.EventSettingsChanged)
	r.Len(changed, 1)
	r.Equal(uint64(100), changed[0].Data["old"].(core.GameSettings).MaxScore)

	r.NoError(f.send(f.creator, core.TxTransferOwnership, game, nil, core.TransferOwnershipPayload{NewOwner: f.player.Address()}))
	r.Equal(f.player.Address(), f.mustGame(game).Owner)
	r.ErrorIs(f.send(f.creator, core.TxSetGamePaused, game, nil, core.SetPausedPayload{Paused: true}), ErrNotOwner)

	r.NoError(f.send(f.owner, core.TxTransferOwnership, f.dep.Registry, nil, core.TransferOwnershipPayload{NewOwner: f.creator.Address()}))
	reg, err := f.state.GetRegistry(f.dep.Registry)
	r.NoError(err)
	r.Equal(f.creator.Address(), reg.Owner)
}

func TestGameInitializeOnce(t *testing.T) {
	r := require.New(t)
	f := newFixture(t)
	game := f.createGame("pong")
	ctx, env := f.bound()

	err := GameAt(ctx, env, game).Initialize(f.dep.Registry, f.player.Address(), common.Address{}, f.dep.GameTemplate, core.GameSettings{})
	r.ErrorIs(err, ErrAlreadyInitialized)
	err = GameAt(ctx, env, f.dep.GameTemplate).Initialize(f.dep.Registry, f.player.Address(), common.Address{}, common.Address{}, core.GameSettings{})
	r.ErrorIs(err, ErrAlreadyInitialized)
}

func TestNonPayableRejectsValue(t *testing.T) {
	f := newFixture(t)
	game := f.createGame("pong")
	err := f.send(f.player, core.TxRegisterPlayer, game, big.NewInt(1), core.RegisterPlayerPayload{})
	require.ErrorIs(t, err, vm.ErrNotPayable)
}
