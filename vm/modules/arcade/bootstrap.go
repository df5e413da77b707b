package arcade

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tolelom/artcade/core"
	"github.com/tolelom/artcade/crypto"
	"github.com/tolelom/artcade/vm/modules/credential"
	"github.com/tolelom/artcade/vm/modules/token"
)

// Deployment lists the addresses created by Bootstrap.
type Deployment struct {
	Registry      common.Address `json:"registry"`
	GameTemplate  common.Address `json:"game_template"`
	TicketToken   common.Address `json:"ticket_token"`
	NativeWrapper common.Address `json:"native_wrapper"`
}

// Bootstrap deploys a registry owned by owner together with its game
// template, its ticket token and the native wrapper. Zero address fields of
// settings are filled with the deployed addresses.
func Bootstrap(state core.State, owner common.Address, settings core.RegistrySettings) (Deployment, error) {
	d := Deployment{
		Registry:      crypto.ContractAddress(owner, 0),
		GameTemplate:  crypto.ContractAddress(owner, 1),
		TicketToken:   crypto.ContractAddress(owner, 2),
		NativeWrapper: crypto.ContractAddress(owner, 3),
	}
	if _, err := state.GetRegistry(d.Registry); err == nil {
		return Deployment{}, fmt.Errorf("registry %s already deployed", d.Registry.Hex())
	} else if !errors.Is(err, core.ErrNotFound) {
		return Deployment{}, err
	}

	settings = settings.Copy()
	if settings.GameTemplate == (common.Address{}) {
		settings.GameTemplate = d.GameTemplate
	} else {
		d.GameTemplate = settings.GameTemplate
	}
	if settings.TicketToken == (common.Address{}) {
		settings.TicketToken = d.TicketToken
	} else {
		d.TicketToken = settings.TicketToken
	}
	if settings.NativeWrapper == (common.Address{}) {
		settings.NativeWrapper = d.NativeWrapper
	} else {
		d.NativeWrapper = settings.NativeWrapper
	}
	if settings.ProtocolRecipient == (common.Address{}) {
		settings.ProtocolRecipient = owner
	}
	if settings.PricePerGame == nil {
		settings.PricePerGame = new(big.Int)
	}
	if settings.TicketID == nil {
		settings.TicketID = big.NewInt(1)
	}
	if settings.Credential.Kind == "" {
		settings.Credential = core.CredentialDeployment{Kind: credential.Kind, Version: credential.Version}
	}
	if err := ValidateSettings(settings); err != nil {
		return Deployment{}, err
	}

	if err := setKind(state, d.Registry, core.KindRegistry); err != nil {
		return Deployment{}, err
	}
	if err := state.SetRegistry(&core.Registry{Address: d.Registry, Owner: owner, Settings: settings}); err != nil {
		return Deployment{}, err
	}

	if _, err := state.GetGame(d.GameTemplate); errors.Is(err, core.ErrNotFound) {
		if err := setKind(state, d.GameTemplate, core.KindGame); err != nil {
			return Deployment{}, err
		}
		// The template itself is never played; it is initialised so it can
		// not be claimed.
		err := state.SetGame(&core.GameInstance{
			Address:     d.GameTemplate,
			Initialized: true,
			Owner:       owner,
			Registry:    d.Registry,
			Paused:      true,
		})
		if err != nil {
			return Deployment{}, err
		}
	} else if err != nil {
		return Deployment{}, err
	}

	if _, err := state.GetTokenContract(d.TicketToken); errors.Is(err, core.ErrNotFound) {
		if err := token.Deploy(state, d.TicketToken, "Artcade Tickets", d.Registry, false); err != nil {
			return Deployment{}, err
		}
	} else if err != nil {
		return Deployment{}, err
	}
	if _, err := state.GetTokenContract(d.NativeWrapper); errors.Is(err, core.ErrNotFound) {
		if err := token.Deploy(state, d.NativeWrapper, "Wrapped Native", common.Address{}, true); err != nil {
			return Deployment{}, err
		}
	} else if err != nil {
		return Deployment{}, err
	}
	return d, nil
}

func setKind(state core.State, addr common.Address, kind core.AccountKind) error {
	acc, err := state.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Kind = kind
	return state.SetAccount(acc)
}
