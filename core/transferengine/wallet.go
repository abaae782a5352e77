package transferengine

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/zephyrpay/relayer/core/chainio/aa"
	"github.com/zephyrpay/relayer/model"
)

// GetWallet loads the persisted wallet for a user's owner address.
func (e *Engine) GetWallet(user *model.User) (*model.SmartWallet, error) {
	body, err := e.db.GetKey(WalletStorageKey(user.Address))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	wallet := &model.SmartWallet{}
	if err := wallet.FromStorageData(body); err != nil {
		return nil, fmt.Errorf("wallet storage data is corrupted: %w", err)
	}

	return wallet, nil
}

// GetOrCreateWallet returns the user's wallet, deriving and persisting the
// counterfactual address on first use. The persisted salt is authoritative
// afterwards; derivation never runs twice for the same owner.
func (e *Engine) GetOrCreateWallet(ctx context.Context, user *model.User) (*model.SmartWallet, error) {
	wallet, err := e.GetWallet(user)
	if err == nil {
		return wallet, nil
	}
	if err != ErrWalletNotFound {
		return nil, err
	}

	address, salt, err := aa.ResolveAddress(ctx, e.chain, e.factory, user.ID, user.Address)
	if err != nil {
		return nil, err
	}

	if salt.Cmp(aa.InitialSalt(user.ID)) != 0 {
		e.metrics.IncAddressDerivationRetry()
	}

	owner := user.Address
	wallet = &model.SmartWallet{
		Owner:    &owner,
		Address:  &address,
		Salt:     salt,
		Deployed: false,
	}

	body, err := wallet.ToJSON()
	if err != nil {
		return nil, err
	}
	if err := e.db.Set(WalletStorageKey(user.Address), body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	e.logger.Info("derived smart wallet",
		"owner", user.Address.Hex(),
		"wallet", address.Hex(),
	)

	return wallet, nil
}

// markWalletDeployed flips the deployment flag exactly once, after the first
// operation that carried initCode made it on chain.
func (e *Engine) markWalletDeployed(wallet *model.SmartWallet) error {
	if wallet.Deployed {
		return nil
	}
	wallet.Deployed = true

	body, err := wallet.ToJSON()
	if err != nil {
		return err
	}
	if err := e.db.Set(WalletStorageKey(*wallet.Owner), body); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	e.metrics.IncWalletDeployed()
	return nil
}
