package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/voltmart/storefront/internal/platform/firestore"
	"github.com/voltmart/storefront/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider  *pfirestore.Provider
	orders    *OrderRepository
	products  *ProductRepository
	users     *UserRepository
	ledger    *CoinLedgerRepository
	referrals *ReferralRepository
	returns   *ReturnRepository
	alerts    *InventoryAlertRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on the shared provider. Extra dependency checks (pub/sub,
// redis) are reported next to the Firestore check.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider}

	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.users, err = NewUserRepository(provider); err != nil {
		return nil, err
	}
	if reg.ledger, err = NewCoinLedgerRepository(provider); err != nil {
		return nil, err
	}
	if reg.referrals, err = NewReferralRepository(provider); err != nil {
		return nil, err
	}
	if reg.returns, err = NewReturnRepository(provider); err != nil {
		return nil, err
	}
	if reg.alerts, err = NewInventoryAlertRepository(provider); err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{Name: "firestore", Check: provider.Ping}}, extraChecks...)
	if reg.health, err = repositories.NewDependencyHealthRepository(checks); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}

func (r *Registry) Orders() repositories.OrderRepository                   { return r.orders }
func (r *Registry) Products() repositories.ProductRepository               { return r.products }
func (r *Registry) Users() repositories.UserRepository                     { return r.users }
func (r *Registry) Ledger() repositories.CoinLedgerRepository              { return r.ledger }
func (r *Registry) Referrals() repositories.ReferralRepository             { return r.referrals }
func (r *Registry) Returns() repositories.ReturnRepository                 { return r.returns }
func (r *Registry) InventoryAlerts() repositories.InventoryAlertRepository { return r.alerts }
func (r *Registry) Health() repositories.HealthRepository                  { return r.health }
