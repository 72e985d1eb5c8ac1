package shipping

import (
	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
)

// Quote is the priced delivery option offered for a session.
type Quote struct {
	Method    enums.ShippingMethod `json:"method"`
	CostCents int                  `json:"cost_cents"`
}

// Service prices delivery options. Rates are flat per method today; the
// config layer owns the numbers.
type Service struct {
	standardCents int
	expressCents  int
}

func NewService(cfg config.CheckoutConfig) *Service {
	return &Service{
		standardCents: cfg.StandardShipCents,
		expressCents:  cfg.ExpressShipCents,
	}
}

// QuoteFor prices a single shipping method.
func (s *Service) QuoteFor(method enums.ShippingMethod) (Quote, error) {
	switch method {
	case enums.ShippingMethodStandard:
		return Quote{Method: method, CostCents: s.standardCents}, nil
	case enums.ShippingMethodExpress:
		return Quote{Method: method, CostCents: s.expressCents}, nil
	default:
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping method").
			WithDetails(map[string]any{"method": string(method)})
	}
}

// Quotes lists every available option, cheapest first.
func (s *Service) Quotes() []Quote {
	return []Quote{
		{Method: enums.ShippingMethodStandard, CostCents: s.standardCents},
		{Method: enums.ShippingMethodExpress, CostCents: s.expressCents},
	}
}
