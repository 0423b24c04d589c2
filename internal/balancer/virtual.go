package balancer

import (
	"context"
	"fmt"
	"log"

	"spot-botv1/internal/model"
)

// InitVirtualBalance computes the virtual balance offset that simulates
// leveraged exposure without exchange-side margin. It is computed once at
// startup from the configured power multiplier and passed read-only into
// every decision cycle; a restart recomputes it.
//
// A power of 1 means no leverage and a zero offset, with no exchange calls.
func InitVirtualBalance(ctx context.Context, exch model.ExchangeClient, pair string, power, targetFrac float64) (model.Balance, error) {
	if power == 1 {
		return model.Balance{}, nil
	}

	actual, err := exch.GetBalance(ctx)
	if err != nil {
		return model.Balance{}, fmt.Errorf("virtual balance: get balance: %w", err)
	}
	price, err := exch.GetPrice(ctx, pair)
	if err != nil {
		return model.Balance{}, fmt.Errorf("virtual balance: get price: %w", err)
	}

	actualTotal := actual.Base*price + actual.Quote
	leveragedTotal := actualTotal * power

	offset := model.Balance{
		Base:  leveragedTotal*targetFrac/price - actual.Base,
		Quote: leveragedTotal*targetFrac - actual.Quote,
	}

	log.Printf("[balancer] virtual balance initialised: %.5f | %.0f", offset.Base, offset.Quote)
	return offset, nil
}
