package decisions

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// RiskLimits caps what a single decision may do
type RiskLimits struct {
	MaxOrdersPerCycle int     // orders beyond this are dropped
	MaxTradeNotional  float64 // max value of one order
	CashReservePct    float64 // fraction of equity kept in cash after buys
	MaxPositionPct    float64 // max single-position share of equity
}

// RiskValidator filters a decision's orders against the configured limits,
// simulating the portfolio across the order list so later orders see the
// effect of earlier ones. Rejected orders carry reasons; validation never
// fails the decision itself.
type RiskValidator struct {
	limits RiskLimits
	log    zerolog.Logger
}

// NewRiskValidator creates a new risk validator
func NewRiskValidator(limits RiskLimits, log zerolog.Logger) *RiskValidator {
	return &RiskValidator{
		limits: limits,
		log:    log.With().Str("component", "risk_validator").Logger(),
	}
}

// Validate returns the accepted orders and the rejected ones with reasons
func (v *RiskValidator) Validate(decision domain.AgentDecision, state domain.PortfolioState) ([]domain.TradeOrder, []domain.RejectedOrder) {
	var accepted []domain.TradeOrder
	var rejected []domain.RejectedOrder

	// Simulated balances across the order list
	cash := state.Cash
	equity := state.TotalValue
	positionValue := make(map[string]float64, len(state.Positions))
	currentPrice := make(map[string]float64, len(state.Positions))
	heldQty := make(map[string]float64, len(state.Positions))
	for _, p := range state.Positions {
		positionValue[p.Symbol] = p.MarketValue
		currentPrice[p.Symbol] = p.CurrentPrice
		heldQty[p.Symbol] = p.Quantity
	}

	for i, order := range decision.Orders {
		if order.Side == domain.OrderSideHold {
			accepted = append(accepted, order)
			continue
		}

		if v.limits.MaxOrdersPerCycle > 0 && len(accepted) >= v.limits.MaxOrdersPerCycle {
			rejected = append(rejected, domain.RejectedOrder{
				Order:  order,
				Reason: fmt.Sprintf("order %d exceeds the %d orders per cycle limit", i+1, v.limits.MaxOrdersPerCycle),
			})
			continue
		}

		if order.Quantity <= 0 {
			rejected = append(rejected, domain.RejectedOrder{
				Order:  order,
				Reason: "quantity must be positive",
			})
			continue
		}

		price := 0.0
		if order.LimitPrice != nil && *order.LimitPrice > 0 {
			price = *order.LimitPrice
		} else if p, ok := currentPrice[order.AssetSymbol]; ok {
			price = p
		}
		if price <= 0 {
			// No price to size against, let the ledger resolve or reject it
			accepted = append(accepted, order)
			continue
		}

		notional := order.Quantity * price

		if v.limits.MaxTradeNotional > 0 && notional > v.limits.MaxTradeNotional {
			rejected = append(rejected, domain.RejectedOrder{
				Order:  order,
				Reason: fmt.Sprintf("notional %.2f exceeds the %.2f per-trade limit", notional, v.limits.MaxTradeNotional),
			})
			continue
		}

		switch order.Side {
		case domain.OrderSideBuy:
			reserve := equity * v.limits.CashReservePct
			if cash-notional < reserve {
				rejected = append(rejected, domain.RejectedOrder{
					Order:  order,
					Reason: fmt.Sprintf("buy of %.2f would breach the %.2f cash reserve", notional, reserve),
				})
				continue
			}

			if v.limits.MaxPositionPct > 0 && equity > 0 {
				newShare := (positionValue[order.AssetSymbol] + notional) / equity
				if newShare > v.limits.MaxPositionPct {
					rejected = append(rejected, domain.RejectedOrder{
						Order:  order,
						Reason: fmt.Sprintf("position would reach %.1f%% of equity, limit is %.1f%%", newShare*100, v.limits.MaxPositionPct*100),
					})
					continue
				}
			}

			cash -= notional
			positionValue[order.AssetSymbol] += notional
			heldQty[order.AssetSymbol] += order.Quantity

		case domain.OrderSideSell:
			if heldQty[order.AssetSymbol] < order.Quantity {
				rejected = append(rejected, domain.RejectedOrder{
					Order:  order,
					Reason: fmt.Sprintf("sell of %f exceeds simulated holdings %f", order.Quantity, heldQty[order.AssetSymbol]),
				})
				continue
			}

			cash += notional
			positionValue[order.AssetSymbol] -= notional
			heldQty[order.AssetSymbol] -= order.Quantity

		default:
			rejected = append(rejected, domain.RejectedOrder{
				Order:  order,
				Reason: fmt.Sprintf("unrecognized side %q", order.Side),
			})
			continue
		}

		accepted = append(accepted, order)
	}

	if len(rejected) > 0 {
		v.log.Info().
			Int("accepted", len(accepted)).
			Int("rejected", len(rejected)).
			Msg("Risk validation filtered orders")
	}

	return accepted, rejected
}
