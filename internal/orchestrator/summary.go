package orchestrator

import (
	"fmt"
	"math"
	"strings"

	"github.com/user/cascada/internal/scenario"
	"github.com/user/cascada/internal/script"
	"github.com/user/cascada/internal/types"
)

// Summary is the best-deal overlay of a run that reached SummaryVisible.
type Summary struct {
	RunID            types.RunID  `json:"run_id"`
	Product          string       `json:"product"`
	BestDiscount     float64      `json:"best_discount"`
	BestCounterparty string       `json:"best_counterparty"`
	Deals            []types.Deal `json:"deals"`
	Units            int          `json:"units"`
	UnitPrice        float64      `json:"unit_price"`
	SavedPerUnit     float64      `json:"saved_per_unit"`
	FinalUnitPrice   float64      `json:"final_unit_price"`
	TotalSaved       float64      `json:"total_saved"`
}

func newSummary(id types.RunID, scn *scenario.Scenario, deals []types.Deal) Summary {
	sum := Summary{
		RunID:     id,
		Product:   scn.Product,
		Deals:     append([]types.Deal{}, deals...),
		Units:     scn.Units,
		UnitPrice: scn.UnitPrice,
	}
	for _, d := range deals {
		if sum.BestCounterparty == "" || d.Discount > sum.BestDiscount {
			sum.BestDiscount = d.Discount
			sum.BestCounterparty = d.Counterparty
		}
	}
	sum.SavedPerUnit = math.Round(sum.UnitPrice * sum.BestDiscount / 100)
	sum.FinalUnitPrice = sum.UnitPrice - sum.SavedPerUnit
	sum.TotalSaved = sum.SavedPerUnit * float64(sum.Units)
	return sum
}

// Text renders the summary for chat delivery and plain terminal output.
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deal secured: %s%% off", script.FormatPercent(s.BestDiscount))
	if s.Product != "" {
		fmt.Fprintf(&b, " %s", s.Product)
	}
	fmt.Fprintf(&b, " with %s\n", s.BestCounterparty)
	fmt.Fprintf(&b, "Price per unit: %s -> %s (save %s)\n",
		money(s.UnitPrice), money(s.FinalUnitPrice), money(s.SavedPerUnit))
	fmt.Fprintf(&b, "Total saved for %d units: %s\n", s.Units, money(s.TotalSaved))
	if len(s.Deals) > 1 {
		b.WriteString("Offers:\n")
		for _, d := range s.Deals {
			fmt.Fprintf(&b, "  %s: %s%%\n", d.Counterparty, script.FormatPercent(d.Discount))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func money(v float64) string {
	return "$" + script.FormatPercent(v)
}
