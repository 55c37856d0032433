// Package script generates the message texts of a negotiation thread.
//
// Initiator messages depend only on the round index. Counterparty replies are
// picked uniformly from a small set of pre-written variants per round using
// the caller's random source, so a seeded source yields a deterministic
// transcript.
package script

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"text/template"

	"github.com/user/cascada/internal/scenario"
)

// Context carries everything the templates need about one thread.
type Context struct {
	Initiator    string
	Counterparty string
	Product      string
	Buyers       int
	Outcome      scenario.Outcome
	Discount     float64
	FailureText  string
}

// NewContext builds a Context for a thread of the given scenario.
func NewContext(s *scenario.Scenario, d scenario.Definition) Context {
	return Context{
		Initiator:    s.Initiator,
		Counterparty: d.CounterpartyName,
		Product:      d.SubjectProduct,
		Buyers:       s.Buyers,
		Outcome:      d.Outcome,
		Discount:     d.FinalDiscount,
		FailureText:  d.FixedFailureMessage,
	}
}

// GenericRefusal is the counterparty reply for failing threads without a
// fixed failure message.
const GenericRefusal = "We cannot proceed at this time."

// templateData is what the reply templates render against.
type templateData struct {
	Context
	Discount string
	Offer    string
}

var (
	openingTmpl = mustParse("opening", `Dear {{.Counterparty}} Team,

I am reaching out on behalf of {{.Initiator}}, a verified collective purchasing organization. We currently represent {{.Buyers}} qualified buyers interested in {{.Product}}.

We propose a 10% discount off MSRP with guaranteed payment within 48 hours.

Would you be open to this arrangement?

Best regards,
{{.Initiator}} Procurement Team`)

	counterTmpl = mustParse("counter", `Dear {{.Counterparty}},

Thank you for your response. We understand your margin constraints.

However, with {{.Buyers}} guaranteed units and immediate payment, we believe 8% would be mutually beneficial. This reduces your inventory risk significantly.

Can we meet in the middle?

Best regards,
{{.Initiator}} Procurement Team`)

	acceptTmpl = mustParse("accept", `Dear {{.Counterparty}},

We appreciate your flexibility. After consulting with our buyers, we can accept your offer.

Please proceed with the purchase agreement. Our payment will be processed within 48 hours of confirmation.

Best regards,
{{.Initiator}} Procurement Team`)

	agreementTmpl = mustParse("agreement", `Dear {{.Initiator}},

Excellent. We have an agreement.

{{.Discount}}% discount confirmed for {{.Buyers}} units of {{.Product}}. Our team will prepare the purchase agreement immediately.

We look forward to a successful partnership.

Best regards,
{{.Counterparty}} Procurement`)
)

// replyVariants holds the counterparty variants per 1-based round. Rounds past
// the last entry reuse it.
var replyVariants = map[int][]*template.Template{
	1: {
		mustParse("r1a", `Dear {{.Initiator}},

Thank you for reaching out. Your proposal is interesting, but 10% is quite aggressive for our margins.

We could consider 3% for this volume. Would that work for your group?

Best regards,
{{.Counterparty}} Procurement`),
		mustParse("r1b", `Dear {{.Initiator}} Team,

We've reviewed your bulk purchase inquiry. While we appreciate the volume commitment, our standard bulk discount is 4%.

Please let us know if this is acceptable.

Regards,
{{.Counterparty}} Sales`),
	},
	2: {
		mustParse("r2a", `Dear {{.Initiator}},

I understand your position. Given the guaranteed payment terms you mentioned, I can push this to {{.Offer}}%.

This is the best I can do without escalating to management.

Best,
{{.Counterparty}} Team`),
		mustParse("r2b", `Dear {{.Initiator}},

After internal discussion, we can improve our offer to {{.Offer}}%.

The quick payment guarantee does add value from our perspective.

Regards,
{{.Counterparty}}`),
	},
	3: {
		mustParse("r3a", `Dear {{.Initiator}},

Your persistence is noted. I've spoken with our director.

We can confirm {{.Discount}}% off MSRP for this order. This is our final offer.

Please confirm to proceed with the purchase agreement.

Best regards,
{{.Counterparty}} Management`),
		mustParse("r3b", `Dear {{.Initiator}} Team,

Given the volume and payment terms, we're prepared to offer {{.Discount}}% discount.

I'll have our team prepare the documentation upon your confirmation.

Regards,
{{.Counterparty}} Procurement`),
	},
}

const lastVariantRound = 3

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

func render(t *template.Template, data templateData) string {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		// Templates are static and data is a plain struct.
		panic(err)
	}
	return b.String()
}

// FormatPercent renders a discount without trailing zeros ("10", "7.5").
func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (c Context) data(offer float64) templateData {
	return templateData{
		Context:  c,
		Discount: FormatPercent(c.Discount),
		Offer:    FormatPercent(offer),
	}
}

// InitiatorMessage returns the initiator's text for the 0-based round.
func InitiatorMessage(round int, c Context) string {
	switch {
	case round <= 0:
		return render(openingTmpl, c.data(0))
	case round == 1:
		return render(counterTmpl, c.data(0))
	default:
		return render(acceptTmpl, c.data(0))
	}
}

// CounterpartyReply returns one of the pre-written variants for the 1-based
// negotiation round.
func CounterpartyReply(rng *rand.Rand, round int, c Context) string {
	if round < 1 {
		round = 1
	}
	if round > lastVariantRound {
		round = lastVariantRound
	}
	options := replyVariants[round]
	t := options[rng.Intn(len(options))]

	offer := c.Discount
	if t.Name() == "r2a" {
		offer = math.Max(c.Discount-2, 3)
	} else if t.Name() == "r2b" {
		offer = math.Max(c.Discount-1, 4)
	}
	return render(t, c.data(offer))
}

// Agreement is the final reply of a successful thread. It always states the
// agreed discount.
func Agreement(c Context) string {
	return render(agreementTmpl, c.data(c.Discount))
}

// Refusal is the only reply of a failing thread.
func Refusal(c Context) string {
	if c.FailureText != "" {
		return c.FailureText
	}
	return GenericRefusal
}

// Reply picks the counterparty text for the 0-based round of a thread that
// runs for total rounds.
func Reply(rng *rand.Rand, round, total int, c Context) string {
	if c.Outcome != scenario.OutcomeWillSucceed {
		return Refusal(c)
	}
	if round >= total-1 {
		return Agreement(c)
	}
	return CounterpartyReply(rng, round+1, c)
}

// Rounds resolves how many rounds a thread runs: one for failures, a uniform
// pick in [2,4] for successes.
func Rounds(rng *rand.Rand, outcome scenario.Outcome) int {
	if outcome != scenario.OutcomeWillSucceed {
		return 1
	}
	return 2 + rng.Intn(3)
}
