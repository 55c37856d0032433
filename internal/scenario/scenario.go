// Package scenario defines the negotiation threads a playback run is built from.
package scenario

import (
	"errors"
	"fmt"
	"math"

	"github.com/user/cascada/internal/types"
)

// ErrInvalidDefinition is wrapped by every validation failure.
var ErrInvalidDefinition = errors.New("invalid thread definition")

// Outcome is decided when a thread is defined, before any message is generated.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeWillSucceed Outcome = "will_succeed"
	OutcomeWillFail    Outcome = "will_fail"
)

// Definition describes one simulated counterparty.
type Definition struct {
	ID                  types.ThreadID `yaml:"id" json:"id"`
	CounterpartyName    string         `yaml:"counterparty_name" json:"counterparty_name"`
	CounterpartyContact string         `yaml:"counterparty_contact" json:"counterparty_contact"`
	SubjectProduct      string         `yaml:"subject_product" json:"subject_product"`
	Outcome             Outcome        `yaml:"outcome" json:"outcome"`
	FinalDiscount       float64        `yaml:"final_discount,omitempty" json:"final_discount,omitempty"`
	FixedFailureMessage string         `yaml:"fixed_failure_message,omitempty" json:"fixed_failure_message,omitempty"`
}

// Scenario is an ordered set of thread definitions plus the order economics
// shown once a deal is confirmed.
type Scenario struct {
	Name      string       `yaml:"name" json:"name"`
	Initiator string       `yaml:"initiator" json:"initiator"`
	Product   string       `yaml:"product" json:"product"`
	Buyers    int          `yaml:"buyers" json:"buyers"`
	Units     int          `yaml:"units" json:"units"`
	UnitPrice float64      `yaml:"unit_price" json:"unit_price"`
	Threads   []Definition `yaml:"threads" json:"threads"`
}

const (
	defaultInitiator = "Cascada"
	defaultBuyers    = 47
	defaultUnitPrice = 1999
)

// applyDefaults fills the optional scenario fields.
func (s *Scenario) applyDefaults() {
	if s.Name == "" {
		s.Name = "custom"
	}
	if s.Initiator == "" {
		s.Initiator = defaultInitiator
	}
	if s.Buyers <= 0 {
		s.Buyers = defaultBuyers
	}
	if s.Units <= 0 {
		s.Units = s.Buyers
	}
	if s.UnitPrice <= 0 {
		s.UnitPrice = defaultUnitPrice
	}
	for i := range s.Threads {
		if s.Threads[i].SubjectProduct == "" {
			s.Threads[i].SubjectProduct = s.Product
		}
	}
}

// Validate checks every thread definition. It fails fast on configuration
// errors so that no run ever starts with an undecidable thread.
func (s *Scenario) Validate() error {
	if len(s.Threads) == 0 {
		return fmt.Errorf("%w: scenario %q has no threads", ErrInvalidDefinition, s.Name)
	}
	seen := make(map[types.ThreadID]bool, len(s.Threads))
	for i, d := range s.Threads {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("thread %d: %w", i, err)
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidDefinition, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// Validate checks a single definition.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}
	if d.CounterpartyName == "" {
		return fmt.Errorf("%w: %s: counterparty_name is required", ErrInvalidDefinition, d.ID)
	}
	switch d.Outcome {
	case OutcomeWillSucceed:
		if !(d.FinalDiscount > 0) || math.IsInf(d.FinalDiscount, 0) {
			return fmt.Errorf("%w: %s: will_succeed requires a positive final_discount", ErrInvalidDefinition, d.ID)
		}
		if d.FixedFailureMessage != "" {
			return fmt.Errorf("%w: %s: fixed_failure_message is only valid for will_fail", ErrInvalidDefinition, d.ID)
		}
	case OutcomeWillFail:
		if d.FinalDiscount != 0 {
			return fmt.Errorf("%w: %s: final_discount is only valid for will_succeed", ErrInvalidDefinition, d.ID)
		}
	case OutcomePending, "":
		return fmt.Errorf("%w: %s: outcome must be decided before the run", ErrInvalidDefinition, d.ID)
	default:
		return fmt.Errorf("%w: %s: unknown outcome %q", ErrInvalidDefinition, d.ID, d.Outcome)
	}
	return nil
}

// Succeeds reports whether the thread is scripted to close a deal.
func (d Definition) Succeeds() bool {
	return d.Outcome == OutcomeWillSucceed
}

const demoProduct = `MacBook Pro M4 14"`

// Default returns the built-in four-retailer demo.
func Default() *Scenario {
	s := &Scenario{
		Name:      "default",
		Initiator: defaultInitiator,
		Product:   demoProduct,
		Buyers:    defaultBuyers,
		Units:     defaultBuyers,
		UnitPrice: defaultUnitPrice,
		Threads: []Definition{
			{
				ID:                  "1",
				CounterpartyName:    "Gigatron",
				CounterpartyContact: "nabavka@gigatron.rs",
				SubjectProduct:      demoProduct,
				Outcome:             OutcomeWillSucceed,
				FinalDiscount:       10,
			},
			{
				ID:                  "2",
				CounterpartyName:    "Setec",
				CounterpartyContact: "prodaja@setec.rs",
				SubjectProduct:      demoProduct,
				Outcome:             OutcomeWillFail,
				FixedFailureMessage: `Dear Cascada,

Thank you for your inquiry. Unfortunately, our current policy requires a minimum of 100 units for any volume discount consideration.

Additionally, our M4 inventory allocation is limited at this time. We would encourage you to reach out again next quarter when we expect new stock allocations.

We appreciate your understanding.

Regards,
Setec Sales Department`,
			},
			{
				ID:                  "3",
				CounterpartyName:    "Anhoch",
				CounterpartyContact: "veleprodaja@anhoch.com",
				SubjectProduct:      demoProduct,
				Outcome:             OutcomeWillSucceed,
				FinalDiscount:       5,
			},
			{
				ID:                  "4",
				CounterpartyName:    "iStyle",
				CounterpartyContact: "b2b@istyle.hr",
				SubjectProduct:      demoProduct,
				Outcome:             OutcomeWillFail,
				FixedFailureMessage: `Dear Sender,

Thank you for your inquiry. However, our compliance and legal departments require that all procurement negotiations exceeding €50,000 in value be conducted exclusively with authorized human representatives.

We are not able to proceed with AI-initiated transactions at this time. Please have a human coordinator contact us directly through our official B2B portal.

Regards,
iStyle Compliance Team`,
			},
		},
	}
	return s
}
