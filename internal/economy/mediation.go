package economy

import (
	"fmt"
	"log/slog"
	"sort"
)

// Epsilon is the amount below which a quantity counts as zero. Log entries
// never rest at or below it.
const Epsilon = 1e-9

// Account is a party to a trade.
type Account interface {
	ID() int
	Balance(c Commodity) float64
	Adjust(c Commodity, delta float64)
}

// Key identifies a directional trade intent: Seller offers Sell to Buyer in
// exchange for Buy.
type Key struct {
	Seller int       `json:"seller"`
	Sell   Commodity `json:"sell"`
	Buyer  int       `json:"buyer"`
	Buy    Commodity `json:"buy"`
}

// Inverse returns the key of the opposing intent.
func (k Key) Inverse() Key {
	return Key{Seller: k.Buyer, Sell: k.Buy, Buyer: k.Seller, Buy: k.Sell}
}

func (k Key) less(o Key) bool {
	switch {
	case k.Seller != o.Seller:
		return k.Seller < o.Seller
	case k.Sell != o.Sell:
		return k.Sell < o.Sell
	case k.Buyer != o.Buyer:
		return k.Buyer < o.Buyer
	default:
		return k.Buy < o.Buy
	}
}

// Transaction is a settled trade. Seller handed SoldAmount of Sold to Buyer
// and received BoughtAmount of Bought in return.
type Transaction struct {
	Time         int       `json:"time" db:"tick"`
	Seller       int       `json:"seller" db:"seller"`
	Sold         Commodity `json:"sold" db:"sold"`
	SoldAmount   float64   `json:"sold_amount" db:"sold_amount"`
	Buyer        int       `json:"buyer" db:"buyer"`
	Bought       Commodity `json:"bought" db:"bought"`
	BoughtAmount float64   `json:"bought_amount" db:"bought_amount"`
}

type entry struct {
	seller Account
	amount float64 // Outstanding, in the seller's commodity
}

// Mediator nets opposing trade intents within one tick. Unmatched amounts
// rest in its log until Refund returns them to their sellers.
type Mediator struct {
	rates *ConversionTable
	log   map[Key]*entry
}

// NewMediator creates a mediator with an empty log.
func NewMediator(rates *ConversionTable) *Mediator {
	return &Mediator{rates: rates, log: make(map[Key]*entry)}
}

// Submit processes seller's intent to sell amount of sell to buyer for buy.
// The amount is capped at the seller's balance and deducted immediately.
// If buyer already has the opposing intent resting in the log, the overlap
// settles and the settlement is returned; any remainder of this intent rests
// in the log. A full match pays the seller amount × rate(sell→buy) out of the
// resting entry; a partial match pays out the whole entry, worth
// entry × rate(buy→sell) to the buyer. Self-trades and zero amounts are
// no-ops. An intent whose rates include a zero never matches and rests.
func (m *Mediator) Submit(seller, buyer Account, sell, buy Commodity, amount float64) (Transaction, bool, error) {
	forward, err := m.rates.Rate(sell, buy)
	if err != nil {
		return Transaction{}, false, err
	}
	back, err := m.rates.Rate(buy, sell)
	if err != nil {
		return Transaction{}, false, err
	}
	if seller.ID() == buyer.ID() {
		return Transaction{}, false, nil
	}
	if bal := seller.Balance(sell); amount > bal {
		amount = bal
	}
	if !(amount > Epsilon) {
		return Transaction{}, false, nil
	}

	seller.Adjust(sell, -amount)

	key := Key{Seller: seller.ID(), Sell: sell, Buyer: buyer.ID(), Buy: buy}
	inv, ok := m.log[key.Inverse()]
	if !ok || forward <= 0 || back <= 0 {
		m.rest(key, seller, amount)
		return Transaction{}, false, nil
	}

	tx := Transaction{Seller: key.Seller, Sold: sell, Buyer: key.Buyer, Bought: buy}
	if converted := amount * forward; inv.amount >= converted {
		paid := min(converted, inv.amount)
		buyer.Adjust(sell, amount)
		seller.Adjust(buy, paid)
		inv.amount -= paid
		if inv.amount <= Epsilon {
			// Dust from rounding stays with the buyer.
			if inv.amount > 0 {
				inv.seller.Adjust(buy, inv.amount)
			}
			delete(m.log, key.Inverse())
		}
		tx.SoldAmount, tx.BoughtAmount = amount, paid
		return tx, true, nil
	}

	offered := min(inv.amount*back, amount) // resting entry's value in sell terms
	buyer.Adjust(sell, offered)
	seller.Adjust(buy, inv.amount)
	delete(m.log, key.Inverse())
	tx.SoldAmount, tx.BoughtAmount = offered, inv.amount
	if rest := amount - offered; rest > Epsilon {
		m.rest(key, seller, rest)
	} else if rest > 0 {
		seller.Adjust(sell, rest)
	}
	return tx, true, nil
}

func (m *Mediator) rest(key Key, seller Account, amount float64) {
	if e, ok := m.log[key]; ok {
		e.amount += amount
		return
	}
	m.log[key] = &entry{seller: seller, amount: amount}
}

// Outstanding returns the unsettled amount resting under key.
func (m *Mediator) Outstanding(key Key) (float64, bool) {
	e, ok := m.log[key]
	if !ok {
		return 0, false
	}
	return e.amount, true
}

// Len returns the number of resting entries.
func (m *Mediator) Len() int { return len(m.log) }

// Keys returns the resting entries' keys in a stable order.
func (m *Mediator) Keys() []Key {
	keys := make([]Key, 0, len(m.log))
	for k := range m.log {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// Refund returns every resting amount to its seller and clears the log. It
// returns the number of entries refunded.
func (m *Mediator) Refund() int {
	keys := m.Keys()
	for _, k := range keys {
		e := m.log[k]
		e.seller.Adjust(k.Sell, e.amount)
	}
	clear(m.log)
	if len(keys) > 0 {
		slog.Debug("mediation log refunded", "entries", len(keys))
	}
	return len(keys)
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d->%d:%d", k.Seller, k.Sell, k.Buyer, k.Buy)
}
