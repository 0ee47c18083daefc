package economy

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

const (
	x Commodity = 0
	y Commodity = 1
)

type account struct {
	id int
	h  Holdings
}

func (a *account) ID() int                          { return a.id }
func (a *account) Balance(c Commodity) float64      { return a.h[c] }
func (a *account) Adjust(c Commodity, delta float64) { a.h[c] += delta }

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func exampleRates(t *testing.T) *ConversionTable {
	t.Helper()
	rates, err := NewConversionTable([][]float64{
		{1, 2},
		{0.4, 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	return rates
}

func TestMediatorOpposingIntents(t *testing.T) {
	tests := []struct {
		name        string
		aFirst      bool
		wantTx      Transaction
		wantA       Holdings
		wantB       Holdings
		outstanding float64
	}{
		{
			name:        "A first",
			aFirst:      true,
			wantTx:      Transaction{Seller: 1, Sold: y, SoldAmount: 8, Buyer: 0, Bought: x, BoughtAmount: 3.2},
			wantA:       Holdings{0, 8},
			wantB:       Holdings{3.2, 0},
			outstanding: 1.8,
		},
		{
			name:        "B first",
			wantTx:      Transaction{Seller: 0, Sold: x, SoldAmount: 3.2, Buyer: 1, Bought: y, BoughtAmount: 8},
			wantA:       Holdings{0, 8},
			wantB:       Holdings{3.2, 0},
			outstanding: 1.8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &account{id: 0, h: Holdings{5, 0}}
			b := &account{id: 1, h: Holdings{0, 8}}
			m := NewMediator(exampleRates(t))

			first := func() (Transaction, bool, error) { return m.Submit(a, b, x, y, 5) }
			second := func() (Transaction, bool, error) { return m.Submit(b, a, y, x, 8) }
			if !tt.aFirst {
				first, second = second, first
			}
			if _, settled, err := first(); err != nil || settled {
				t.Fatalf("first intent: settled=%v err=%v", settled, err)
			}
			tx, settled, err := second()
			if err != nil || !settled {
				t.Fatalf("second intent: settled=%v err=%v", settled, err)
			}
			if tx.Seller != tt.wantTx.Seller || tx.Buyer != tt.wantTx.Buyer ||
				tx.Sold != tt.wantTx.Sold || tx.Bought != tt.wantTx.Bought ||
				!near(tx.SoldAmount, tt.wantTx.SoldAmount) || !near(tx.BoughtAmount, tt.wantTx.BoughtAmount) {
				t.Fatalf("transaction = %+v, want %+v", tx, tt.wantTx)
			}
			for c := range a.h {
				if !near(a.h[c], tt.wantA[c]) || !near(b.h[c], tt.wantB[c]) {
					t.Fatalf("holdings A=%v B=%v, want A=%v B=%v", a.h, b.h, tt.wantA, tt.wantB)
				}
			}
			if m.Len() != 1 {
				t.Fatalf("log has %d entries, want 1", m.Len())
			}
			got, ok := m.Outstanding(Key{Seller: 0, Sell: x, Buyer: 1, Buy: y})
			if !ok || !near(got, tt.outstanding) {
				t.Fatalf("outstanding = %g (%v), want %g", got, ok, tt.outstanding)
			}

			// X deducted from A equals X credited to B plus the resting balance.
			if !near(5-a.h[x], b.h[x]+got) {
				t.Fatalf("X not conserved: A gave %g, B got %g, resting %g", 5-a.h[x], b.h[x], got)
			}
			if !near(8-b.h[y], a.h[y]) {
				t.Fatalf("Y not conserved: B gave %g, A got %g", 8-b.h[y], a.h[y])
			}

			if n := m.Refund(); n != 1 {
				t.Fatalf("refunded %d entries", n)
			}
			if m.Len() != 0 || !near(a.h[x], tt.outstanding) {
				t.Fatalf("after refund: log %d, A holds %g X", m.Len(), a.h[x])
			}
		})
	}
}

func TestMediatorPricesAtSellerRate(t *testing.T) {
	tests := []struct {
		name        string
		rates       [][]float64
		bAmount     float64
		wantPaid    float64 // X paid to B
		wantA       Holdings
		wantResting Key
		outstanding float64
	}{
		{
			// 4 Y at 0.4 is worth 1.6 X, which A's resting 5 X covers.
			name:        "full match",
			rates:       [][]float64{{1, 2}, {0.4, 1}},
			bAmount:     4,
			wantPaid:    1.6,
			wantA:       Holdings{0, 4},
			wantResting: Key{Seller: 0, Sell: x, Buyer: 1, Buy: y},
			outstanding: 3.4,
		},
		{
			// 8 Y at 1 would need 8 X; A's 5 X goes to B whole, valued at
			// 5 × 3 = 15 Y, capped at the 8 B offered.
			name:        "partial match capped at offer",
			rates:       [][]float64{{1, 3}, {1, 1}},
			bAmount:     8,
			wantPaid:    5,
			wantA:       Holdings{0, 8},
			outstanding: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rates, err := NewConversionTable(tt.rates)
			if err != nil {
				t.Fatal(err)
			}
			m := NewMediator(rates)
			a := &account{id: 0, h: Holdings{5, 0}}
			b := &account{id: 1, h: Holdings{0, 8}}
			if _, _, err := m.Submit(a, b, x, y, 5); err != nil {
				t.Fatal(err)
			}
			tx, settled, err := m.Submit(b, a, y, x, tt.bAmount)
			if err != nil || !settled {
				t.Fatalf("settled=%v err=%v", settled, err)
			}
			if !near(tx.BoughtAmount, tt.wantPaid) || !near(b.h[x], tt.wantPaid) {
				t.Fatalf("B paid %g X (holds %g), want %g", tx.BoughtAmount, b.h[x], tt.wantPaid)
			}
			for c := range a.h {
				if !near(a.h[c], tt.wantA[c]) {
					t.Fatalf("A holds %v, want %v", a.h, tt.wantA)
				}
			}
			got, ok := m.Outstanding(tt.wantResting)
			if tt.outstanding == 0 {
				if m.Len() != 0 {
					t.Fatalf("log has %d entries, want none", m.Len())
				}
			} else if !ok || !near(got, tt.outstanding) {
				t.Fatalf("outstanding = %g (%v), want %g", got, ok, tt.outstanding)
			}
			// Y: B gave, A got, the rest rests with B's key.
			restY, _ := m.Outstanding(Key{Seller: 1, Sell: y, Buyer: 0, Buy: x})
			if !near(8-b.h[y], a.h[y]+restY) {
				t.Fatalf("Y not conserved: B gave %g, A got %g, resting %g", 8-b.h[y], a.h[y], restY)
			}
		})
	}
}

func TestMediatorNoOps(t *testing.T) {
	m := NewMediator(exampleRates(t))
	a := &account{id: 0, h: Holdings{5, 5}}
	b := &account{id: 1, h: Holdings{0, 0}}

	cases := []struct {
		name          string
		seller, buyer *account
		amount        float64
	}{
		{"self trade", a, a, 3},
		{"zero amount", a, b, 0},
		{"negative amount", a, b, -2},
		{"nothing to sell", b, a, 4},
	}
	for _, c := range cases {
		tx, settled, err := m.Submit(c.seller, c.buyer, x, y, c.amount)
		if err != nil || settled || tx != (Transaction{}) {
			t.Errorf("%s: tx=%+v settled=%v err=%v", c.name, tx, settled, err)
		}
	}
	if m.Len() != 0 || a.h[x] != 5 || a.h[y] != 5 || b.h.Total() != 0 {
		t.Fatalf("no-op intents changed state: log=%d A=%v B=%v", m.Len(), a.h, b.h)
	}
}

func TestMediatorCapsAtBalance(t *testing.T) {
	m := NewMediator(exampleRates(t))
	a := &account{id: 0, h: Holdings{2, 0}}
	b := &account{id: 1, h: Holdings{0, 0}}
	if _, _, err := m.Submit(a, b, x, y, 10); err != nil {
		t.Fatal(err)
	}
	if a.h[x] != 0 {
		t.Fatalf("A holds %g X, want 0", a.h[x])
	}
	if got, _ := m.Outstanding(Key{Seller: 0, Sell: x, Buyer: 1, Buy: y}); got != 2 {
		t.Fatalf("outstanding = %g, want 2", got)
	}
}

func TestMediatorAccumulatesSameDirection(t *testing.T) {
	m := NewMediator(exampleRates(t))
	a := &account{id: 0, h: Holdings{10, 0}}
	b := &account{id: 1, h: Holdings{0, 0}}
	m.Submit(a, b, x, y, 3)
	m.Submit(a, b, x, y, 4)
	if got, _ := m.Outstanding(Key{Seller: 0, Sell: x, Buyer: 1, Buy: y}); got != 7 || m.Len() != 1 {
		t.Fatalf("outstanding = %g in %d entries", got, m.Len())
	}
}

func TestMediatorUnknownCommodity(t *testing.T) {
	m := NewMediator(exampleRates(t))
	a := &account{id: 0, h: Holdings{1, 1}}
	b := &account{id: 1, h: Holdings{1, 1}}
	if _, _, err := m.Submit(a, b, x, Commodity(5), 1); !errors.Is(err, ErrUnknownCommodity) {
		t.Fatalf("err = %v", err)
	}
	if a.h[x] != 1 {
		t.Fatal("failed submit changed holdings")
	}
}

func TestMediatorConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	const n, goods = 4, 3
	table := make([][]float64, goods)
	for i := range table {
		table[i] = make([]float64, goods)
		for j := range table[i] {
			table[i][j] = 0.2 + 3*rng.Float64()
		}
	}
	rates, err := NewConversionTable(table)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMediator(rates)

	accounts := make([]*account, n)
	initial := make([]float64, goods)
	for i := range accounts {
		accounts[i] = &account{id: i, h: make(Holdings, goods)}
		for c := range accounts[i].h {
			accounts[i].h[c] = 10 * rng.Float64()
			initial[c] += accounts[i].h[c]
		}
	}

	total := func(c int) float64 {
		sum := 0.0
		for _, a := range accounts {
			sum += a.h[c]
		}
		for _, k := range m.Keys() {
			if int(k.Sell) == c {
				v, _ := m.Outstanding(k)
				sum += v
			}
		}
		return sum
	}

	for tick := 0; tick < 50; tick++ {
		m.Refund()
		for i := 0; i < 20; i++ {
			s := accounts[rng.Intn(n)]
			b := accounts[rng.Intn(n)]
			sell, buy := Commodity(rng.Intn(goods)), Commodity(rng.Intn(goods))
			if _, _, err := m.Submit(s, b, sell, buy, 5*rng.Float64()); err != nil {
				t.Fatal(err)
			}
		}
		for c := 0; c < goods; c++ {
			if got := total(c); math.Abs(got-initial[c]) > 1e-6 {
				t.Fatalf("tick %d: commodity %d total %g, want %g", tick, c, got, initial[c])
			}
		}
		for _, k := range m.Keys() {
			if v, _ := m.Outstanding(k); v <= Epsilon {
				t.Fatalf("tick %d: zero entry %v = %g retained", tick, k, v)
			}
		}
		for _, a := range accounts {
			for c, v := range a.h {
				if v < -Epsilon {
					t.Fatalf("tick %d: account %d holds %g of %d", tick, a.id, v, c)
				}
			}
		}
	}
	m.Refund()
	if m.Len() != 0 {
		t.Fatalf("log not cleared: %d", m.Len())
	}
	for c := 0; c < goods; c++ {
		if got := total(c); math.Abs(got-initial[c]) > 1e-6 {
			t.Fatalf("commodity %d: total %g after refund, want %g", c, got, initial[c])
		}
	}
}
