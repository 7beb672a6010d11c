package calldata

import (
	"math/big"
	"testing"
)

func decodeOrFatal(t *testing.T, input string) *MatchCall {
	t.Helper()
	call, err := DecodeMatchOrders(input)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return call
}

func TestComputeFillTakerBuy(t *testing.T) {
	call := decodeOrFatal(t, encodeMatch(
		testLeg{maker: addrAlice, token: 777, makerAmt: 100, takerAmt: 500, side: 0},
		[]testLeg{{maker: addrBob, token: 777, makerAmt: 1000, takerAmt: 300, side: 1}},
		100, 500,
		[]int64{500},
	))

	fill := ComputeFillForTarget(call, addrAlice)
	if fill == nil {
		t.Fatal("expected a fill for the taker")
	}
	if fill.Role != RoleTaker || fill.Side != SideBuy {
		t.Errorf("role/side = %s/%s, want TAKER/BUY", fill.Role, fill.Side)
	}
	if fill.TokenID != "777" {
		t.Errorf("tokenId = %s, want 777", fill.TokenID)
	}
	if fill.CashFilled == nil || fill.CashFilled.String() != "100" {
		t.Errorf("cashFilled = %v, want 100", fill.CashFilled)
	}
	if fill.SharesFilled == nil || fill.SharesFilled.String() != "500" {
		t.Errorf("sharesFilled = %v, want 500", fill.SharesFilled)
	}
}

func TestComputeFillTakerSell(t *testing.T) {
	call := decodeOrFatal(t, encodeMatch(
		testLeg{maker: addrAlice, token: 777, makerAmt: 500, takerAmt: 100, side: 1},
		nil,
		500, 100,
		nil,
	))

	fill := ComputeFillForTarget(call, addrAlice)
	if fill == nil {
		t.Fatal("expected a fill for the taker")
	}
	if fill.Side != SideSell {
		t.Errorf("side = %s, want SELL", fill.Side)
	}
	if fill.SharesFilled.String() != "500" {
		t.Errorf("sharesFilled = %s, want 500", fill.SharesFilled)
	}
	if fill.CashFilled.String() != "100" {
		t.Errorf("cashFilled = %s, want 100", fill.CashFilled)
	}
}

func TestComputeFillTakerDerivesReceiveAmount(t *testing.T) {
	// takerReceiveAmount absent (zero): shares derive from the leg ratio,
	// floored, multiply before divide.
	call := decodeOrFatal(t, encodeMatch(
		testLeg{maker: addrAlice, token: 1, makerAmt: 300, takerAmt: 1000, side: 0},
		nil,
		100, 0,
		nil,
	))

	fill := ComputeFillForTarget(call, addrAlice)
	if fill == nil {
		t.Fatal("expected a fill")
	}
	if fill.CashFilled.String() != "100" {
		t.Errorf("cashFilled = %s, want 100", fill.CashFilled)
	}
	// floor(100 * 1000 / 300) = 333
	if fill.SharesFilled == nil || fill.SharesFilled.String() != "333" {
		t.Errorf("sharesFilled = %v, want 333", fill.SharesFilled)
	}
}

func TestComputeFillTakerZeroMakerAmount(t *testing.T) {
	call := decodeOrFatal(t, encodeMatch(
		testLeg{maker: addrAlice, token: 1, makerAmt: 0, takerAmt: 1000, side: 0},
		nil,
		100, 0,
		nil,
	))

	fill := ComputeFillForTarget(call, addrAlice)
	if fill == nil {
		t.Fatal("expected a fill")
	}
	if fill.CashFilled.String() != "100" {
		t.Errorf("cashFilled = %s, want 100", fill.CashFilled)
	}
	if fill.SharesFilled != nil {
		t.Errorf("sharesFilled = %s, want nil when the ratio is undefined", fill.SharesFilled)
	}
}

func TestComputeFillMakerSell(t *testing.T) {
	call := decodeOrFatal(t, encodeMatch(
		testLeg{maker: addrBob, token: 777, makerAmt: 300, takerAmt: 1000, side: 0},
		[]testLeg{{maker: addrAlice, token: 777, makerAmt: 1000, takerAmt: 300, side: 1}},
		0, 0,
		[]int64{500},
	))

	fill := ComputeFillForTarget(call, addrAlice)
	if fill == nil {
		t.Fatal("expected a fill for the maker")
	}
	if fill.Role != RoleMaker || fill.Side != SideSell {
		t.Errorf("role/side = %s/%s, want MAKER/SELL", fill.Role, fill.Side)
	}
	if fill.SharesFilled == nil || fill.SharesFilled.String() != "500" {
		t.Errorf("sharesFilled = %v, want 500", fill.SharesFilled)
	}
	// floor(500 * 300 / 1000) = 150
	if fill.CashFilled == nil || fill.CashFilled.String() != "150" {
		t.Errorf("cashFilled = %v, want 150", fill.CashFilled)
	}
}

func TestComputeFillMakerBuy(t *testing.T) {
	call := decodeOrFatal(t, encodeMatch(
		testLeg{maker: addrBob, token: 777, makerAmt: 1000, takerAmt: 500, side: 1},
		[]testLeg{{maker: addrAlice, token: 777, makerAmt: 1000, takerAmt: 2000, side: 0}},
		0, 0,
		[]int64{500},
	))

	fill := ComputeFillForTarget(call, addrAlice)
	if fill == nil {
		t.Fatal("expected a fill for the maker")
	}
	if fill.Side != SideBuy {
		t.Errorf("side = %s, want BUY", fill.Side)
	}
	if fill.CashFilled.String() != "500" {
		t.Errorf("cashFilled = %s, want 500", fill.CashFilled)
	}
	// floor(500 * 2000 / 1000) = 1000
	if fill.SharesFilled.String() != "1000" {
		t.Errorf("sharesFilled = %s, want 1000", fill.SharesFilled)
	}
}

func TestComputeFillMakerSumsMatchingLegs(t *testing.T) {
	call := decodeOrFatal(t, encodeMatch(
		testLeg{maker: addrBob, token: 777, makerAmt: 300, takerAmt: 1000, side: 0},
		[]testLeg{
			{maker: addrAlice, token: 777, makerAmt: 1000, takerAmt: 300, side: 1},
			{maker: addrCarol, token: 777, makerAmt: 500, takerAmt: 200, side: 1},
			{maker: addrAlice, token: 777, makerAmt: 2000, takerAmt: 600, side: 1},
		},
		0, 0,
		[]int64{500, 100, 1000},
	))

	fill := ComputeFillForTarget(call, addrAlice)
	if fill == nil {
		t.Fatal("expected a fill for the maker")
	}
	// Legs 0 and 2 belong to the target: shares 500+1000, cash 150+300.
	if fill.SharesFilled.String() != "1500" {
		t.Errorf("sharesFilled = %s, want 1500", fill.SharesFilled)
	}
	if fill.CashFilled.String() != "450" {
		t.Errorf("cashFilled = %s, want 450", fill.CashFilled)
	}
}

func TestComputeFillMakerZeroMakerAmountPassthrough(t *testing.T) {
	call := decodeOrFatal(t, encodeMatch(
		testLeg{maker: addrBob, token: 777, makerAmt: 300, takerAmt: 1000, side: 0},
		[]testLeg{{maker: addrAlice, token: 777, makerAmt: 0, takerAmt: 300, side: 1}},
		0, 0,
		[]int64{500},
	))

	fill := ComputeFillForTarget(call, addrAlice)
	if fill == nil {
		t.Fatal("expected a fill")
	}
	if fill.SharesFilled == nil || fill.SharesFilled.String() != "500" {
		t.Errorf("sharesFilled = %v, want 500 passthrough", fill.SharesFilled)
	}
	if fill.CashFilled != nil {
		t.Errorf("cashFilled = %s, want nil when the ratio is undefined", fill.CashFilled)
	}
}

func TestComputeFillNotParty(t *testing.T) {
	call := decodeOrFatal(t, encodeMatch(
		testLeg{maker: addrBob, token: 1, makerAmt: 100, takerAmt: 500},
		[]testLeg{{maker: addrCarol, token: 1, makerAmt: 1000, takerAmt: 300, side: 1}},
		100, 500,
		[]int64{500},
	))

	if fill := ComputeFillForTarget(call, addrAlice); fill != nil {
		t.Errorf("expected nil fill for a stranger, got %+v", fill)
	}
	if fill := ComputeFillForTarget(nil, addrAlice); fill != nil {
		t.Errorf("expected nil fill for nil call, got %+v", fill)
	}
}

func TestInferRoleAndSide(t *testing.T) {
	signerLeg := testLeg{maker: addrBob, signer: addrAlice, token: 901, makerAmt: 100, takerAmt: 500, side: 1}
	call := decodeOrFatal(t, encodeMatch(
		signerLeg,
		[]testLeg{{maker: addrCarol, token: 901, makerAmt: 1000, takerAmt: 300, side: 0}},
		100, 0,
		[]int64{100},
	))

	t.Run("taker by signer field", func(t *testing.T) {
		role, side, token := InferRoleAndSide(call, addrAlice)
		if role != RoleTaker {
			t.Errorf("role = %s, want TAKER", role)
		}
		if side != SideSell {
			t.Errorf("side = %s, want SELL", side)
		}
		if token != "901" {
			t.Errorf("token = %s, want 901", token)
		}
	})

	t.Run("taker by maker field", func(t *testing.T) {
		role, _, _ := InferRoleAndSide(call, addrBob)
		if role != RoleTaker {
			t.Errorf("role = %s, want TAKER", role)
		}
	})

	t.Run("maker", func(t *testing.T) {
		role, side, _ := InferRoleAndSide(call, addrCarol)
		if role != RoleMaker {
			t.Errorf("role = %s, want MAKER", role)
		}
		// Side still reads from the taker leg.
		if side != SideSell {
			t.Errorf("side = %s, want SELL", side)
		}
	})

	t.Run("stranger", func(t *testing.T) {
		role, _, _ := InferRoleAndSide(call, "0x1111111111222222222233333333334444444444")
		if role != RoleUnknown {
			t.Errorf("role = %s, want UNKNOWN", role)
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		role, _, _ := InferRoleAndSide(call, "0x"+"05C1882212A41AA8D7DF5B70EEBE03D9319345B7")
		if role != RoleTaker {
			t.Errorf("role = %s, want TAKER", role)
		}
	})

	t.Run("nil call", func(t *testing.T) {
		role, side, token := InferRoleAndSide(nil, addrAlice)
		if role != RoleUnknown || side != SideUnknown || token != "" {
			t.Errorf("got %s/%s/%q, want UNKNOWN/UNKNOWN/empty", role, side, token)
		}
	})
}

func TestLegRatioFloors(t *testing.T) {
	leg := &OrderLeg{MakerAmount: big.NewInt(3), TakerAmount: big.NewInt(10)}
	got := legRatio(big.NewInt(10), leg)
	// floor(10 * 10 / 3) = 33
	if got.String() != "33" {
		t.Errorf("legRatio = %s, want 33", got)
	}
	if legRatio(nil, leg) != nil {
		t.Error("nil fill should yield nil")
	}
	if legRatio(big.NewInt(1), &OrderLeg{MakerAmount: big.NewInt(0), TakerAmount: big.NewInt(1)}) != nil {
		t.Error("zero makerAmount should yield nil")
	}
}
