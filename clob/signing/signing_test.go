package signing

import (
	"math/big"
	"strings"
	"testing"

	"github.com/followbot/gofollow/clob/types"
)

const testKeyHex = "0000000000000000000000000000000000000000000000000000000000000001"

func bigFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int %q", s)
	}
	return v
}

func TestBuildPolyHmacSignature(t *testing.T) {
	secret := "c2VjcmV0LXNlY3JldC1zZWNyZXQ="

	body := `{"side":"BUY"}`
	sig, err := BuildPolyHmacSignature(secret, 1700000000, "POST", "/order", &body)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sig != "LT_ZT_hSGtEHpEJz7tUlu-Ht1I3vVADlV8KrnIXXGP4=" {
		t.Fatalf("sig = %q", sig)
	}

	// Nil body signs timestamp+method+path only.
	sig, err = BuildPolyHmacSignature(secret, 1700000000, "GET", "/auth/derive-api-key", nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sig != "wF05nLmeFaRm8seD98eOVn0pAi0mucAnJr4Ayy1t7Jc=" {
		t.Fatalf("sig = %q", sig)
	}
}

func TestBuildPolyHmacSignatureBadSecret(t *testing.T) {
	if _, err := BuildPolyHmacSignature("not base64 at all!!!", 1, "GET", "/", nil); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestBuildClobEip712Signature(t *testing.T) {
	key, err := PrivateKeyFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}

	sig, err := BuildClobEip712Signature(key, types.ChainPolygon, 1700000000, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 132 {
		t.Fatalf("sig = %q", sig)
	}
	// Recovery byte follows the Ethereum convention.
	if b := sig[len(sig)-2:]; b != "1b" && b != "1c" {
		t.Fatalf("v = %s, want 1b or 1c", b)
	}

	// Deterministic for fixed inputs.
	again, err := BuildClobEip712Signature(key, types.ChainPolygon, 1700000000, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sig != again {
		t.Fatalf("signature not deterministic")
	}

	// Nonce participates in the digest.
	other, err := BuildClobEip712Signature(key, types.ChainPolygon, 1700000000, 1)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sig == other {
		t.Fatalf("nonce change must change the signature")
	}
}

func TestCreateL1Headers(t *testing.T) {
	key, err := PrivateKeyFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}

	ts := int64(1700000000)
	nonce := int64(7)
	h, err := CreateL1Headers(key, types.ChainPolygon, &nonce, &ts)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if h.PolyAddress != GetAddressFromPrivateKey(key).Hex() {
		t.Errorf("address = %s", h.PolyAddress)
	}
	if h.PolyTimestamp != "1700000000" || h.PolyNonce != "7" {
		t.Errorf("ts=%s nonce=%s", h.PolyTimestamp, h.PolyNonce)
	}
	if !strings.HasPrefix(h.PolySignature, "0x") {
		t.Errorf("signature = %q", h.PolySignature)
	}
}

func TestCreateL2Headers(t *testing.T) {
	key, err := PrivateKeyFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	creds := &types.ApiKeyCreds{
		Key:        "api-key",
		Secret:     "c2VjcmV0LXNlY3JldC1zZWNyZXQ=",
		Passphrase: "phrase",
	}

	ts := int64(1700000000)
	body := `{"side":"BUY"}`
	h, err := CreateL2Headers(key, creds, &types.L2HeaderArgs{
		Method:      "POST",
		RequestPath: "/order",
		Body:        &body,
	}, &ts)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if h.PolyAPIKey != "api-key" || h.PolyPassphrase != "phrase" {
		t.Errorf("creds not carried: %+v", h)
	}
	if h.PolySignature != "LT_ZT_hSGtEHpEJz7tUlu-Ht1I3vVADlV8KrnIXXGP4=" {
		t.Errorf("signature = %q", h.PolySignature)
	}
}

func TestBuildOrderSignature(t *testing.T) {
	key, err := PrivateKeyFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	addr := GetAddressFromPrivateKey(key).Hex()

	data := &OrderData{
		Salt:          1,
		Maker:         addr,
		Signer:        addr,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       bigFromString(t, "1234"),
		MakerAmount:   bigFromString(t, "50000000"),
		TakerAmount:   bigFromString(t, "100000000"),
		Expiration:    bigFromString(t, "0"),
		Nonce:         bigFromString(t, "0"),
		FeeRateBps:    bigFromString(t, "0"),
		Side:          types.SideBuy,
		SignatureType: types.SignatureTypeEOA,
	}

	sig, err := BuildOrderSignature(key, types.ChainPolygon, "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E", data)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 132 {
		t.Fatalf("sig = %q", sig)
	}

	// The verifying contract is part of the domain, so the neg risk
	// exchange yields a different signature for the same order.
	negRiskSig, err := BuildOrderSignature(key, types.ChainPolygon, "0xC5d563A36AE78145C45a50134d48A1215220f80a", data)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sig == negRiskSig {
		t.Fatalf("exchange address must bind the signature")
	}
}

func TestPrivateKeyFromHexAcceptsPrefix(t *testing.T) {
	a, err := PrivateKeyFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("bare: %v", err)
	}
	b, err := PrivateKeyFromHex("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("prefixed: %v", err)
	}
	if GetAddressFromPrivateKey(a) != GetAddressFromPrivateKey(b) {
		t.Fatalf("prefix changed the key")
	}
}
