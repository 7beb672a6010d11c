package calldata

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// Order tuple layout, one 32-byte word per field:
// 0x00 salt, 0x20 maker, 0x40 signer, 0x60 taker, 0x80 tokenId,
// 0xA0 makerAmount, 0xC0 takerAmount, 0xE0 expiration, 0x100 nonce,
// 0x120 feeRateBps, 0x140 side, 0x160 signatureType.
const (
	orderWords = 12
	orderSize  = orderWords * 32
)

// matchOrders argument head:
// word 0 offset of the taker order tuple
// word 1 offset of the maker orders array
// word 2 takerFillAmount
// word 3 takerReceiveAmount
// word 4 offset of the makerFillAmounts array
const matchHeadSize = 5 * 32

// maxLegs caps array walks so a hostile length word cannot run away.
const maxLegs = 50

// MatchesCalldata reports whether raw transaction input is hex whose first
// four bytes equal selector and whose body contains needle (an address in
// lowercase hex without 0x). It is the cheap admission filter run before any
// real decoding: false positives are acceptable, false negatives are not.
func MatchesCalldata(raw, needle, selector string) bool {
	body := strings.ToLower(stripHexPrefix(raw))
	if len(body) < 8 || !isHexString(body) {
		return false
	}
	sel := strings.ToLower(stripHexPrefix(selector))
	if body[:8] != sel {
		return false
	}
	return strings.Contains(body, strings.ToLower(stripHexPrefix(needle)))
}

// DecodeMatchOrders parses a matchOrders transaction input, selector
// included. It fails closed: malformed or truncated calldata returns an
// error and never a partial call or a panic.
func DecodeMatchOrders(input string) (call *MatchCall, err error) {
	defer func() {
		if r := recover(); r != nil {
			call = nil
			err = errors.Errorf("calldata: decode panic: %v", r)
		}
	}()

	raw, derr := hex.DecodeString(strings.ToLower(stripHexPrefix(input)))
	if derr != nil {
		return nil, errors.Wrap(derr, "calldata: input is not hex")
	}
	if len(raw) < 4 {
		return nil, errors.New("calldata: input shorter than a selector")
	}
	if hex.EncodeToString(raw[:4]) != SelectorMatchOrders {
		return nil, errors.Errorf("calldata: selector %x is not matchOrders", raw[:4])
	}
	data := raw[4:]
	if len(data) < matchHeadSize {
		return nil, errors.Errorf("calldata: argument head truncated at %d bytes", len(data))
	}

	takerOff, err := offsetAt(data, 0)
	if err != nil {
		return nil, err
	}
	makersOff, err := offsetAt(data, 1)
	if err != nil {
		return nil, err
	}
	fillsOff, err := offsetAt(data, 4)
	if err != nil {
		return nil, err
	}

	taker, err := orderAt(data, takerOff)
	if err != nil {
		return nil, errors.Wrap(err, "taker order")
	}
	makers, err := orderArrayAt(data, makersOff)
	if err != nil {
		return nil, err
	}
	fills, err := amountArrayAt(data, fillsOff)
	if err != nil {
		return nil, err
	}

	return &MatchCall{
		TakerOrder:         *taker,
		MakerOrders:        makers,
		TakerFillAmount:    wordAt(data, 2),
		TakerReceiveAmount: wordAt(data, 3),
		MakerFillAmounts:   fills,
	}, nil
}

// wordAt returns head word i as an unsigned integer.
func wordAt(data []byte, i int) *big.Int {
	return new(big.Int).SetBytes(data[i*32 : i*32+32])
}

// offsetAt reads head word i as a byte offset into data, rejecting values
// that cannot address the payload.
func offsetAt(data []byte, i int) (int, error) {
	w := wordAt(data, i)
	if !w.IsInt64() {
		return 0, errors.Errorf("calldata: head word %d does not fit an offset", i)
	}
	off := w.Int64()
	if off < 0 || off > int64(len(data)) {
		return 0, errors.Errorf("calldata: offset %d outside %d-byte payload", off, len(data))
	}
	return int(off), nil
}

// orderAt decodes the static order tuple starting at off.
func orderAt(data []byte, off int) (*OrderLeg, error) {
	if off+orderSize > len(data) {
		return nil, errors.Errorf("calldata: order tuple at %d truncated", off)
	}
	if !isValidAddressField(data[off+32 : off+64]) {
		return nil, errors.Errorf("calldata: maker field at %d is not an address", off+32)
	}
	return &OrderLeg{
		Salt:          new(big.Int).SetBytes(data[off : off+32]),
		Maker:         addressAt(data, off+32),
		Signer:        addressAt(data, off+64),
		Taker:         addressAt(data, off+96),
		TokenID:       new(big.Int).SetBytes(data[off+128 : off+160]),
		MakerAmount:   new(big.Int).SetBytes(data[off+160 : off+192]),
		TakerAmount:   new(big.Int).SetBytes(data[off+192 : off+224]),
		Expiration:    new(big.Int).SetBytes(data[off+224 : off+256]),
		Nonce:         new(big.Int).SetBytes(data[off+256 : off+288]),
		FeeRateBps:    new(big.Int).SetBytes(data[off+288 : off+320]),
		Side:          sideFromWord(data[off+320 : off+352]),
		SignatureType: int(data[off+orderSize-1]),
	}, nil
}

// orderArrayAt decodes a length-prefixed array of packed order tuples.
func orderArrayAt(data []byte, off int) ([]OrderLeg, error) {
	n, err := lengthAt(data, off)
	if err != nil {
		return nil, err
	}
	legs := make([]OrderLeg, 0, n)
	for i := 0; i < n; i++ {
		leg, err := orderAt(data, off+32+i*orderSize)
		if err != nil {
			return nil, errors.Wrapf(err, "maker order %d", i)
		}
		legs = append(legs, *leg)
	}
	return legs, nil
}

// amountArrayAt decodes a length-prefixed array of uint256 words.
func amountArrayAt(data []byte, off int) ([]*big.Int, error) {
	n, err := lengthAt(data, off)
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, 0, n)
	for i := 0; i < n; i++ {
		pos := off + 32 + i*32
		if pos+32 > len(data) {
			return nil, errors.Errorf("calldata: fill amount %d truncated", i)
		}
		out = append(out, new(big.Int).SetBytes(data[pos:pos+32]))
	}
	return out, nil
}

func lengthAt(data []byte, off int) (int, error) {
	if off+32 > len(data) {
		return 0, errors.Errorf("calldata: array head at %d truncated", off)
	}
	w := new(big.Int).SetBytes(data[off : off+32])
	if !w.IsInt64() || w.Int64() > maxLegs {
		return 0, errors.Errorf("calldata: array length %s out of range", w.String())
	}
	return int(w.Int64()), nil
}

// addressAt renders the low 20 bytes of the word at off as 0x-prefixed hex.
func addressAt(data []byte, off int) string {
	return "0x" + hex.EncodeToString(data[off+12:off+32])
}

func sideFromWord(w []byte) Side {
	v := new(big.Int).SetBytes(w)
	switch {
	case v.Sign() == 0:
		return SideBuy
	case v.Cmp(big.NewInt(1)) == 0:
		return SideSell
	default:
		return SideUnknown
	}
}

// isValidAddressField reports whether a 32-byte word plausibly holds an
// address: the 12 padding bytes are zero and at least 3 of the first 10
// address bytes are non-zero. Real addresses spread entropy across the
// word; salts and amounts almost never pass both checks.
func isValidAddressField(field []byte) bool {
	if len(field) != 32 {
		return false
	}
	for i := 0; i < 12; i++ {
		if field[i] != 0 {
			return false
		}
	}
	nonZero := 0
	for i := 12; i < 22; i++ {
		if field[i] != 0 {
			nonZero++
		}
	}
	return nonZero >= 3
}

func stripHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func isHexString(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
