package signing

import (
	"crypto/ecdsa"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/followbot/gofollow/clob/types"
)

// CreateL1Headers builds the wallet-attestation headers used to derive
// or create API credentials. Nil nonce and timestamp default to 0 and now.
func CreateL1Headers(
	privateKey *ecdsa.PrivateKey,
	chainID types.Chain,
	nonce *int64,
	timestamp *int64,
) (*types.L1PolyHeader, error) {
	ts := time.Now().Unix()
	if timestamp != nil {
		ts = *timestamp
	}

	n := int64(0)
	if nonce != nil {
		n = *nonce
	}

	sig, err := BuildClobEip712Signature(privateKey, chainID, ts, n)
	if err != nil {
		return nil, errors.Wrap(err, "build clob auth signature")
	}

	return &types.L1PolyHeader{
		PolyAddress:   GetAddressFromPrivateKey(privateKey).Hex(),
		PolySignature: sig,
		PolyTimestamp: strconv.FormatInt(ts, 10),
		PolyNonce:     strconv.FormatInt(n, 10),
	}, nil
}

// CreateL2Headers builds the API-key headers for an authenticated request.
func CreateL2Headers(
	privateKey *ecdsa.PrivateKey,
	creds *types.ApiKeyCreds,
	args *types.L2HeaderArgs,
	timestamp *int64,
) (*types.L2PolyHeader, error) {
	ts := time.Now().Unix()
	if timestamp != nil {
		ts = *timestamp
	}

	sig, err := BuildPolyHmacSignature(creds.Secret, ts, args.Method, args.RequestPath, args.Body)
	if err != nil {
		return nil, errors.Wrap(err, "build hmac signature")
	}

	return &types.L2PolyHeader{
		PolyAddress:    GetAddressFromPrivateKey(privateKey).Hex(),
		PolySignature:  sig,
		PolyTimestamp:  strconv.FormatInt(ts, 10),
		PolyAPIKey:     creds.Key,
		PolyPassphrase: creds.Passphrase,
	}, nil
}
