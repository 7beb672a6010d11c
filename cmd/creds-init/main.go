// Command creds-init seeds the encrypted credential store the follower
// reads at boot. It copies the known credential keys from a .env file (or
// the process environment) into badger. A WALLET_MNEMONIC is turned into
// the signing key on the spot and never stored; with -derive the CLOB API
// triple is likewise derived from the wallet key when missing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/followbot/gofollow/clob/client"
	"github.com/followbot/gofollow/clob/types"
	"github.com/followbot/gofollow/pkg/secretstore"
)

// credentialKeys is the allowlist copied into the store. Anything else in
// the .env file stays out of badger.
var credentialKeys = []string{
	"WALLET_PRIVATE_KEY",
	"WALLET_FUNDER_ADDRESS",
	"CLOB_API_KEY",
	"CLOB_API_SECRET",
	"CLOB_API_PASSPHRASE",
	"CLOB_HOST",
	"CHAIN_ID",
	"SIGNATURE_TYPE",
}

func main() {
	var (
		inPath    = flag.String("env", ".env", "input .env file; missing keys fall back to the process environment")
		dbPath    = flag.String("store", getenv("FOLLOWER_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("FOLLOWER_SECRET_KEY", ""), "badger encryption key (32 bytes hex/base64)")
		derive    = flag.Bool("derive", false, "derive the CLOB API credentials from the wallet key when missing")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set FOLLOWER_SECRET_KEY or pass -secret-key"))
	}

	fileVals := map[string]string{}
	if *inPath != "" {
		vals, rerr := godotenv.Read(*inPath)
		if rerr == nil {
			fileVals = vals
		} else if !os.IsNotExist(rerr) {
			fatal(rerr)
		}
	}
	lookup := func(name string) string {
		if v, ok := fileVals[name]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(os.Getenv(name))
	}

	creds := map[string]string{}
	for _, name := range credentialKeys {
		if v := lookup(name); v != "" {
			creds[name] = v
		}
	}

	if creds["WALLET_PRIVATE_KEY"] == "" {
		if mn := lookup("WALLET_MNEMONIC"); mn != "" {
			pk, addr, derr := deriveWalletKey(mn, lookup("WALLET_DERIVATION_PATH"))
			if derr != nil {
				fatal(derr)
			}
			creds["WALLET_PRIVATE_KEY"] = pk
			fmt.Fprintf(os.Stderr, "derived wallet key from mnemonic: address=%s\n", addr)
		}
	}

	if *derive {
		if err := deriveAPITriple(creds); err != nil {
			fatal(err)
		}
	}

	if len(creds) == 0 {
		fatal(fmt.Errorf("nothing to store: no credential keys found in %s or the environment", *inPath))
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
		ReadOnly:      false,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	for _, name := range credentialKeys { // stable order for the report
		v, ok := creds[name]
		if !ok {
			continue
		}
		if err := ss.SetString("env/"+name, v); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "stored env/%s\n", name)
	}
	fmt.Fprintf(os.Stderr, "%d credentials in %s\n", len(creds), *dbPath)
}

// deriveWalletKey turns a BIP39 mnemonic into the signing key. Only the
// derived key goes into the store, never the mnemonic.
func deriveWalletKey(mnemonic, path string) (pkHex, address string, err error) {
	if path == "" {
		path = "m/44'/60'/0'/0/0"
	}
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return "", "", fmt.Errorf("invalid mnemonic: %w", err)
	}
	dp, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return "", "", fmt.Errorf("invalid derivation path %q: %w", path, err)
	}
	acct, err := w.Derive(dp, false)
	if err != nil {
		return "", "", fmt.Errorf("derive %s: %w", path, err)
	}
	pk, err := w.PrivateKeyHex(acct)
	if err != nil {
		return "", "", err
	}
	return pk, strings.ToLower(acct.Address.Hex()), nil
}

// deriveAPITriple fills CLOB_API_* from the wallet key when all three are
// missing. A partial triple is left alone so a typo is not silently
// papered over.
func deriveAPITriple(creds map[string]string) error {
	if creds["CLOB_API_KEY"] != "" || creds["CLOB_API_SECRET"] != "" || creds["CLOB_API_PASSPHRASE"] != "" {
		return nil
	}
	pk := creds["WALLET_PRIVATE_KEY"]
	if pk == "" {
		return fmt.Errorf("cannot derive API credentials: WALLET_PRIVATE_KEY not set")
	}

	chainID := int64(137)
	if v := creds["CHAIN_ID"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAIN_ID %q: %w", v, err)
		}
		chainID = n
	}

	cc, err := client.NewClient(client.Config{
		Host:       creds["CLOB_HOST"],
		ChainID:    types.Chain(chainID),
		PrivateKey: pk,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	derived, err := cc.CreateOrDeriveAPIKey(ctx, nil)
	if err != nil {
		return err
	}
	creds["CLOB_API_KEY"] = derived.Key
	creds["CLOB_API_SECRET"] = derived.Secret
	creds["CLOB_API_PASSPHRASE"] = derived.Passphrase
	fmt.Fprintln(os.Stderr, "derived CLOB API credentials from wallet key")
	return nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
