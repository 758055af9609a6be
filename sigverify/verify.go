// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sigverify

import (
	"crypto/sha256"
	"encoding/hex"

	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/decred/dcrd/lru"
)

// PlaceholderVerifier always reports success. Useful where a caller needs
// a SignatureVerifier collaborator but the surrounding test or tool does
// not care about actual signature validity.
type PlaceholderVerifier struct{}

// Verify always returns true.
func (PlaceholderVerifier) Verify(owner, pubkey, sig, msg string) (bool, error) {
	return true, nil
}

// Secp256k1Verifier checks an ECDSA signature over sha256(msg) using the
// secp256k1 curve, and confirms owner matches the address derived from
// pubkey. Successful and failed verifications are both cached by a
// verification key so repeated checks of the same (owner, pubkey, sig,
// msg) tuple — common when the same input is revalidated across mempool
// admission and block validation — skip the elliptic-curve work.
type Secp256k1Verifier struct {
	cache *lru.Cache[string]
	// results holds the cached boolean outcome for each key present in
	// cache; lru.Cache itself only tracks membership (a set), so the
	// outcome is kept alongside it.
	results map[string]bool
}

// NewSecp256k1Verifier builds a verifier whose result cache holds up to
// cacheSize entries.
func NewSecp256k1Verifier(cacheSize uint) *Secp256k1Verifier {
	return &Secp256k1Verifier{
		cache:   lru.NewCache[string](cacheSize),
		results: make(map[string]bool, cacheSize),
	}
}

func verificationKey(owner, pubkey, sig, msg string) string {
	return owner + "|" + pubkey + "|" + sig + "|" + msg
}

// Verify implements utxo.SignatureVerifier.
func (v *Secp256k1Verifier) Verify(owner, pubkey, sig, msg string) (bool, error) {
	key := verificationKey(owner, pubkey, sig, msg)
	if v.cache.Contains(key) {
		return v.results[key], nil
	}

	ok, err := v.verify(owner, pubkey, sig, msg)
	if err != nil {
		return false, err
	}

	v.cache.Add(key)
	v.results[key] = ok
	return ok, nil
}

func (v *Secp256k1Verifier) verify(owner, pubkey, sig, msg string) (bool, error) {
	addr, err := AddressFromPubKey(pubkey)
	if err != nil {
		return false, err
	}
	if addr != owner {
		log.Debugf("signature check: address mismatch for owner %s", owner)
		return false, nil
	}

	pubkeyBytes, err := hex.DecodeString(pubkey)
	if err != nil {
		return false, err
	}
	parsedPubkey, err := secp.ParsePubKey(pubkeyBytes)
	if err != nil {
		log.Debugf("signature check: invalid pubkey: %v", err)
		return false, nil
	}

	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return false, err
	}
	parsedSig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		log.Debugf("signature check: invalid signature encoding: %v", err)
		return false, nil
	}

	digest := sha256.Sum256([]byte(msg))
	return parsedSig.Verify(digest[:], parsedPubkey), nil
}
