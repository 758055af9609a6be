// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sigverify supplies implementations of the utxo.SignatureVerifier
// collaborator: a placeholder that always succeeds, for use before
// signature checking is wired up, and a real secp256k1-backed verifier.
package sigverify

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/ripemd160" //lint:ignore SA1019 ripemd160 is required by the address scheme, not a TLS primitive
)

// AddressFromPubKey derives the owner address for a hex-encoded public key:
// RIPEMD160(SHA256(pubkey)), hex-encoded.
func AddressFromPubKey(pubkeyHex string) (string, error) {
	pubkeyBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return "", err
	}

	shaSum := sha256.Sum256(pubkeyBytes)

	ripemd := ripemd160.New()
	if _, err := ripemd.Write(shaSum[:]); err != nil {
		return "", err
	}

	return hex.EncodeToString(ripemd.Sum(nil)), nil
}
