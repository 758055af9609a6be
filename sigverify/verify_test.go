// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sigverify

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

func TestPlaceholderVerifierAlwaysTrue(t *testing.T) {
	v := PlaceholderVerifier{}
	ok, err := v.Verify("owner", "pub", "sig", "msg")
	if err != nil || !ok {
		t.Fatalf("PlaceholderVerifier.Verify() = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestAddressFromPubKeyDeterministic(t *testing.T) {
	priv, err := secp.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	a1, err := AddressFromPubKey(pubHex)
	if err != nil {
		t.Fatalf("AddressFromPubKey: %v", err)
	}
	a2, err := AddressFromPubKey(pubHex)
	if err != nil {
		t.Fatalf("AddressFromPubKey: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("AddressFromPubKey not deterministic: %s vs %s", a1, a2)
	}
	if len(a1) != 40 { // 20-byte RIPEMD160 digest, hex-encoded
		t.Fatalf("address length = %d, want 40", len(a1))
	}
}

func TestSecp256k1VerifierRoundTrip(t *testing.T) {
	priv, err := secp.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())
	owner, err := AddressFromPubKey(pubHex)
	if err != nil {
		t.Fatalf("AddressFromPubKey: %v", err)
	}

	msg := "some-utxo-id"
	digest := sha256.Sum256([]byte(msg))
	sig := ecdsa.Sign(priv, digest[:])
	sigHex := hex.EncodeToString(sig.Serialize())

	v := NewSecp256k1Verifier(16)
	ok, err := v.Verify(owner, pubHex, sigHex, msg)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected valid signature to verify")
	}

	// Cached path should return the same result.
	ok, err = v.Verify(owner, pubHex, sigHex, msg)
	if err != nil || !ok {
		t.Fatalf("cached Verify() = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestSecp256k1VerifierRejectsWrongOwner(t *testing.T) {
	priv, err := secp.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	msg := "some-utxo-id"
	digest := sha256.Sum256([]byte(msg))
	sig := ecdsa.Sign(priv, digest[:])
	sigHex := hex.EncodeToString(sig.Serialize())

	v := NewSecp256k1Verifier(16)
	ok, err := v.Verify("not-the-real-owner", pubHex, sigHex, msg)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected verification to fail for mismatched owner")
	}
}

func TestSecp256k1VerifierRejectsTamperedSignature(t *testing.T) {
	priv, err := secp.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())
	owner, err := AddressFromPubKey(pubHex)
	if err != nil {
		t.Fatalf("AddressFromPubKey: %v", err)
	}

	digestA := sha256.Sum256([]byte("message-a"))
	sig := ecdsa.Sign(priv, digestA[:])
	sigHex := hex.EncodeToString(sig.Serialize())

	v := NewSecp256k1Verifier(16)
	ok, err := v.Verify(owner, pubHex, sigHex, "message-b")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected verification to fail for signature over a different message")
	}
}
