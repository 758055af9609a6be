// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"strings"

	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
)

// ScriptKind enumerates the spending conditions a UTXO can carry. The
// textual "OP_…" strings used on the wire are a serialization artifact;
// internally a script is this tagged variant.
type ScriptKind int

const (
	CheckSig ScriptKind = iota
	Return
	ContractCall
	FractalSplit
	FractalMerge
)

func (k ScriptKind) String() string {
	switch k {
	case CheckSig:
		return "CHECKSIG"
	case Return:
		return "RETURN"
	case ContractCall:
		return "CONTRACTCALL"
	case FractalSplit:
		return "FRACTAL_SPLIT"
	case FractalMerge:
		return "FRACTAL_MERGE"
	default:
		return "UNKNOWN"
	}
}

// Script is a UTXO's spending condition. ContractAddr is only meaningful
// when Kind == ContractCall.
type Script struct {
	Kind         ScriptKind
	ContractAddr string
}

// NewCheckSigScript, NewReturnScript, NewFractalSplitScript, and
// NewFractalMergeScript build the scripts that carry no additional data.
func NewCheckSigScript() Script     { return Script{Kind: CheckSig} }
func NewReturnScript() Script       { return Script{Kind: Return} }
func NewFractalSplitScript() Script { return Script{Kind: FractalSplit} }
func NewFractalMergeScript() Script { return Script{Kind: FractalMerge} }

// NewContractCallScript builds a CONTRACTCALL script targeting addr.
func NewContractCallScript(addr string) Script {
	return Script{Kind: ContractCall, ContractAddr: addr}
}

// String renders the script in its wire form, e.g. "CONTRACTCALL:0xabc".
func (s Script) String() string {
	if s.Kind == ContractCall {
		return "CONTRACTCALL:" + s.ContractAddr
	}
	return s.Kind.String()
}

// ParseScript parses the wire form of a script back into a Script.
func ParseScript(raw string) (Script, error) {
	if strings.HasPrefix(raw, "CONTRACTCALL:") {
		addr := strings.TrimPrefix(raw, "CONTRACTCALL:")
		if addr == "" {
			return Script{}, chainerr.New(chainerr.ErrBadScript, "CONTRACTCALL script missing address")
		}
		return NewContractCallScript(addr), nil
	}
	switch raw {
	case "CHECKSIG":
		return NewCheckSigScript(), nil
	case "RETURN":
		return NewReturnScript(), nil
	case "FRACTAL_SPLIT":
		return NewFractalSplitScript(), nil
	case "FRACTAL_MERGE":
		return NewFractalMergeScript(), nil
	default:
		return Script{}, chainerr.New(chainerr.ErrBadScript, "unrecognized script directive %q", raw)
	}
}
