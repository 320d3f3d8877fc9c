package swap

import (
	"github.com/btcsuite/btcd/txscript"

	"github.com/JPShag/ComitSwapBot/pkg/helpers"
)

// scriptVariant bounds the timelock push accepted by one HTLC template
// variant. Variants are tried in order; the first one whose bounds accept
// the observed push wins. New template variants are new entries in
// htlcVariants.
type scriptVariant struct {
	name string

	// minDataLen/maxDataLen bound the timelock push data length in bytes.
	minDataLen int
	maxDataLen int

	// allowSmallInt accepts OP_0..OP_16 as the timelock push.
	allowSmallInt bool
}

// htlcVariants is the ordered list of accepted HTLC script variants.
var htlcVariants = []scriptVariant{
	{name: "primary", minDataLen: 1, maxDataLen: 4, allowSmallInt: true},
	{name: "permissive", minDataLen: 1, maxDataLen: 8, allowSmallInt: true},
}

// htlcScriptParts holds the raw pieces extracted by one template walk.
type htlcScriptParts struct {
	secretHash    []byte
	recipientHash []byte
	senderHash    []byte

	timelockData []byte
	smallInt     bool
	smallIntVal  int
}

// MatchHTLCScript checks whether script is a COMIT HTLC lock script and
// extracts its parameters. The walk is anchored at the first byte and the
// whole script must be consumed. Returns (nil, false) on any structural
// mismatch or when the timelock exceeds the maximum.
func MatchHTLCScript(script []byte) (*HTLCParams, bool) {
	parts, ok := walkHTLCScript(script)
	if !ok {
		return nil, false
	}

	for _, v := range htlcVariants {
		timelock, ok := v.decodeTimelock(parts)
		if !ok {
			continue
		}
		return &HTLCParams{
			SecretHash:          helpers.BytesToHex(parts.secretHash),
			RecipientPubKeyHash: helpers.BytesToHex(parts.recipientHash),
			SenderPubKeyHash:    helpers.BytesToHex(parts.senderHash),
			Timelock:            timelock,
		}, true
	}

	return nil, false
}

// MatchHTLCScriptHex is MatchHTLCScript for a hex-encoded script.
func MatchHTLCScriptHex(scriptHex string) (*HTLCParams, bool) {
	script, err := helpers.HexToBytes(scriptHex)
	if err != nil {
		return nil, false
	}
	return MatchHTLCScript(script)
}

// decodeTimelock validates the timelock push against the variant bounds
// and decodes it as an unsigned little-endian integer.
func (v scriptVariant) decodeTimelock(parts *htlcScriptParts) (uint32, bool) {
	if parts.smallInt {
		if !v.allowSmallInt {
			return 0, false
		}
		return uint32(parts.smallIntVal), true
	}

	n := len(parts.timelockData)
	if n < v.minDataLen || n > v.maxDataLen {
		return 0, false
	}

	var timelock uint64
	for i := 0; i < n; i++ {
		timelock |= uint64(parts.timelockData[i]) << (8 * i)
	}
	if timelock > MaxTimelock {
		return 0, false
	}

	return uint32(timelock), true
}

// walkHTLCScript tokenizes the script and checks it against the template:
//
//	OP_IF
//	    OP_SHA256 <32-byte secret hash> OP_EQUALVERIFY
//	    OP_DUP OP_HASH160 <20-byte recipient hash> OP_EQUALVERIFY OP_CHECKSIG
//	OP_ELSE
//	    <timelock> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    OP_DUP OP_HASH160 <20-byte sender hash> OP_EQUALVERIFY OP_CHECKSIG
//	OP_ENDIF
func walkHTLCScript(script []byte) (*htlcScriptParts, bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	parts := &htlcScriptParts{}

	// OP_IF
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_IF {
		return nil, false
	}

	// OP_SHA256
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_SHA256 {
		return nil, false
	}

	// <secret hash> - 32 bytes
	if !tokenizer.Next() {
		return nil, false
	}
	parts.secretHash = tokenizer.Data()
	if len(parts.secretHash) != 32 {
		return nil, false
	}

	// OP_EQUALVERIFY
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_EQUALVERIFY {
		return nil, false
	}

	// OP_DUP OP_HASH160
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_DUP {
		return nil, false
	}
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_HASH160 {
		return nil, false
	}

	// <recipient pubkey hash> - 20 bytes
	if !tokenizer.Next() {
		return nil, false
	}
	parts.recipientHash = tokenizer.Data()
	if len(parts.recipientHash) != 20 {
		return nil, false
	}

	// OP_EQUALVERIFY OP_CHECKSIG
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_EQUALVERIFY {
		return nil, false
	}
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_CHECKSIG {
		return nil, false
	}

	// OP_ELSE
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_ELSE {
		return nil, false
	}

	// <timelock> - small int or data push
	if !tokenizer.Next() {
		return nil, false
	}
	op := tokenizer.Opcode()
	if txscript.IsSmallInt(op) {
		parts.smallInt = true
		parts.smallIntVal = txscript.AsSmallInt(op)
	} else {
		parts.timelockData = tokenizer.Data()
		if len(parts.timelockData) == 0 {
			return nil, false
		}
	}

	// OP_CHECKLOCKTIMEVERIFY OP_DROP
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_CHECKLOCKTIMEVERIFY {
		return nil, false
	}
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_DROP {
		return nil, false
	}

	// OP_DUP OP_HASH160
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_DUP {
		return nil, false
	}
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_HASH160 {
		return nil, false
	}

	// <sender pubkey hash> - 20 bytes
	if !tokenizer.Next() {
		return nil, false
	}
	parts.senderHash = tokenizer.Data()
	if len(parts.senderHash) != 20 {
		return nil, false
	}

	// OP_EQUALVERIFY OP_CHECKSIG
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_EQUALVERIFY {
		return nil, false
	}
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_CHECKSIG {
		return nil, false
	}

	// OP_ENDIF, then nothing else
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_ENDIF {
		return nil, false
	}
	if tokenizer.Next() || tokenizer.Err() != nil {
		return nil, false
	}

	return parts, true
}
