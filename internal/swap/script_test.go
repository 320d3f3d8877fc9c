package swap

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/txscript"
)

func repeatByte(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// buildLockScript assembles a well-formed HTLC lock script.
func buildLockScript(t *testing.T, secretHash, recipientHash, senderHash []byte, timelock int64) []byte {
	t.Helper()
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(secretHash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(recipientHash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(timelock)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(senderHash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("building script: %v", err)
	}
	return script
}

func TestMatchHTLCScript(t *testing.T) {
	secretHash := repeatByte(0xaa, 32)
	recipientHash := repeatByte(0xbb, 20)
	senderHash := repeatByte(0xcc, 20)

	script := buildLockScript(t, secretHash, recipientHash, senderHash, 1700000000)

	params, ok := MatchHTLCScript(script)
	if !ok {
		t.Fatal("expected match")
	}

	if params.SecretHash != strings.Repeat("aa", 32) {
		t.Errorf("secret hash = %s", params.SecretHash)
	}
	if params.RecipientPubKeyHash != strings.Repeat("bb", 20) {
		t.Errorf("recipient hash = %s", params.RecipientPubKeyHash)
	}
	if params.SenderPubKeyHash != strings.Repeat("cc", 20) {
		t.Errorf("sender hash = %s", params.SenderPubKeyHash)
	}
	if params.Timelock != 1700000000 {
		t.Errorf("timelock = %d, want 1700000000", params.Timelock)
	}
	if params.IsHeightTimelock() {
		t.Error("1700000000 should be a timestamp timelock")
	}
}

func TestMatchHTLCScriptTimelockTooLarge(t *testing.T) {
	script := buildLockScript(t, repeatByte(0xaa, 32), repeatByte(0xbb, 20), repeatByte(0xcc, 20), 3000000000)

	if _, ok := MatchHTLCScript(script); ok {
		t.Error("timelock above 2147483647 must not match")
	}
}

func TestMatchHTLCScriptHeightTimelock(t *testing.T) {
	script := buildLockScript(t, repeatByte(0x11, 32), repeatByte(0x22, 20), repeatByte(0x33, 20), 850000)

	params, ok := MatchHTLCScript(script)
	if !ok {
		t.Fatal("expected match")
	}
	if params.Timelock != 850000 {
		t.Errorf("timelock = %d", params.Timelock)
	}
	if !params.IsHeightTimelock() {
		t.Error("850000 should be a height timelock")
	}
}

func TestMatchHTLCScriptSmallIntTimelock(t *testing.T) {
	script := buildLockScript(t, repeatByte(0x11, 32), repeatByte(0x22, 20), repeatByte(0x33, 20), 16)

	params, ok := MatchHTLCScript(script)
	if !ok {
		t.Fatal("expected match for OP_16 timelock")
	}
	if params.Timelock != 16 {
		t.Errorf("timelock = %d, want 16", params.Timelock)
	}
}

func TestMatchHTLCScriptRejections(t *testing.T) {
	valid := buildLockScript(t, repeatByte(0xaa, 32), repeatByte(0xbb, 20), repeatByte(0xcc, 20), 1700000000)

	tests := []struct {
		name   string
		script []byte
	}{
		{"empty", nil},
		{"truncated", valid[:len(valid)-2]},
		{"trailing bytes", append(append([]byte{}, valid...), txscript.OP_NOP)},
		{"not anchored at start", append([]byte{txscript.OP_NOP}, valid...)},
		{"p2wpkh output", append([]byte{txscript.OP_0, 0x14}, repeatByte(0xab, 20)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := MatchHTLCScript(tt.script); ok {
				t.Error("expected no match")
			}
		})
	}
}

func TestMatchHTLCScriptWrongHashSizes(t *testing.T) {
	// 31-byte secret hash
	script := buildLockScript(t, repeatByte(0xaa, 31), repeatByte(0xbb, 20), repeatByte(0xcc, 20), 1700000000)
	if _, ok := MatchHTLCScript(script); ok {
		t.Error("31-byte secret hash must not match")
	}

	// 21-byte recipient hash
	script = buildLockScript(t, repeatByte(0xaa, 32), repeatByte(0xbb, 21), repeatByte(0xcc, 20), 1700000000)
	if _, ok := MatchHTLCScript(script); ok {
		t.Error("21-byte recipient hash must not match")
	}
}

func TestMatchHTLCScriptWrongOpcode(t *testing.T) {
	// Same structure but OP_CHECKSEQUENCEVERIFY instead of OP_CLTV.
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(repeatByte(0xaa, 32))
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(repeatByte(0xbb, 20))
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(850000)
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(repeatByte(0xcc, 20))
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("building script: %v", err)
	}

	if _, ok := MatchHTLCScript(script); ok {
		t.Error("CSV-based script must not match")
	}
}

func TestMatchHTLCScriptHex(t *testing.T) {
	script := buildLockScript(t, repeatByte(0xaa, 32), repeatByte(0xbb, 20), repeatByte(0xcc, 20), 1700000000)

	params, ok := MatchHTLCScriptHex(hex.EncodeToString(script))
	if !ok {
		t.Fatal("expected match from hex")
	}
	if params.Timelock != 1700000000 {
		t.Errorf("timelock = %d", params.Timelock)
	}

	if _, ok := MatchHTLCScriptHex("not hex"); ok {
		t.Error("invalid hex must not match")
	}
}
