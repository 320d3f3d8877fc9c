package swap

import "testing"

func TestSatsToBTC(t *testing.T) {
	tests := []struct {
		sats uint64
		want string
	}{
		{25000000, "0.25"},
		{100000000, "1"},
		{1, "0.00000001"},
		{0, "0"},
		{2100000000000000, "21000000"},
	}

	for _, tt := range tests {
		if got := SatsToBTC(tt.sats).String(); got != tt.want {
			t.Errorf("SatsToBTC(%d) = %s, want %s", tt.sats, got, tt.want)
		}
	}
}

func TestSwapIDFor(t *testing.T) {
	if got := SwapIDFor("abcd", 3); got != "abcd:3" {
		t.Errorf("SwapIDFor = %s", got)
	}
}

func TestNewAtomicSwap(t *testing.T) {
	lock := &HTLCRecord{
		TxID:           "lock-tx",
		OutputIndex:    2,
		ValueSats:      25000000,
		Classification: ClassLock,
		Params:         &HTLCParams{Timelock: 850000},
	}
	s := NewAtomicSwap(lock)

	if s.SwapID != "lock-tx:2" {
		t.Errorf("swap id = %s", s.SwapID)
	}
	if s.CurrentState != StateLocked {
		t.Errorf("state = %s", s.CurrentState)
	}
	if s.BTCAmount.String() != "0.25" {
		t.Errorf("btc amount = %s", s.BTCAmount.String())
	}
	if s.IsSettled() {
		t.Error("new swap must not be settled")
	}
	if s.DetectedAt.IsZero() || s.LastUpdated.IsZero() {
		t.Error("timestamps must be set")
	}
}
