package pow_test

import (
	"testing"

	"github.com/ardanlabs/powsim/foundation/blockchain/pow"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_ThresholdMonotonic(t *testing.T) {
	t.Log("Given the need to make higher difficulty never easier.")
	{
		for d1 := uint(0); d1 <= pow.MaxDifficulty+2; d1++ {
			for d2 := d1 + 1; d2 <= pow.MaxDifficulty+2; d2++ {
				if pow.Threshold(d1) < pow.Threshold(d2) {
					t.Logf("\t%s\tTest:\tgot: threshold(%d)=%d threshold(%d)=%d", failed, d1, pow.Threshold(d1), d2, pow.Threshold(d2))
					t.Fatalf("\t%s\tTest:\tShould be non-increasing in difficulty.", failed)
				}
			}
		}
		t.Logf("\t%s\tTest:\tShould be non-increasing in difficulty.", success)

		for d := uint(1); d <= pow.MaxDifficulty; d++ {
			if pow.ExpectedAttempts(d) < 10*pow.ExpectedAttempts(d-1) {
				t.Fatalf("\t%s\tTest:\tShould grow expected attempts tenfold per level: level %d.", failed, d)
			}
		}
		t.Logf("\t%s\tTest:\tShould grow expected attempts tenfold per level.", success)

		if pow.Threshold(0) != pow.Modulus {
			t.Fatalf("\t%s\tTest:\tShould accept every digest at difficulty 0.", failed)
		}
		t.Logf("\t%s\tTest:\tShould accept every digest at difficulty 0.", success)

		if pow.Threshold(pow.MaxDifficulty) == 0 {
			t.Fatalf("\t%s\tTest:\tShould keep the max difficulty solvable.", failed)
		}
		t.Logf("\t%s\tTest:\tShould keep the max difficulty solvable.", success)

		if got := pow.Probability(pow.MaxDifficulty); got != 1e-8 {
			t.Fatalf("\t%s\tTest:\tShould cap the success probability at 1e-8: got %g", failed, got)
		}
		t.Logf("\t%s\tTest:\tShould cap the success probability at 1e-8.", success)

		if pow.Threshold(pow.MaxDifficulty+5) != pow.Threshold(pow.MaxDifficulty) {
			t.Fatalf("\t%s\tTest:\tShould evaluate levels above the max as the max.", failed)
		}
		t.Logf("\t%s\tTest:\tShould evaluate levels above the max as the max.", success)
	}
}

func Test_HashDeterministic(t *testing.T) {
	type table struct {
		name    string
		prev    pow.Digest
		height  uint64
		ts      int64
		data    string
		nonce   uint32
		minerID string
	}

	tt := []table{
		{name: "genesis", prev: pow.NoParent, height: 0, ts: 1_700_000_000_000, data: "Genesis Block", nonce: 0, minerID: "system"},
		{name: "block", prev: 123456789, height: 42, ts: 1_700_000_123_456, data: "Hello Blockchain!", nonce: 987654, minerID: "miner_1"},
		{name: "empty", prev: 0, height: 1, ts: 0, data: "", nonce: 0xFFFFFFFF, minerID: ""},
	}

	t.Log("Given the need to reproduce a digest from block fields.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				d1 := pow.Hash(tst.prev, tst.height, tst.ts, tst.data, tst.nonce, tst.minerID)
				d2 := pow.Hash(tst.prev, tst.height, tst.ts, tst.data, tst.nonce, tst.minerID)

				if d1 != d2 {
					t.Fatalf("\t%s\tTest %d:\tShould get the same digest twice: %s != %s", failed, testID, d1, d2)
				}
				t.Logf("\t%s\tTest %d:\tShould get the same digest twice.", success, testID)

				if uint32(d1) >= pow.Modulus {
					t.Fatalf("\t%s\tTest %d:\tShould stay inside the digest range: %d", failed, testID, d1)
				}
				t.Logf("\t%s\tTest %d:\tShould stay inside the digest range.", success, testID)

				if d3 := pow.Hash(tst.prev, tst.height, tst.ts, tst.data, tst.nonce+1, tst.minerID); d3 == d1 {
					t.Fatalf("\t%s\tTest %d:\tShould change the digest when the nonce changes.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould change the digest when the nonce changes.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_HashOrderSensitive(t *testing.T) {
	t.Log("Given the need to weight every field differently.")
	{
		a := pow.Hash(5, 7, 100, "abc", 1, "miner_1")
		b := pow.Hash(7, 5, 100, "abc", 1, "miner_1")
		if a == b {
			t.Fatalf("\t%s\tTest:\tShould differ when prev and height are swapped.", failed)
		}
		t.Logf("\t%s\tTest:\tShould differ when prev and height are swapped.", success)

		c := pow.Hash(5, 7, 100, "miner_1", 1, "abc")
		if a == c {
			t.Fatalf("\t%s\tTest:\tShould differ when data and miner are swapped.", failed)
		}
		t.Logf("\t%s\tTest:\tShould differ when data and miner are swapped.", success)
	}
}

func Test_HashDistribution(t *testing.T) {
	const attempts = 200_000

	t.Log("Given the need for nonces to behave like a fair lottery.")
	{
		var hits int
		for n := range uint32(attempts) {
			if pow.MeetsDifficulty(pow.Hash(42, 10, 1_700_000_000_000, "data", n, "miner_1"), 2) {
				hits++
			}
		}

		// Expect ~2000 hits at p=0.01. Allow a wide band.
		if hits < 1500 || hits > 2500 {
			t.Logf("\t%s\tTest:\tgot: %d", failed, hits)
			t.Logf("\t%s\tTest:\texp: ~%d", failed, attempts/100)
			t.Fatalf("\t%s\tTest:\tShould solve about one in a hundred at difficulty 2.", failed)
		}
		t.Logf("\t%s\tTest:\tShould solve about one in a hundred at difficulty 2.", success)
	}
}
