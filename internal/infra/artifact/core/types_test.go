package core

import "testing"

func TestKeyRoundTrip(t *testing.T) {
	key := Key("exp-1", "trial-2", "checkpoints/epoch-3.ckpt")
	exp, trial, name, err := ParseKey(key)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if exp != "exp-1" || trial != "trial-2" || name != "checkpoints/epoch-3.ckpt" {
		t.Fatalf("round trip mismatch: %s %s %s", exp, trial, name)
	}
}

func TestParseKeyRejectsMalformed(t *testing.T) {
	for _, key := range []string{"", "exp", "exp/trial", "exp//name", "/trial/name"} {
		if _, _, _, err := ParseKey(key); err == nil {
			t.Fatalf("expected error for %q", key)
		}
	}
}

func TestTrialPrefixCoversKeys(t *testing.T) {
	prefix := TrialPrefix("exp-1", "trial-2")
	key := Key("exp-1", "trial-2", "stdout.log")
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		t.Fatalf("key %q must fall under prefix %q", key, prefix)
	}
}
