package api

import "testing"

func TestParseReplicasDefaults(t *testing.T) {
	ack, from, ok := parseReplicas("", 5)
	if !ok {
		t.Fatal("expected default parse to succeed")
	}
	if from != 5 || ack != 3 {
		t.Fatalf("expected ack=3 from=5, got ack=%d from=%d", ack, from)
	}
}

func TestParseReplicasExplicit(t *testing.T) {
	ack, from, ok := parseReplicas("2/3", 5)
	if !ok || ack != 2 || from != 3 {
		t.Fatalf("expected ack=2 from=3 ok=true, got ack=%d from=%d ok=%v", ack, from, ok)
	}
}

func TestParseReplicasRejectsInvalid(t *testing.T) {
	cases := []string{"0/3", "4/3", "abc", "2/", "/3", "1/6"}
	for _, c := range cases {
		if _, _, ok := parseReplicas(c, 5); ok {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}
