package core

import "testing"

func TestNormalizeSender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Prize Team <Prizes@Brand.example>", "prizes@brand.example"},
		{"prizes+spring@brand.example", "prizes@brand.example"},
		{"  PRIZES@brand.example ", "prizes@brand.example"},
		{"not an address", "not an address"},
	}
	for _, tt := range tests {
		if got := NormalizeSender(tt.in); got != tt.want {
			t.Errorf("NormalizeSender(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComputeFingerprint_StableAcrossNoise(t *testing.T) {
	base := Candidate{
		Sender:  "Prize Team <prizes@brand.example>",
		Subject: "Win a Café Espresso Machine",
		Body:    "Enter by 12 May at https://brand.example/win?utm_source=a to win one of 3 machines.",
	}
	variants := map[string]Candidate{
		"forwarded subject": {Sender: base.Sender, Subject: "Fwd: RE: win a cafe espresso machine", Body: base.Body},
		"tagged sender":     {Sender: "prizes+list7@Brand.example", Subject: base.Subject, Body: base.Body},
		"tracking params":   {Sender: base.Sender, Subject: base.Subject, Body: "Enter by 12 May at https://brand.example/win?utm_source=b&id=991 to win one of 3 machines."},
		"different numbers": {Sender: base.Sender, Subject: base.Subject, Body: "Enter by 19 May at https://brand.example/win to win one of 5 machines."},
		"whitespace":        {Sender: base.Sender, Subject: "  Win a   Café Espresso Machine ", Body: "Enter  by 12 May\nat https://brand.example/win to win\tone of 3 machines."},
	}

	want := ComputeFingerprint(base)
	for name, c := range variants {
		if got := ComputeFingerprint(c); got != want {
			t.Errorf("%s: fingerprint changed", name)
		}
	}
}

func TestComputeFingerprint_DistinguishesGiveaways(t *testing.T) {
	a := Candidate{Sender: "prizes@brand.example", Subject: "Win a bike", Body: "Enter the spring bike giveaway at https://brand.example/bike"}
	others := map[string]Candidate{
		"other sender":  {Sender: "prizes@other.example", Subject: a.Subject, Body: a.Body},
		"other subject": {Sender: a.Sender, Subject: "Win a kayak", Body: a.Body},
		"other body":    {Sender: a.Sender, Subject: a.Subject, Body: "Enter the autumn kayak giveaway at https://brand.example/kayak"},
	}

	fa := ComputeFingerprint(a)
	for name, c := range others {
		if ComputeFingerprint(c) == fa {
			t.Errorf("%s: fingerprints collided", name)
		}
	}
	if len(fa) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(fa))
	}
}

func TestSimHash_NearDuplicatesAreClose(t *testing.T) {
	a := SimHash("We are giving away three cargo bikes to readers this spring, enter before the end of the month and good luck to everyone")
	b := SimHash("We are giving away three cargo bikes to readers this spring, enter before the end of the week and good luck to everyone")
	c := SimHash("Your invoice for the quarterly software subscription is attached, payment is due within thirty days of receipt")

	if d := HammingDistance(a, b); d >= HammingDistance(a, c) {
		t.Errorf("near duplicate distance %d not below unrelated distance %d", d, HammingDistance(a, c))
	}
	if SimHash("") != 0 {
		t.Error("empty body should hash to zero")
	}
}

func TestFingerprint_Short(t *testing.T) {
	if got := Fingerprint("0123456789abcdef").Short(); got != "0123456789ab" {
		t.Errorf("Short() = %q", got)
	}
	if got := Fingerprint("abc").Short(); got != "abc" {
		t.Errorf("Short() = %q", got)
	}
}
