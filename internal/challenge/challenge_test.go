package challenge

import "testing"

func TestGenerate_Deterministic(t *testing.T) {
	first := Generate("a1b2c3d4e5f60718", 100)
	second := Generate("a1b2c3d4e5f60718", 100)
	if len(first) != 100 || len(second) != 100 {
		t.Fatalf("expected 100 problems, got %d/%d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sequence diverged at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestGenerate_SeedsDiffer(t *testing.T) {
	a := Generate("00000000deadbeef", 50)
	b := Generate("ffffffffdeadbeef", 50)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical sequences")
	}
}

func TestGenerate_MalformedSeedStillDeterministic(t *testing.T) {
	a := Generate("not-hex!", 10)
	b := Generate("not-hex!", 10)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("malformed seed not deterministic at %d", i)
		}
	}
}

func TestGenerate_OperandRanges(t *testing.T) {
	for _, p := range Generate("0123456789abcdef", 1000) {
		switch p.Op {
		case "*":
			if p.A < -12 || p.A > 12 || p.B < -12 || p.B > 12 {
				t.Fatalf("multiplication operands out of range: %+v", p)
			}
		case "+", "-":
			if p.A < -99 || p.A > 99 || p.B < -99 || p.B > 99 {
				t.Fatalf("operands out of range: %+v", p)
			}
		default:
			t.Fatalf("unexpected operator %q", p.Op)
		}
	}
}

func TestGenerate_AnswersConsistent(t *testing.T) {
	for i, p := range Generate("feedface00000000", 200) {
		var want int
		switch p.Op {
		case "+":
			want = p.A + p.B
		case "-":
			want = p.A - p.B
		case "*":
			want = p.A * p.B
		}
		if p.Answer != want {
			t.Fatalf("problem %d: answer %d, want %d", i, p.Answer, want)
		}
	}
}

func TestScore_PerfectRecomputation(t *testing.T) {
	problems := Generate("a1b2c3d4e5f60718", 100)
	answers := make([]int, len(problems))
	for i, p := range problems {
		answers[i] = p.Answer
	}
	if got := Score(problems, answers); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestScore_PartialAndShort(t *testing.T) {
	problems := Generate("a1b2c3d4e5f60718", 10)
	answers := make([]int, 5)
	for i := 0; i < 5; i++ {
		answers[i] = problems[i].Answer
	}
	if got := Score(problems, answers); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}

	answers[2] = problems[2].Answer + 1
	if got := Score(problems, answers); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}
