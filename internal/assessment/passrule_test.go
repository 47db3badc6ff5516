package assessment

import "testing"

func TestEvaluatePassRule_Percent(t *testing.T) {
	passed, err := EvaluatePassRule("percent >= 70", 15, 20)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !passed {
		t.Fatal("expected 75% to pass")
	}

	passed, err = EvaluatePassRule("percent >= 70", 13, 20)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if passed {
		t.Fatal("expected 65% to fail")
	}
}

func TestEvaluatePassRule_ScoreAndTotal(t *testing.T) {
	passed, err := EvaluatePassRule("score >= 18 && total == 20", 19, 20)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !passed {
		t.Fatal("expected rule over score and total to pass")
	}
}

func TestEvaluatePassRule_ZeroTotal(t *testing.T) {
	// No questions: percent is 0, never a division error.
	passed, err := EvaluatePassRule("percent >= 70", 0, 0)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if passed {
		t.Fatal("expected empty attempt to fail")
	}
}

func TestEvaluatePassRule_InvalidRule(t *testing.T) {
	if _, err := EvaluatePassRule("percent >=", 10, 20); err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := EvaluatePassRule("score + total", 10, 20); err == nil {
		t.Fatal("expected error for non-boolean rule")
	}
}
