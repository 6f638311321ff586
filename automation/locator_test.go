package automation

import "testing"

func TestPickCandidateExactBeatsPattern(t *testing.T) {
	texts := []string{"Cuentas y tarjetas", "Cuentas", "Mis cuentas"}
	idx, ok := pickCandidate(texts, Target{Exact: "Cuentas", Pattern: "cuentas"})
	if !ok || idx != 1 {
		t.Errorf("pickCandidate = (%d, %v), want (1, true)", idx, ok)
	}
}

func TestPickCandidatePatternFallback(t *testing.T) {
	texts := []string{"Inicio", "Emitir Cheques", "Ayuda"}
	idx, ok := pickCandidate(texts, Target{Exact: "Emitir cheques", Pattern: `emitir cheques`})
	if !ok || idx != 1 {
		t.Errorf("pickCandidate = (%d, %v), want (1, true)", idx, ok)
	}
}

func TestPickCandidateIgnoresLongContainers(t *testing.T) {
	long := "Emitir cheques electrónicos de forma simple y segura con todos los beneficios del canal digital"
	texts := []string{long, "Emitir cheques"}
	idx, ok := pickCandidate(texts, Target{Pattern: `emitir cheques`})
	if !ok || idx != 1 {
		t.Errorf("pickCandidate matched container text: (%d, %v)", idx, ok)
	}
}

func TestPickCandidateMiss(t *testing.T) {
	if _, ok := pickCandidate([]string{"Inicio", "Ayuda"}, Target{Exact: "Cuentas", Pattern: "^cuentas$"}); ok {
		t.Error("pickCandidate matched where nothing should")
	}
	if _, ok := pickCandidate(nil, Target{Exact: "Cuentas"}); ok {
		t.Error("pickCandidate matched on empty snapshot")
	}
}

// Repeated evaluation over an unchanged snapshot must choose the same element.
func TestPickCandidateIdempotent(t *testing.T) {
	texts := []string{"Transferencias", "Nueva transferencia", "Transferencias programadas"}
	target := Target{Pattern: `nueva\s+transf`}
	first, ok := pickCandidate(texts, target)
	if !ok {
		t.Fatal("no match")
	}
	for i := 0; i < 5; i++ {
		again, ok := pickCandidate(texts, target)
		if !ok || again != first {
			t.Fatalf("run %d chose %d (ok=%v), first run chose %d", i, again, ok, first)
		}
	}
}

func TestPickCandidateBadPattern(t *testing.T) {
	if _, ok := pickCandidate([]string{"x"}, Target{Pattern: "("}); ok {
		t.Error("invalid pattern should never match")
	}
}
