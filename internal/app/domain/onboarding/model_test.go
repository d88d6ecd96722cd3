package onboarding

import "testing"

func TestCompleteKeepsOrder(t *testing.T) {
	var p Progress
	if !p.Complete(StepSchedulePost) {
		t.Fatal("expected change")
	}
	p.Complete(StepCreateClient)
	if p.Complete(StepCreateClient) {
		t.Fatal("second completion should be a no-op")
	}
	if len(p.CompletedSteps) != 2 || p.CompletedSteps[0] != string(StepCreateClient) {
		t.Fatalf("unexpected order %v", p.CompletedSteps)
	}
	if p.Percent() != 33 {
		t.Fatalf("percent = %d", p.Percent())
	}
}
