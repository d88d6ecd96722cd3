package onboarding

import (
	"context"
	"testing"

	"github.com/R3E-Network/agency_layer/internal/app/actor"
	"github.com/R3E-Network/agency_layer/internal/app/domain/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/agency_layer/internal/errors"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

func TestChecklist(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), logger.NewNop())

	v, err := svc.Get(ctx, "a1", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Percent != 0 || len(v.Steps) != len(onboarding.Steps) || v.CompletedSteps == nil {
		t.Fatalf("unexpected initial view %+v", v)
	}

	if _, err := svc.Complete(ctx, "a1", "u1", "fly"); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected invalid step, got %v", err)
	}

	v, err = svc.Complete(ctx, "a1", "u1", " Create_Client ")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !v.Done(onboarding.StepCreateClient) || v.Percent != 16 {
		t.Fatalf("unexpected view %+v", v)
	}

	if v, _ = svc.Dismiss(ctx, "a1", "u1"); !v.Dismissed {
		t.Fatal("expected dismissed")
	}
	v, _ = svc.Get(ctx, "a1", "u1")
	if !v.Dismissed || !v.Done(onboarding.StepCreateClient) {
		t.Fatalf("progress not persisted: %+v", v)
	}

	v, err = svc.Reset(ctx, "a1", "u1")
	if err != nil || v.Dismissed || v.Percent != 0 {
		t.Fatalf("reset: %+v %v", v, err)
	}
}

func TestTrackUsesCaller(t *testing.T) {
	svc := New(memory.New(), logger.NewNop())

	svc.Track(context.Background(), "a1", onboarding.StepSchedulePost)

	ctx := actor.With(context.Background(), actor.Actor{UserID: "u9"})
	svc.Track(ctx, "a1", onboarding.StepSchedulePost)

	v, _ := svc.Get(context.Background(), "a1", "u9")
	if !v.Done(onboarding.StepSchedulePost) {
		t.Fatalf("expected step tracked for caller, got %+v", v)
	}
}
