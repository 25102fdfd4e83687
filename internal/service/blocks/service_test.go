package blocks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/providers"
	"clinicsched/backend/internal/store"
	"clinicsched/backend/internal/store/memory"
)

type fakeResolver struct {
	resolveFn func(ctx context.Context, in providers.ResolveInput) (string, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, in providers.ResolveInput) (string, error) {
	if f.resolveFn == nil {
		panic("Resolve not configured")
	}
	return f.resolveFn(ctx, in)
}

var now = time.Date(2026, 1, 5, 8, 0, 10, 0, time.UTC)

func newService(providerID string) *Service {
	return NewService(memory.NewCalendar(), &fakeResolver{resolveFn: func(ctx context.Context, in providers.ResolveInput) (string, error) {
		return providerID, nil
	}}, WithClock(func() time.Time { return now }))
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 1, 5, hour, minute, 0, 0, time.UTC)
}

func TestCreate_OverlapAndTouching(t *testing.T) {
	svc := newService("dr-1")
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateBlockInput{StartTime: at(10, 0), EndTime: at(11, 0), Reason: "  lunch  "}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, err := svc.Create(ctx, CreateBlockInput{StartTime: at(10, 30), EndTime: at(11, 30)})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || !errors.Is(err, domain.ErrBlockOverlap) {
		t.Fatalf("overlap err = %v, want ValidationError(ErrBlockOverlap)", err)
	}

	if _, err := svc.Create(ctx, CreateBlockInput{StartTime: at(11, 0), EndTime: at(12, 0)}); err != nil {
		t.Fatalf("touching after must be accepted: %v", err)
	}
	if _, err := svc.Create(ctx, CreateBlockInput{StartTime: at(9, 0), EndTime: at(10, 0)}); err != nil {
		t.Fatalf("touching before must be accepted: %v", err)
	}

	got, err := svc.ListForProvider(ctx, "dr-1", at(0, 0), at(23, 0))
	if err != nil {
		t.Fatalf("ListForProvider error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(blocks) = %d, want 3", len(got))
	}
	if got[1].Reason != "lunch" {
		t.Fatalf("reason = %q, want trimmed %q", got[1].Reason, "lunch")
	}
}

func TestCreate_StartMustBeAfterCurrentMinute(t *testing.T) {
	svc := newService("dr-1")
	ctx := context.Background()

	tests := []struct {
		name    string
		start   time.Time
		wantErr bool
	}{
		{"past", at(7, 0), true},
		{"same minute later second", now.Add(30 * time.Second), true},
		{"next minute", at(8, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, CreateBlockInput{StartTime: tt.start, EndTime: tt.start.Add(5 * time.Minute)})
			if tt.wantErr {
				if !errors.Is(err, domain.ErrPastBlockStart) {
					t.Fatalf("err = %v, want ErrPastBlockStart", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create error: %v", err)
			}
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newService("dr-1")
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateBlockInput{StartTime: at(11, 0), EndTime: at(10, 0)}); !errors.Is(err, domain.ErrInvalidInterval) {
		t.Fatalf("reversed err = %v, want ErrInvalidInterval", err)
	}
	if _, err := svc.Create(ctx, CreateBlockInput{StartTime: at(11, 0), EndTime: at(11, 0)}); !errors.Is(err, domain.ErrInvalidInterval) {
		t.Fatalf("empty err = %v, want ErrInvalidInterval", err)
	}
	long := strings.Repeat("x", maxReasonLength+1)
	if _, err := svc.Create(ctx, CreateBlockInput{StartTime: at(10, 0), EndTime: at(11, 0), Reason: long}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("long reason err = %v, want ErrInvalidRequest", err)
	}
}

func TestUpdate_ExcludesSelfAndKeepsPastStart(t *testing.T) {
	cal := memory.NewCalendar()
	resolver := &fakeResolver{resolveFn: func(ctx context.Context, in providers.ResolveInput) (string, error) {
		return "dr-1", nil
	}}
	ctx := context.Background()

	early := NewService(cal, resolver, WithClock(func() time.Time { return at(6, 0) }))
	b, err := early.Create(ctx, CreateBlockInput{StartTime: at(7, 0), EndTime: at(9, 0)})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	svc := NewService(cal, resolver, WithClock(func() time.Time { return now }))

	extended, err := svc.Update(ctx, UpdateBlockInput{BlockID: b.ID, StartTime: at(7, 0), EndTime: at(10, 0), Reason: "surgery"})
	if err != nil {
		t.Fatalf("extending a started block must succeed: %v", err)
	}
	if !extended.EndTime.Equal(at(10, 0)) || extended.Reason != "surgery" {
		t.Fatalf("updated = %+v", extended)
	}

	_, err = svc.Update(ctx, UpdateBlockInput{BlockID: b.ID, StartTime: at(7, 30), EndTime: at(10, 0)})
	if !errors.Is(err, domain.ErrPastBlockStart) {
		t.Fatalf("moving start into the past err = %v, want ErrPastBlockStart", err)
	}

	other, err := svc.Create(ctx, CreateBlockInput{StartTime: at(10, 0), EndTime: at(11, 0)})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	_, err = svc.Update(ctx, UpdateBlockInput{BlockID: other.ID, StartTime: at(9, 30), EndTime: at(11, 0)})
	if !errors.Is(err, domain.ErrBlockOverlap) {
		t.Fatalf("err = %v, want ErrBlockOverlap", err)
	}
}

func TestDelete(t *testing.T) {
	svc := newService("dr-1")
	ctx := context.Background()

	b, err := svc.Create(ctx, CreateBlockInput{StartTime: at(10, 0), EndTime: at(11, 0)})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := svc.Delete(ctx, DeleteBlockInput{BlockID: b.ID}); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := svc.Delete(ctx, DeleteBlockInput{BlockID: b.ID}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete err = %v, want %v", err, store.ErrNotFound)
	}
}
