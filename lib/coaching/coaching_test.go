package coaching

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/medleyhq/medley/lib/db/dbtest"
)

var now = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) *Service {
	t.Helper()
	s := New(dbtest.Open(t), time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	return s
}

func validInput() RequestInput {
	return RequestInput{
		ScheduledAt:    "2024-03-12T10:00",
		Name:           "Sam",
		Email:          "sam@example.com",
		Phone:          "+14155550123",
		ReferralSource: "linkedin",
	}
}

func TestPlansOrderedByPrice(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	for _, p := range []PlanInput{
		{Name: "Premium", Price: 300, Sessions: 6},
		{Name: "Starter", Price: 50, Sessions: 1},
		{Name: "Standard", Price: 150, Sessions: 3, Featured: true},
	} {
		if _, err := s.CreatePlan(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	var fe *FormError
	if _, err := s.CreatePlan(ctx, PlanInput{Name: "Broken", Price: -1}); !errors.As(err, &fe) {
		t.Errorf("invalid plan = %v", err)
	}

	plans, err := s.Plans(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range plans {
		names = append(names, p.Name)
	}
	if len(names) != 3 || names[0] != "Starter" || names[2] != "Premium" {
		t.Errorf("plans = %v", names)
	}
}

func TestSubmit(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	plan, err := s.CreatePlan(ctx, PlanInput{Name: "Starter", Price: 50, Sessions: 1})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		mutate    func(*RequestInput)
		wantField string
		wantErr   error
	}{
		{name: "valid", mutate: func(*RequestInput) {}},
		{name: "with plan", mutate: func(in *RequestInput) { in.PlanID = strconv.Itoa(int(plan.ID)) }},
		{name: "missing name", mutate: func(in *RequestInput) { in.Name = "" }, wantField: "name"},
		{name: "bad email", mutate: func(in *RequestInput) { in.Email = "nope" }, wantField: "email"},
		{name: "bad phone", mutate: func(in *RequestInput) { in.Phone = "12-34" }, wantField: "phone"},
		{name: "bad referral", mutate: func(in *RequestInput) { in.ReferralSource = "tiktok" }, wantField: "referral_source"},
		{name: "unknown plan", mutate: func(in *RequestInput) { in.PlanID = "999" }, wantField: "plan"},
		{name: "bad datetime", mutate: func(in *RequestInput) { in.ScheduledAt = "tomorrow" }, wantField: "scheduled_datetime"},
		{name: "exactly 24h ahead", mutate: func(in *RequestInput) { in.ScheduledAt = "2024-03-11T09:00" }, wantErr: ErrTooSoon},
		{name: "in the past", mutate: func(in *RequestInput) { in.ScheduledAt = "2024-03-01T09:00" }, wantErr: ErrTooSoon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			req, err := s.Submit(ctx, in)

			switch {
			case tt.wantField != "":
				var fe *FormError
				if !errors.As(err, &fe) {
					t.Fatalf("Submit = %v, want form error", err)
				}
				if _, ok := fe.Fields[tt.wantField]; !ok {
					t.Errorf("fields = %v, want %s", fe.Fields, tt.wantField)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Submit = %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatal(err)
				}
				if req.ID == 0 || !req.ScheduledAt.Equal(time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)) {
					t.Errorf("request = %+v", req)
				}
			}
		})
	}

	reqs, err := s.Requests(ctx)
	if err != nil || len(reqs) != 2 {
		t.Fatalf("requests = %d, %v", len(reqs), err)
	}
	if reqs[0].PlanID == nil && reqs[1].PlanID == nil {
		t.Error("no request kept its plan")
	}
}
