package packages

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
)

type fakeRepository struct {
	findFn func(ctx context.Context, id uuid.UUID) (*models.Package, error)
	maxFn  func(ctx context.Context) (int, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	if f.findFn != nil {
		return f.findFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeRepository) ListActive(ctx context.Context) ([]models.Package, error) {
	return nil, nil
}

func (f *fakeRepository) MaxExpiryWarningDays(ctx context.Context) (int, error) {
	if f.maxFn != nil {
		return f.maxFn(ctx)
	}
	return 0, nil
}

func TestService_GetPackage(t *testing.T) {
	want := &models.Package{ID: uuid.New(), Name: "growth"}
	repo := &fakeRepository{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Package, error) {
			if id != want.ID {
				t.Fatalf("unexpected package id %s", id)
			}
			return want, nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	got, err := svc.GetPackage(context.Background(), want.ID)
	if err != nil {
		t.Fatalf("GetPackage error: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected package: %+v", got)
	}

	if _, err := svc.GetPackage(context.Background(), uuid.Nil); err == nil {
		t.Fatal("expected error for nil package id")
	}
}

func TestService_EffectiveWarningDays(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	override := 14
	tests := []struct {
		name       string
		pkg        *models.Package
		globalDays int
		want       int
	}{
		{name: "override wins", pkg: &models.Package{ExpiryWarningDays: &override}, globalDays: 7, want: 14},
		{name: "global default", pkg: &models.Package{}, globalDays: 7, want: 7},
		{name: "nil package", pkg: nil, globalDays: 7, want: 7},
		{name: "no window at all", pkg: &models.Package{}, globalDays: 0, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := svc.EffectiveWarningDays(tc.pkg, tc.globalDays); got != tc.want {
				t.Fatalf("expected %d days, got %d", tc.want, got)
			}
		})
	}
}

func TestService_WarningWindowDays(t *testing.T) {
	repo := &fakeRepository{
		maxFn: func(ctx context.Context) (int, error) { return 21, nil },
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	got, err := svc.WarningWindowDays(context.Background(), 7)
	if err != nil {
		t.Fatalf("WarningWindowDays error: %v", err)
	}
	if got != 21 {
		t.Fatalf("expected widest override to win, got %d", got)
	}

	repo.maxFn = func(ctx context.Context) (int, error) { return 3, nil }
	got, err = svc.WarningWindowDays(context.Background(), 7)
	if err != nil {
		t.Fatalf("WarningWindowDays error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected global default to win, got %d", got)
	}

	expectedErr := errors.New("boom")
	repo.maxFn = func(ctx context.Context) (int, error) { return 0, expectedErr }
	if _, err := svc.WarningWindowDays(context.Background(), 7); !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to bubble up, got %v", err)
	}
}
