package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prizzzz/leaseIQ/model"
)

type repoFactory func(t *testing.T) ContractRepository

func repositories() map[string]repoFactory {
	return map[string]repoFactory{
		"memory": func(t *testing.T) ContractRepository {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) ContractRepository {
			s, err := NewSQLiteStore(":memory:")
			if err != nil {
				t.Fatalf("Failed to open sqlite store: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func sampleAnalysis() model.Analysis {
	return model.Analysis{
		Text: "LEASE AGREEMENT ...",
		Data: model.ContractData{
			Make: "Toyota", Model: "Corolla", Year: "2023", VIN: "JT2BG22K1X0123456",
			PurchasePrice: 20000, MonthlyPaymentINR: 500, DownPaymentINR: 1000,
			APRPercent: 4.5, LeaseTermMonths: 36, AnnualMileageKm: 15000,
			EarlyTerminationLevel: model.RiskHigh, PenaltyLevel: model.RiskMedium,
			MaintenanceType: model.MaintenanceCustomer, WarrantyType: model.WarrantyPartial,
			PurchaseOptionStatus: model.PurchaseAvailable,
			JunkFees:             []string{"VIN Etching", "Nitrogen Air"},
		},
		Fairness: model.FairnessResult{Score: 58, Rating: model.RatingModerate, Explanation: "Initial audit"},
		Strategy: model.StrategyPriceAPR,
	}
}

func forEachRepository(t *testing.T, fn func(t *testing.T, repo ContractRepository)) {
	for name, factory := range repositories() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestRepositoryCreateAndGet(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo ContractRepository) {
		ctx := context.Background()
		contract := &model.Contract{ID: "test-id-1", Filename: "test.pdf", Tenant: "tenant1", Status: model.StatusPending}

		if err := repo.Create(ctx, contract); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if contract.CreatedAt.IsZero() {
			t.Error("Expected CreatedAt to be set")
		}

		got, err := repo.Get(ctx, "test-id-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Filename != "test.pdf" || got.Status != model.StatusPending {
			t.Errorf("Unexpected contract: %+v", got)
		}
		if got.Locked() {
			t.Error("Expected new contract to be unlocked")
		}

		if _, err := repo.Get(ctx, "non-existent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestRepositoryListByTenant(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo ContractRepository) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		repo.Create(ctx, &model.Contract{ID: "1", Tenant: "tenant1", Filename: "a.pdf", Status: model.StatusPending, CreatedAt: base})
		repo.Create(ctx, &model.Contract{ID: "2", Tenant: "tenant1", Filename: "b.pdf", Status: model.StatusPending, CreatedAt: base.Add(time.Hour)})
		repo.Create(ctx, &model.Contract{ID: "3", Tenant: "tenant2", Filename: "c.pdf", Status: model.StatusPending, CreatedAt: base})

		list, err := repo.ListByTenant(ctx, "tenant1")
		if err != nil {
			t.Fatalf("ListByTenant failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("Expected 2 contracts for tenant1, got %d", len(list))
		}
		if list[0].ID != "2" {
			t.Errorf("Expected newest contract first, got %s", list[0].ID)
		}

		list, _ = repo.ListByTenant(ctx, "tenant3")
		if len(list) != 0 {
			t.Errorf("Expected 0 contracts for tenant3, got %d", len(list))
		}
	})
}

func TestRepositoryGetByIDOrFilename(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo ContractRepository) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		repo.Create(ctx, &model.Contract{ID: "old", Tenant: "t1", Filename: "lease.pdf", Status: model.StatusPending, CreatedAt: base})
		repo.Create(ctx, &model.Contract{ID: "new", Tenant: "t1", Filename: "lease.pdf", Status: model.StatusPending, CreatedAt: base.Add(time.Minute)})
		repo.Create(ctx, &model.Contract{ID: "other", Tenant: "t2", Filename: "lease.pdf", Status: model.StatusPending, CreatedAt: base.Add(time.Hour)})

		tests := []struct {
			key      string
			tenant   string
			expected string
		}{
			{"old", "t1", "old"},
			{"lease.pdf", "t1", "new"},
			{"lease.pdf", "t2", "other"},
		}
		for _, tt := range tests {
			got, err := repo.GetByIDOrFilename(ctx, tt.tenant, tt.key)
			if err != nil {
				t.Fatalf("GetByIDOrFilename(%s, %s) failed: %v", tt.tenant, tt.key, err)
			}
			if got.ID != tt.expected {
				t.Errorf("GetByIDOrFilename(%s, %s): expected %s, got %s", tt.tenant, tt.key, tt.expected, got.ID)
			}
		}

		if _, err := repo.GetByIDOrFilename(ctx, "t2", "old"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected other tenant's id to be hidden, got %v", err)
		}
		if _, err := repo.GetByIDOrFilename(ctx, "t1", "missing.pdf"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestRepositoryUpdateStatus(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo ContractRepository) {
		ctx := context.Background()
		repo.Create(ctx, &model.Contract{ID: "s1", Tenant: "t", Filename: "f.pdf", Status: model.StatusPending})

		if err := repo.UpdateStatus(ctx, "s1", model.StatusFailed, "ocr failed"); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		got, _ := repo.Get(ctx, "s1")
		if got.Status != model.StatusFailed || got.ErrorMsg != "ocr failed" {
			t.Errorf("Expected failed/ocr failed, got %s/%s", got.Status, got.ErrorMsg)
		}

		if err := repo.UpdateStatus(ctx, "missing", model.StatusFailed, ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestRepositoryLockIsWriteOnce(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo ContractRepository) {
		ctx := context.Background()
		repo.Create(ctx, &model.Contract{ID: "l1", Tenant: "t", Filename: "f.pdf", Status: model.StatusProcessing})

		first := sampleAnalysis()
		if err := repo.Lock(ctx, "l1", first); err != nil {
			t.Fatalf("Lock failed: %v", err)
		}

		second := sampleAnalysis()
		second.Fairness = model.FairnessResult{Score: 100, Rating: model.RatingFair}
		if err := repo.Lock(ctx, "l1", second); !errors.Is(err, ErrScoreLocked) {
			t.Fatalf("Expected ErrScoreLocked, got %v", err)
		}

		got, err := repo.Get(ctx, "l1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status != model.StatusCompleted {
			t.Errorf("Expected completed, got %s", got.Status)
		}
		if got.Fairness == nil || *got.Fairness != first.Fairness {
			t.Errorf("Expected first fairness to be kept, got %+v", got.Fairness)
		}
		if got.Strategy != model.StrategyPriceAPR {
			t.Errorf("Expected strategy price_apr, got %s", got.Strategy)
		}
		if got.Text != first.Text {
			t.Errorf("Expected contract text to be stored")
		}
		d := got.Data
		if d == nil {
			t.Fatal("Expected contract data")
		}
		if d.Make != "Toyota" || d.LeaseTermMonths != 36 || d.APRPercent != 4.5 || d.AnnualMileageKm != 15000 {
			t.Errorf("Unexpected data: %+v", d)
		}
		if d.EarlyTerminationLevel != model.RiskHigh || d.PurchaseOptionStatus != model.PurchaseAvailable {
			t.Errorf("Unexpected enums: %+v", d)
		}
		if len(d.JunkFees) != 2 || d.JunkFees[0] != "VIN Etching" || d.JunkFees[1] != "Nitrogen Air" {
			t.Errorf("Expected junk fees to round trip, got %v", d.JunkFees)
		}

		if err := repo.Lock(ctx, "missing", first); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestRepositoryDelete(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo ContractRepository) {
		ctx := context.Background()
		repo.Create(ctx, &model.Contract{ID: "delete-me", Tenant: "t", Filename: "f.pdf", Status: model.StatusPending})

		if err := repo.Delete(ctx, "delete-me"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(ctx, "delete-me"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected contract to be deleted, got %v", err)
		}
		if err := repo.Delete(ctx, "delete-me"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Create(ctx, &model.Contract{ID: "c", Tenant: "t", Status: model.StatusPending})
	store.Lock(ctx, "c", sampleAnalysis())

	got, _ := store.Get(ctx, "c")
	got.Fairness.Score = 0
	got.Data.JunkFees[0] = "tampered"

	again, _ := store.Get(ctx, "c")
	if again.Fairness.Score != 58 {
		t.Errorf("Expected stored score to be unchanged, got %d", again.Fairness.Score)
	}
	if again.Data.JunkFees[0] != "VIN Etching" {
		t.Errorf("Expected stored junk fees to be unchanged, got %v", again.Data.JunkFees)
	}
	if store.Count() != 1 {
		t.Errorf("Expected count 1, got %d", store.Count())
	}
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db:5432/leaseiq?sslmode=disable": "pgx5://u:p@db:5432/leaseiq?sslmode=disable",
		"postgresql://db/leaseiq":                        "pgx5://db/leaseiq",
		"pgx5://db/leaseiq":                              "pgx5://db/leaseiq",
	}
	for in, expected := range tests {
		if got := migrateURL(in); got != expected {
			t.Errorf("migrateURL(%q): expected %q, got %q", in, expected, got)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("Failed to read embedded migrations: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("Expected 4 migration files, got %d", len(entries))
	}
}
