// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xiaot623/medeval/internal/config"
	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/repository"
)

func NewTestSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// NewFileSQLiteStore opens a store on a temp file with the production DSN
// options, so writers really run on separate connections.
func NewFileSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(config.SQLiteDSN(filepath.Join(t.TempDir(), "medeval.db")))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedSubjects inserts directory rows.
func SeedSubjects(t *testing.T, s repository.Store, subjects ...domain.Subject) {
	t.Helper()
	for i := range subjects {
		if err := s.CreateSubject(context.Background(), &subjects[i]); err != nil {
			t.Fatalf("CreateSubject(%s): %v", subjects[i].UserID, err)
		}
	}
}

// Standard directory fixtures.
var (
	Evaluator = domain.Subject{UserID: "eval-1", Name: "Dr. Grey", Email: "grey@example.org", Role: domain.RoleEvaluator, Department: "Internal Medicine"}
	Trainee   = domain.Subject{UserID: "trainee-1", Name: "Sam Lee", Email: "sam@example.org", Role: domain.RoleTrainee, Department: "Internal Medicine"}
)
