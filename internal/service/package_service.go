package service

import (
	"context"
	"fmt"

	"github.com/digkill/hydrastudio/internal/models"
)

type PackageStore interface {
	ListActive(ctx context.Context) ([]models.CreditPackage, error)
	GetByID(ctx context.Context, id int64) (*models.CreditPackage, error)
	GetByName(ctx context.Context, name string) (*models.CreditPackage, error)
	Create(ctx context.Context, pkg *models.CreditPackage) (*models.CreditPackage, error)
}

// DefaultPackages is the pricing catalogue seeded on first start.
var DefaultPackages = []models.CreditPackage{
	{Name: "Starter", Tagline: "Ideal for Suno hobbyists", Price: "19", Credits: 50, Plan: models.PlanStarter, IsActive: true},
	{Name: "Producer", Tagline: "The best value for creators", Price: "39", Credits: 150, Plan: models.PlanProducer, IsPopular: true, IsActive: true},
	{Name: "Artist", Tagline: "For full music albums", Price: "79", Credits: 500, Plan: models.PlanArtist, IsActive: true},
}

type Packages struct {
	repo PackageStore
}

func NewPackages(repo PackageStore) *Packages {
	return &Packages{repo: repo}
}

// EnsureDefaults inserts any default package missing by name.
func (s *Packages) EnsureDefaults(ctx context.Context) error {
	for _, pkg := range DefaultPackages {
		existing, err := s.repo.GetByName(ctx, pkg.Name)
		if err != nil {
			return fmt.Errorf("get package %s: %w", pkg.Name, err)
		}
		if existing != nil {
			continue
		}
		p := pkg
		if _, err := s.repo.Create(ctx, &p); err != nil {
			return fmt.Errorf("create package %s: %w", pkg.Name, err)
		}
	}
	return nil
}

func (s *Packages) List(ctx context.Context) ([]models.CreditPackage, error) {
	return s.repo.ListActive(ctx)
}

// Get returns nil, nil for an unknown id.
func (s *Packages) Get(ctx context.Context, id int64) (*models.CreditPackage, error) {
	return s.repo.GetByID(ctx, id)
}
