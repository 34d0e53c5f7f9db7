package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCreateDealRequiresTenant(t *testing.T) {
	service := &DealService{}

	_, err := service.CreateDeal(context.Background(), CreateDealInput{
		Name: "Acme Deal",
	})
	require.Error(t, err)
}

func TestCreateDealRequiresName(t *testing.T) {
	service := &DealService{}

	_, err := service.CreateDeal(context.Background(), CreateDealInput{
		TenantID: uuid.New(),
	})
	require.Error(t, err)
}

func TestCreateProjectRequiresTenantAndName(t *testing.T) {
	service := &ProjectService{}

	_, err := service.CreateProject(context.Background(), CreateProjectInput{Name: "Rollout"})
	require.Error(t, err)

	_, err = service.CreateProject(context.Background(), CreateProjectInput{TenantID: uuid.New()})
	require.Error(t, err)
}
