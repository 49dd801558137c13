package handlers

import (
	"net/http"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"carparter/internal/models"
)

func TestRepairViewErrorAllowsBothParties(t *testing.T) {
	userID := primitive.NewObjectID()
	centerID := primitive.NewObjectID()
	repair := models.CompletedRepair{UserID: userID, CenterID: centerID}

	if status, msg := repairViewError(repair, userID); status != 0 {
		t.Fatalf("expected user to see own repair, got %d %s", status, msg)
	}
	if status, msg := repairViewError(repair, centerID); status != 0 {
		t.Fatalf("expected center to see own repair, got %d %s", status, msg)
	}
}

func TestRepairViewErrorBlocksStrangers(t *testing.T) {
	repair := models.CompletedRepair{
		UserID:   primitive.NewObjectID(),
		CenterID: primitive.NewObjectID(),
	}

	status, _ := repairViewError(repair, primitive.NewObjectID())
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for a stranger, got %d", status)
	}
}

func TestRepairCompletionForbiddenForOtherCenter(t *testing.T) {
	repair := models.CompletedRepair{
		CenterID: primitive.NewObjectID(),
		Status:   models.RepairStatusInProgress,
	}

	status, _ := repairCompletionError(repair, primitive.NewObjectID())
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for another center's repair, got %d", status)
	}
}

func TestRepairCompletionConflictWhenAlreadyDone(t *testing.T) {
	centerID := primitive.NewObjectID()
	repair := models.CompletedRepair{
		CenterID: centerID,
		Status:   models.RepairStatusCompleted,
	}

	status, msg := repairCompletionError(repair, centerID)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for completed repair, got %d", status)
	}
	if msg != "repair already completed" {
		t.Fatalf("unexpected message: %s", msg)
	}
}

func TestRepairCompletionAllowsOwningCenterInProgress(t *testing.T) {
	centerID := primitive.NewObjectID()
	repair := models.CompletedRepair{
		CenterID: centerID,
		Status:   models.RepairStatusInProgress,
	}

	if status, msg := repairCompletionError(repair, centerID); status != 0 {
		t.Fatalf("expected in-progress repair to be completable, got %d %s", status, msg)
	}
}
