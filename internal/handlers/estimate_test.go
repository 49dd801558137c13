package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"carparter/internal/models"
)

func TestBuildEstimateItemsRejectsEmptyName(t *testing.T) {
	_, err := buildEstimateItems([]estimateItemRequest{
		{ItemName: "   ", Price: 10000},
	})
	if err == nil {
		t.Fatal("expected validation error for blank item name")
	}
}

func TestBuildEstimateItemsRejectsNegativePrice(t *testing.T) {
	_, err := buildEstimateItems([]estimateItemRequest{
		{ItemName: "엔진오일 교환", Price: -500},
	})
	if err == nil {
		t.Fatal("expected validation error for negative price")
	}
}

func TestBuildEstimateItemsDefaultsQuantityToOne(t *testing.T) {
	items, err := buildEstimateItems([]estimateItemRequest{
		{ItemName: "브레이크 패드", Price: 80000},
	})
	if err != nil {
		t.Fatalf("buildEstimateItems returned error: %v", err)
	}
	if items[0].Quantity != 1 {
		t.Fatalf("expected default quantity 1, got %d", items[0].Quantity)
	}
}

func TestBuildEstimateItemsTrimsFields(t *testing.T) {
	items, err := buildEstimateItems([]estimateItemRequest{
		{ItemName: "  타이어 교체  ", Price: 120000, PartType: " 정품 ", Quantity: 4},
	})
	if err != nil {
		t.Fatalf("buildEstimateItems returned error: %v", err)
	}
	if items[0].ItemName != "타이어 교체" || items[0].PartType != "정품" {
		t.Fatalf("expected trimmed fields, got %+v", items[0])
	}
}

func TestEstimateTotalPrefersExplicitCost(t *testing.T) {
	items := []models.EstimateItem{
		{ItemName: "a", Price: 10000, Quantity: 2},
	}
	if got := estimateTotal(50000, items); got != 50000 {
		t.Fatalf("expected explicit cost 50000, got %d", got)
	}
}

func TestEstimateTotalSumsItemsWhenCostOmitted(t *testing.T) {
	items := []models.EstimateItem{
		{ItemName: "a", Price: 10000, Quantity: 2},
		{ItemName: "b", Price: 5000, Quantity: 1},
	}
	if got := estimateTotal(0, items); got != 25000 {
		t.Fatalf("expected summed total 25000, got %d", got)
	}
}

func TestEstimateJSONIncludesItems(t *testing.T) {
	items, err := buildEstimateItems([]estimateItemRequest{
		{ItemName: "에어컨 필터", Price: 15000, RequiredHours: 1},
	})
	if err != nil {
		t.Fatalf("buildEstimateItems returned error: %v", err)
	}

	estimate := models.Estimate{
		CenterName:    "수리명가",
		EstimatedCost: estimateTotal(0, items),
		Items:         items,
		Status:        models.EstimateStatusPending,
	}

	body, err := json.Marshal(estimate)
	if err != nil {
		t.Fatalf("json marshal failed: %v", err)
	}
	jsonBody := string(body)
	if !strings.Contains(jsonBody, "\"itemName\":\"에어컨 필터\"") {
		t.Fatalf("expected item name in response json, got %s", jsonBody)
	}
	if !strings.Contains(jsonBody, "\"estimatedCost\":15000") {
		t.Fatalf("expected derived cost in response json, got %s", jsonBody)
	}
}

func TestTerminalEstimateStatusesAcceptNoTransitions(t *testing.T) {
	terminal := []string{
		models.EstimateStatusAccepted,
		models.EstimateStatusRejected,
		models.EstimateStatusCanceled,
	}
	for _, status := range terminal {
		if !models.IsTerminalEstimateStatus(status) {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	if models.IsTerminalEstimateStatus(models.EstimateStatusPending) {
		t.Fatal("expected PENDING to allow transitions")
	}
}

func TestEstimateConflictErrorMessage(t *testing.T) {
	err := estimateConflictError{Reason: "quote request already completed"}
	if err.Error() != "quote request already completed" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestUserEstimateActionForbiddenForNonOwner(t *testing.T) {
	estimate := models.Estimate{Status: models.EstimateStatusPending}
	request := models.QuoteRequest{UserID: primitive.NewObjectID()}
	stranger := primitive.NewObjectID()

	status, _ := userEstimateActionError(estimate, request, stranger, "accepted")
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", status)
	}
	if estimate.Status != models.EstimateStatusPending {
		t.Fatalf("expected status untouched after forbidden check, got %s", estimate.Status)
	}
}

func TestUserEstimateActionConflictOnTerminalStatus(t *testing.T) {
	owner := primitive.NewObjectID()
	request := models.QuoteRequest{UserID: owner}

	terminal := []string{
		models.EstimateStatusAccepted,
		models.EstimateStatusRejected,
		models.EstimateStatusCanceled,
	}
	for _, from := range terminal {
		estimate := models.Estimate{Status: from}
		status, msg := userEstimateActionError(estimate, request, owner, "accepted")
		if status != http.StatusConflict {
			t.Fatalf("expected 409 from %s, got %d", from, status)
		}
		if msg != "only pending estimates can be accepted" {
			t.Fatalf("unexpected message from %s: %s", from, msg)
		}
	}
}

func TestUserEstimateActionAllowsOwnerOnPending(t *testing.T) {
	owner := primitive.NewObjectID()
	estimate := models.Estimate{Status: models.EstimateStatusPending}
	request := models.QuoteRequest{UserID: owner}

	if status, msg := userEstimateActionError(estimate, request, owner, "rejected"); status != 0 {
		t.Fatalf("expected pending estimate to be actionable, got %d %s", status, msg)
	}
}

func TestEstimateUpdateForbiddenForOtherCenter(t *testing.T) {
	estimate := models.Estimate{
		CenterID: primitive.NewObjectID(),
		Status:   models.EstimateStatusPending,
	}

	status, _ := estimateUpdateError(estimate, primitive.NewObjectID())
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for another center's estimate, got %d", status)
	}
}

func TestEstimateUpdateConflictOnTerminalStatus(t *testing.T) {
	centerID := primitive.NewObjectID()
	estimate := models.Estimate{CenterID: centerID, Status: models.EstimateStatusRejected}

	status, _ := estimateUpdateError(estimate, centerID)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for rejected estimate, got %d", status)
	}
}

func TestEstimateWithdrawAllowsRejected(t *testing.T) {
	centerID := primitive.NewObjectID()
	estimate := models.Estimate{CenterID: centerID, Status: models.EstimateStatusRejected}

	if status, msg := estimateWithdrawError(estimate, centerID); status != 0 {
		t.Fatalf("expected rejected estimate to be withdrawable, got %d %s", status, msg)
	}
}

func TestEstimateWithdrawConflictOnAccepted(t *testing.T) {
	centerID := primitive.NewObjectID()
	estimate := models.Estimate{CenterID: centerID, Status: models.EstimateStatusAccepted}

	status, _ := estimateWithdrawError(estimate, centerID)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for accepted estimate, got %d", status)
	}
}

func TestNewCompletedRepairUsesCommittedEstimateCost(t *testing.T) {
	user := models.User{Name: "홍길동"}
	request := models.QuoteRequest{
		ID:             primitive.NewObjectID(),
		UserID:         primitive.NewObjectID(),
		CarModel:       "아반떼",
		CarNumber:      "12가3456",
		RequestDetails: "엔진 소음",
	}
	// Cost as committed inside the transaction, after a revision.
	committed := models.Estimate{
		ID:            primitive.NewObjectID(),
		CenterID:      primitive.NewObjectID(),
		CenterName:    "수리명가",
		EstimatedCost: 180000,
	}

	repair := newCompletedRepair(user, request, committed)

	if repair.FinalCost != 180000 {
		t.Fatalf("expected snapshot cost 180000, got %d", repair.FinalCost)
	}
	if repair.Status != models.RepairStatusInProgress {
		t.Fatalf("expected new repair to start in progress, got %s", repair.Status)
	}
	if repair.UserID != request.UserID || repair.CenterID != committed.CenterID {
		t.Fatal("expected party ids copied from request and estimate")
	}
	if repair.CarModel != "아반떼" || repair.LicensePlate != "12가3456" {
		t.Fatalf("expected car snapshot copied, got %s %s", repair.CarModel, repair.LicensePlate)
	}
}
