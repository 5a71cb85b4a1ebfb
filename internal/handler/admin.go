package handler

import (
	"log"
	"net/http"

	"github.com/tradejournalai/backend/internal/domain"
	"github.com/tradejournalai/backend/internal/repository"
	"github.com/tradejournalai/backend/internal/service"
)

// AdminHandler handles admin-only endpoints.
type AdminHandler struct {
	users       *repository.UserRepository
	redemptions *repository.RedemptionRepository
	orders      *repository.OrderRepository
	authSvc     *service.AuthService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(users *repository.UserRepository, redemptions *repository.RedemptionRepository,
	orders *repository.OrderRepository, authSvc *service.AuthService) *AdminHandler {
	return &AdminHandler{users: users, redemptions: redemptions, orders: orders, authSvc: authSvc}
}

// GetStats returns system-wide metrics. Individual count failures are
// logged and reported as zero rather than failing the whole response.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	usersCount, err := h.users.CountAll(ctx)
	if err != nil {
		log.Printf("Failed to count users: %v", err)
	}
	proCount, err := h.users.CountActivePro(ctx)
	if err != nil {
		log.Printf("Failed to count pro users: %v", err)
	}
	rewardsCount, err := h.redemptions.CountProcessed(ctx)
	if err != nil {
		log.Printf("Failed to count rewards: %v", err)
	}
	ordersPaid, err := h.orders.CountByStatus(ctx, domain.OrderStatusPaid)
	if err != nil {
		log.Printf("Failed to count paid orders: %v", err)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"users":            usersCount,
		"activePro":        proCount,
		"rewardsProcessed": rewardsCount,
		"paidOrders":       ordersPaid,
	})
}

// ListUsers returns all users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authSvc.ListUsers(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, users)
}
